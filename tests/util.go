package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/user"
)

var TestSecret = []byte("secret")

// AccessToken returns a signed bearer token for sub expiring at exp.
func AccessToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  sub,
		"exp":  exp.Unix(),
		"iat":  time.Now().Unix(),
		"role": "authenticated",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(TestSecret)
	if err != nil {
		t.Fatalf("AccessToken() failed: %v", err)
	}
	return token
}

// Session returns a session for usrID whose access token expires at exp.
func Session(t *testing.T, usrID string, exp time.Time) *core.Session {
	t.Helper()
	return &core.Session{
		AccessToken:  AccessToken(t, usrID, exp),
		RefreshToken: "refresh-" + usrID,
		TokenType:    "bearer",
		ExpiresIn:    int64(time.Until(exp).Seconds()),
		ExpiresAt:    exp.Unix(),
		User:         core.SessionUser{ID: usrID, Email: usrID + "@test.cd"},
	}
}

func CreateUser(t *testing.T, repo user.Repository, name, email, pwd string, confirmed bool, createdAt ...time.Time) user.User {
	t.Helper()
	tstamp := core.NowUTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:        uuid.NewString(),
		FullName:  name,
		Email:     email,
		IsActive:  true,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if confirmed {
		usr.EmailConfirmedAt = tstamp
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}
