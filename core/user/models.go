package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/studyplanner/core"
)

// Identity providers
const (
	ProviderEmail  = "email"
	ProviderGoogle = "google"
)

type User struct {
	ID               string    `json:"id"`
	FullName         string    `json:"full_name"`
	Email            string    `json:"email"`
	Provider         string    `json:"provider"`
	IsActive         bool      `json:"is_active"`
	PasswordHash     []byte    `json:"-"`
	EmailConfirmedAt time.Time `json:"email_confirmed_at"` // UTC
	CreatedAt        time.Time `json:"created_at"`         // UTC
	UpdatedAt        time.Time `json:"updated_at"`         // UTC
	LastLogin        time.Time `json:"last_login"`         // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	if len(u.PasswordHash) == 0 {
		return bcrypt.ErrMismatchedHashAndPassword
	}
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsConfirmed() bool {
	return !u.EmailConfirmedAt.IsZero()
}

// SessionUser is the view of u handed to clients inside a session.
func (u User) SessionUser() core.SessionUser {
	meta := map[string]interface{}{"provider": u.Provider}
	if u.FullName != "" {
		meta["full_name"] = u.FullName
	}
	return core.SessionUser{
		ID:           u.ID,
		Email:        u.Email,
		UserMetadata: meta,
		CreatedAt:    u.CreatedAt,
	}
}

// NewUser contains information needed to sign a User up.
type NewUser struct {
	FullName string `json:"full_name"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (nu *NewUser) Validate(svc *Service) error {
	nu.FullName = core.CleanString(nu.FullName)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := core.Validate.Struct(nu); err != nil {
		return core.TranslateValidationErrors(err)
	}
	return svc.checkUniqueness(nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	FullName *string `json:"full_name"`
	IsActive *bool   `json:"is_active"`
	Password string  `json:"password"`

	email string // for the password similarity check
}

func (uu *UpdateUser) Validate(origUsr User) error {
	if uu.FullName != nil {
		name := core.CleanString(*uu.FullName)
		uu.FullName = &name
	}
	uu.email = origUsr.Email
	return core.TranslateValidationErrors(core.Validate.Struct(uu))
}

// GetFilter selects a single User. Only one field is expected to be set.
type GetFilter struct {
	ID    string
	Email string
}
