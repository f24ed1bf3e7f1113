package session

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/trezcool/studyplanner/tests"
)

func TestIsTokenExpired(t *testing.T) {
	now := time.Now()
	raw := func(payload string) string {
		enc := base64.RawURLEncoding
		return enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`)) + "." + enc.EncodeToString([]byte(payload)) + ".sig"
	}

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{name: "exp = now - 1", token: testutil.AccessToken(t, "u", now.Add(-time.Second)), want: true},
		{name: "exp = now", token: testutil.AccessToken(t, "u", now), want: true},
		{name: "exp = now + 29", token: testutil.AccessToken(t, "u", now.Add(29*time.Second)), want: true},
		{name: "exp = now + 31", token: testutil.AccessToken(t, "u", now.Add(31*time.Second)), want: false},
		{name: "exp = now + 1h", token: testutil.AccessToken(t, "u", now.Add(time.Hour)), want: false},
		{name: "empty", token: "", want: true},
		{name: "garbage", token: "lmaooolol", want: true},
		{name: "two segments", token: "abc.def", want: true},
		{name: "payload not base64", token: "eyJhbGciOiJIUzI1NiJ9.%%%.sig", want: true},
		{name: "payload not json", token: raw("not json"), want: true},
		{name: "no exp", token: raw(`{"sub":"u"}`), want: true},
		{name: "string exp", token: raw(`{"exp":"9999999999"}`), want: true},
		{name: "fractional exp", token: raw(`{"exp":9999999999.5}`), want: true},
		{name: "unsigned but valid payload", token: raw(`{"exp":9999999999}`), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTokenExpired(tt.token, now); got != tt.want {
				t.Errorf("IsTokenExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}
