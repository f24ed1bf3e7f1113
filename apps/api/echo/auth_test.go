package echoapi_test

import (
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/auth"
)

var confirmURLRe = regexp.MustCompile(`http://api\.test(/auth/v1/verify\?\S+)`)

func TestServer_home(t *testing.T) {
	f := setup(t)
	rec := f.do(t, newRequest(http.MethodGet, "/", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Study Planner")
}

func TestAuthAPI_apiKey(t *testing.T) {
	f := setup(t)
	body := marshallObj(t, map[string]string{"email": "a@test.cd", "password": testPassword})

	req := newRequest(http.MethodPost, "/auth/v1/token?grant_type=password", "", body)
	req.Header.Del("apikey")
	rec := f.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "no_api_key", decodeErr(t, rec).Code)

	req = newRequest(http.MethodPost, "/auth/v1/token?grant_type=password", "", body)
	req.Header.Set("apikey", "wrong")
	rec = f.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_api_key", decodeErr(t, rec).Code)

	req = newRequest(http.MethodPost, "/auth/v1/token?grant_type=password&apikey="+anonKey, "", body)
	req.Header.Del("apikey")
	rec = f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code) // the key went through; the credentials did not
	assert.Equal(t, core.CodeInvalidCredentials, decodeErr(t, rec).Code)
}

func TestAuthAPI_signUp(t *testing.T) {
	f := setup(t)
	body := marshallObj(t, map[string]interface{}{
		"email":    "Alice@Test.cd",
		"password": testPassword,
		"data":     map[string]string{"full_name": "Alice Doe"},
	})

	rec := f.do(t, newRequest(http.MethodPost, "/auth/v1/signup", "", body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sess core.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.NotEmpty(t, sess.AccessToken)
	assert.NotEmpty(t, sess.RefreshToken)
	assert.Equal(t, "alice@test.cd", sess.User.Email)
	assert.Equal(t, "Alice Doe", sess.User.FullName())

	rec = f.do(t, newRequest(http.MethodPost, "/auth/v1/signup", "", body))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, core.CodeUserExists, decodeErr(t, rec).Code)

	rec = f.do(t, newRequest(http.MethodPost, "/auth/v1/signup", "", marshallObj(t, map[string]string{
		"email":    "bob@test.cd",
		"password": "password",
	})))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, core.CodeValidation, decodeErr(t, rec).Code)
}

func TestAuthAPI_token(t *testing.T) {
	f := setup(t)
	f.signIn(t, "alice@test.cd")

	tests := []httpTest{
		{
			name:     "wrong password",
			path:     "/auth/v1/token?grant_type=password",
			body:     marshallObj(t, map[string]string{"email": "alice@test.cd", "password": "nope"}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Code: core.CodeInvalidCredentials, Message: "Invalid login credentials"}),
		},
		{
			name:     "unknown email",
			path:     "/auth/v1/token?grant_type=password",
			body:     marshallObj(t, map[string]string{"email": "bob@test.cd", "password": testPassword}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Code: core.CodeInvalidCredentials, Message: "Invalid login credentials"}),
		},
		{
			name:     "missing refresh token",
			path:     "/auth/v1/token?grant_type=refresh_token",
			body:     marshallObj(t, map[string]string{}),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown refresh token",
			path:     "/auth/v1/token?grant_type=refresh_token",
			body:     marshallObj(t, map[string]string{"refresh_token": "nope"}),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unsupported grant",
			path:     "/auth/v1/token?grant_type=magic",
			body:     marshallObj(t, map[string]string{}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Code: "unsupported_grant_type", Message: "unsupported grant_type"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, newRequest(http.MethodPost, tt.path, "", tt.body))
			checkCodeAndData(t, tt, rec)
		})
	}
}

func TestAuthAPI_sessionLifecycle(t *testing.T) {
	f := setup(t)
	sess := f.signIn(t, "alice@test.cd")

	// user
	rec := f.do(t, newRequest(http.MethodGet, "/auth/v1/user", sess.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var usr core.SessionUser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usr))
	assert.Equal(t, sess.User.ID, usr.ID)

	// refresh rotates the refresh token
	refresh := func(token string) *core.Session {
		rec := f.do(t, newRequest(http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "",
			marshallObj(t, map[string]string{"refresh_token": token})))
		if rec.Code != http.StatusOK {
			return nil
		}
		var s core.Session
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
		return &s
	}
	renewed := refresh(sess.RefreshToken)
	require.NotNil(t, renewed)
	assert.NotEqual(t, sess.RefreshToken, renewed.RefreshToken)
	assert.Nil(t, refresh(sess.RefreshToken), "a rotated refresh token is single use")
	assert.Nil(t, refresh(renewed.RefreshToken), "reuse revokes every session of the user")

	// logout
	sess = f.signIn(t, "bob@test.cd")
	rec = f.do(t, newRequest(http.MethodPost, "/auth/v1/logout", sess.AccessToken))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, refresh(sess.RefreshToken))
}

func TestAuthAPI_invalidJWT(t *testing.T) {
	f := setup(t)

	rec := f.do(t, newRequest(http.MethodGet, "/auth/v1/user", ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, core.CodeInvalidJWT, decodeErr(t, rec).Code)

	rec = f.do(t, newRequest(http.MethodGet, "/auth/v1/user", "not.a.jwt"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, core.CodeInvalidJWT, decodeErr(t, rec).Code)
}

func TestAuthAPI_verify(t *testing.T) {
	f := setup(t, func(opts *auth.Options) { opts.RequireEmailConfirmation = true })

	rec := f.do(t, newRequest(http.MethodPost, "/auth/v1/signup?redirect_to="+url.QueryEscape("http://localhost:3000/cb"), "",
		marshallObj(t, map[string]string{"email": "alice@test.cd", "password": testPassword})))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body, "access_token")
	assert.Equal(t, "alice@test.cd", body["email"])

	// not confirmed yet
	rec = f.do(t, newRequest(http.MethodPost, "/auth/v1/token?grant_type=password", "",
		marshallObj(t, map[string]string{"email": "alice@test.cd", "password": testPassword})))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, core.CodeEmailNotConfirmed, decodeErr(t, rec).Code)

	sent := f.mailer.SentMessages()
	require.Len(t, sent, 1)
	m := confirmURLRe.FindStringSubmatch(sent[0].TextContent)
	require.Len(t, m, 2)

	rec = f.do(t, newRequest(http.MethodGet, m[1], ""))
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "localhost:3000", loc.Host)
	frag, err := url.ParseQuery(loc.Fragment)
	require.NoError(t, err)
	assert.NotEmpty(t, frag.Get("access_token"))
	assert.NotEmpty(t, frag.Get("refresh_token"))
	assert.Equal(t, "signup", frag.Get("type"))

	// links are single use
	rec = f.do(t, newRequest(http.MethodGet, m[1], ""))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err = url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	frag, err = url.ParseQuery(loc.Fragment)
	require.NoError(t, err)
	assert.Equal(t, "access_denied", frag.Get("error"))
	assert.Equal(t, "otp_expired", frag.Get("error_code"))
}

func TestAuthAPI_verifyForeignRedirect(t *testing.T) {
	f := setup(t, func(opts *auth.Options) { opts.RequireEmailConfirmation = true })

	rec := f.do(t, newRequest(http.MethodPost, "/auth/v1/signup?redirect_to="+url.QueryEscape("http://evil.test/steal"), "",
		marshallObj(t, map[string]string{"email": "alice@test.cd", "password": testPassword})))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sent := f.mailer.SentMessages()
	require.Len(t, sent, 1)
	m := confirmURLRe.FindStringSubmatch(sent[0].TextContent)
	require.Len(t, m, 2)

	rec = f.do(t, newRequest(http.MethodGet, m[1], ""))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "planner.test", loc.Host)
}

func TestAuthAPI_authorize(t *testing.T) {
	f := setup(t)
	rec := f.do(t, newRequest(http.MethodGet, "/auth/v1/authorize?provider=google", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decodeErr(t, rec).Code)

	f = setup(t, func(opts *auth.Options) {
		opts.Google = auth.GoogleConfig("client-id", "client-secret", "http://api.test/auth/v1/callback")
	})
	rec = f.do(t, newRequest(http.MethodGet, "/auth/v1/authorize?provider=google&redirect_to="+url.QueryEscape(siteURL+"/home"), ""))
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", loc.Host)
	assert.Equal(t, "client-id", loc.Query().Get("client_id"))
	assert.NotEmpty(t, loc.Query().Get("state"))
}

func TestAuthAPI_callbackDenied(t *testing.T) {
	f := setup(t)
	rec := f.do(t, newRequest(http.MethodGet, "/auth/v1/callback?error=access_denied&error_description=denied", ""))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "planner.test", loc.Host)
	frag, err := url.ParseQuery(loc.Fragment)
	require.NoError(t, err)
	assert.Equal(t, "denied", frag.Get("error_description"))

	rec = f.do(t, newRequest(http.MethodGet, "/auth/v1/callback?code=x&state=forged", ""))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err = url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	frag, err = url.ParseQuery(loc.Fragment)
	require.NoError(t, err)
	assert.Equal(t, "bad_oauth_state", frag.Get("error_code"))
}

func TestAuthAPI_recover(t *testing.T) {
	f := setup(t)
	sess := f.signIn(t, "alice@test.cd")

	for _, email := range []string{"nobody@test.cd", "alice@test.cd"} {
		rec := f.do(t, newRequest(http.MethodPost, "/auth/v1/recover?redirect_to="+url.QueryEscape(siteURL+"/reset"), "",
			marshallObj(t, map[string]string{"email": email})))
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	sent := f.mailer.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice@test.cd", sent[0].To[0].Address)

	rec := f.do(t, newRequest(http.MethodPost, "/auth/v1/recover", "", marshallObj(t, map[string]string{})))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// choose a new password
	rec = f.do(t, newRequest(http.MethodPut, "/auth/v1/user", sess.AccessToken, marshallObj(t, map[string]interface{}{
		"password": "N3w!Secret#42",
		"data":     map[string]string{"full_name": "Alice Doe"},
	})))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var usr core.SessionUser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usr))
	assert.Equal(t, "Alice Doe", usr.FullName())

	rec = f.do(t, newRequest(http.MethodPost, "/auth/v1/token?grant_type=password", "",
		marshallObj(t, map[string]string{"email": "alice@test.cd", "password": "N3w!Secret#42"})))
	assert.Equal(t, http.StatusOK, rec.Code)
}
