package auth_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/auth"
)

func TestService_RequestRecovery(t *testing.T) {
	ctx := context.Background()
	f := setup(t, auth.Options{})
	_, usr := f.signUp(t, "alice@test.cd")

	require.NoError(t, f.svc.RequestRecovery(ctx, "nobody@test.cd", ""))
	assert.Empty(t, f.mailer.SentMessages())

	require.NoError(t, f.svc.RequestRecovery(ctx, "Alice@Test.cd", "planner://reset"))
	sent := f.mailer.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "reset_password", sent[0].TemplateName)
	link := sent[0].TemplateData.(map[string]interface{})["ResetURL"].(string)
	assert.Contains(t, sent[0].TextContent, link)

	u, err := url.Parse(link)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, auth.VerifyRecovery, q.Get("type"))
	assert.Equal(t, "planner://reset", q.Get("redirect_to"))

	sess, err := f.svc.Verify(ctx, q.Get("uid"), q.Get("token"))
	require.NoError(t, err)
	assert.Equal(t, usr.ID, sess.User.ID)

	// links are single use
	_, err = f.svc.Verify(ctx, q.Get("uid"), q.Get("token"))
	assertBackendError(t, auth.ErrInvalidConfirmation, err)
}

func TestService_UpdateUser(t *testing.T) {
	ctx := context.Background()
	f := setup(t, auth.Options{})
	sess, usr := f.signUp(t, "alice@test.cd")

	t.Run("weak password", func(t *testing.T) {
		_, err := f.svc.UpdateUser(ctx, usr.ID, auth.UserAttributes{Password: "short"})
		var vErr *core.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := f.svc.UpdateUser(ctx, "6f1d3c4e-8a31-4a4e-9a0e-2b7f0c5d9e11", auth.UserAttributes{})
		assertBackendError(t, auth.ErrInvalidJWT, err)
	})

	updated, err := f.svc.UpdateUser(ctx, usr.ID, auth.UserAttributes{
		Password: "N3w!Secret#42",
		Data:     map[string]interface{}{"full_name": "  Alice Smith "},
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", updated.FullName)

	_, err = f.svc.PasswordGrant(ctx, "alice@test.cd", testPassword)
	assertBackendError(t, auth.ErrInvalidCredentials, err)
	_, err = f.svc.PasswordGrant(ctx, "alice@test.cd", "N3w!Secret#42")
	assert.NoError(t, err)

	// the current session survives
	_, err = f.svc.RefreshGrant(ctx, sess.RefreshToken)
	assert.NoError(t, err)
}
