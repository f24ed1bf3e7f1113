package auth

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/user"
)

// Types of emailed verification links.
const (
	VerifySignUp   = "signup"
	VerifyRecovery = "recovery"
)

// RequestRecovery emails a sign-in link to the owner of email, so that they can choose a new
// password. Unknown or deactivated accounts are ignored silently.
func (svc *Service) RequestRecovery(ctx context.Context, email, redirectTo string) error {
	usr, err := svc.users.GetByEmail(ctx, email)
	if err != nil {
		if err == user.ErrNotFound {
			return nil
		}
		return errors.Wrap(err, "finding user by email")
	}
	if !usr.IsActive {
		return nil
	}

	svc.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName, Address: usr.Email}},
		Subject:      "Reset your password",
		TemplateName: "reset_password",
		TemplateData: map[string]interface{}{
			"ResetURL":  svc.verifyURL(usr, VerifyRecovery, redirectTo),
			"ValidDays": svc.tokenGen.ValidDays(),
		},
	})
	return nil
}

// UserAttributes are the account fields a signed in User may change.
type UserAttributes struct {
	Password string                 `json:"password"`
	Data     map[string]interface{} `json:"data"`
}

// UpdateUser applies attrs to the account of usrID. Existing sessions stay valid.
func (svc *Service) UpdateUser(ctx context.Context, usrID string, attrs UserAttributes) (user.User, error) {
	usr, err := svc.GetUser(ctx, usrID)
	if err != nil {
		return user.User{}, err
	}

	var uu user.UpdateUser
	if name, ok := attrs.Data["full_name"].(string); ok {
		uu.FullName = &name
	}
	uu.Password = attrs.Password
	if err = uu.Validate(usr); err != nil {
		return user.User{}, err
	}
	if usr, err = svc.users.Update(ctx, usr, uu); err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return usr, nil
}
