package echoapi

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/auth"
	"github.com/trezcool/studyplanner/core/user"
)

const contextTokenKey = "userToken"

var errUnsupportedGrant = &core.BackendError{
	Status: http.StatusBadRequest, Code: "unsupported_grant_type", Message: "unsupported grant_type",
}

// newJWTConfig verifies access tokens issued by svc.
func newJWTConfig(svc *auth.Service) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    svc.SigningKey(),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(auth.Claims),
		ErrorHandler: func(err error) error {
			if err == middleware.ErrJWTMissing {
				return err
			}
			return auth.ErrInvalidJWT
		},
	}
}

func getContextClaims(ctx echo.Context) (auth.Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*auth.Claims); ok {
			return *claims, nil
		}
	}
	return auth.Claims{}, auth.ErrInvalidJWT
}

type (
	authApi struct {
		svc     *auth.Service
		siteURL string
	}

	signUpRequest struct {
		Email    string                 `json:"email"`
		Password string                 `json:"password"`
		Data     map[string]interface{} `json:"data"`
	}

	tokenRequest struct {
		Email        string `json:"email"`
		Password     string `json:"password"`
		RefreshToken string `json:"refresh_token"`
	}

	recoverRequest struct {
		Email string `json:"email"`
	}
)

func registerAuthAPI(g *echo.Group, key, jwt echo.MiddlewareFunc, svc *auth.Service, siteURL string) {
	api := authApi{svc: svc, siteURL: siteURL}

	// browser redirects carry no api key
	g.GET("/verify", api.verify)
	g.GET("/authorize", api.authorize)
	g.GET("/callback", api.callback)

	kg := g.Group("", key)
	kg.POST("/signup", api.signUp)
	kg.POST("/token", api.token)
	kg.POST("/recover", api.recover)

	ag := kg.Group("", jwt)
	ag.GET("/user", api.user)
	ag.PUT("/user", api.updateUser)
	ag.POST("/logout", api.logout)
}

// Handlers

func (api *authApi) signUp(ctx echo.Context) error {
	var data signUpRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to signUpRequest")
	}
	nu := user.NewUser{Email: data.Email, Password: data.Password}
	if name, ok := data.Data["full_name"].(string); ok {
		nu.FullName = name
	}

	sess, usr, err := api.svc.SignUp(ctx.Request().Context(), nu, api.redirectTarget(ctx.QueryParam("redirect_to")))
	if err != nil {
		return err
	}
	if sess == nil { // awaiting email confirmation
		return ctx.JSON(http.StatusOK, usr.SessionUser())
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *authApi) token(ctx echo.Context) error {
	var data tokenRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to tokenRequest")
	}

	var (
		sess *core.Session
		err  error
	)
	switch ctx.QueryParam("grant_type") {
	case "password":
		if data.Email == "" || data.Password == "" {
			return auth.ErrInvalidCredentials
		}
		sess, err = api.svc.PasswordGrant(ctx.Request().Context(), core.CleanString(data.Email, true /* lower */), data.Password)
	case "refresh_token":
		if data.RefreshToken == "" {
			return auth.ErrRefreshTokenNotFound
		}
		sess, err = api.svc.RefreshGrant(ctx.Request().Context(), data.RefreshToken)
	default:
		return errUnsupportedGrant
	}
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *authApi) user(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	usr, err := api.svc.GetUser(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr.SessionUser())
}

func (api *authApi) updateUser(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data auth.UserAttributes
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UserAttributes")
	}
	usr, err := api.svc.UpdateUser(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr.SessionUser())
}

// recover always succeeds, whether an account matches or not.
func (api *authApi) recover(ctx echo.Context) error {
	var data recoverRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to recoverRequest")
	}
	if data.Email == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "email", Error: "email is a required field"})
	}
	err := api.svc.RequestRecovery(ctx.Request().Context(), data.Email, api.redirectTarget(ctx.QueryParam("redirect_to")))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{})
}

func (api *authApi) logout(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.SignOut(ctx.Request().Context(), claims.Subject); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *authApi) verify(ctx echo.Context) error {
	target := api.redirectTarget(ctx.QueryParam("redirect_to"))
	sess, err := api.svc.Verify(ctx.Request().Context(), ctx.QueryParam("uid"), ctx.QueryParam("token"))
	if err != nil {
		return api.redirectError(ctx, target, err)
	}
	return api.redirectSession(ctx, target, sess, ctx.QueryParam("type"))
}

func (api *authApi) authorize(ctx echo.Context) error {
	u, err := api.svc.AuthorizeURL(ctx.QueryParam("provider"), api.redirectTarget(ctx.QueryParam("redirect_to")))
	if err != nil {
		return err
	}
	return ctx.Redirect(http.StatusFound, u)
}

func (api *authApi) callback(ctx echo.Context) error {
	if e := ctx.QueryParam("error"); e != "" { // consent denied at the provider
		desc := ctx.QueryParam("error_description")
		if desc == "" {
			desc = e
		}
		return api.redirectError(ctx, api.siteURL, &core.BackendError{
			Status: http.StatusBadRequest, Code: e, Message: desc,
		})
	}

	sess, target, err := api.svc.OAuthCallback(ctx.Request().Context(), ctx.QueryParam("code"), ctx.QueryParam("state"))
	if target == "" {
		target = api.siteURL
	}
	if err != nil {
		return api.redirectError(ctx, target, err)
	}
	return api.redirectSession(ctx, target, sess, "")
}

// redirectTarget returns redirectTo when it is allowed, else the site URL. Without a site URL any
// target is allowed; with one, only targets on its host or on a loopback host are.
func (api *authApi) redirectTarget(redirectTo string) string {
	switch {
	case redirectTo == "":
		return api.siteURL
	case api.siteURL == "":
		return redirectTo
	}
	target, err := url.Parse(redirectTo)
	if err != nil {
		return api.siteURL
	}
	site, err := url.Parse(api.siteURL)
	if err != nil {
		return api.siteURL
	}
	switch target.Hostname() {
	case site.Hostname(), "localhost", "127.0.0.1", "::1":
		return redirectTo
	}
	return api.siteURL
}

// redirectSession hands sess over to the client in the fragment of target.
func (api *authApi) redirectSession(ctx echo.Context, target string, sess *core.Session, typ string) error {
	if target == "" {
		return ctx.JSON(http.StatusOK, sess)
	}
	v := make(url.Values)
	v.Set("access_token", sess.AccessToken)
	v.Set("refresh_token", sess.RefreshToken)
	v.Set("token_type", sess.TokenType)
	v.Set("expires_in", strconv.FormatInt(sess.ExpiresIn, 10))
	v.Set("expires_at", strconv.FormatInt(sess.ExpiresAt, 10))
	if typ != "" {
		v.Set("type", typ)
	}
	return ctx.Redirect(http.StatusSeeOther, withFragment(target, v))
}

// redirectError reports err in the fragment of target. Unexpected errors go through the error handler.
func (api *authApi) redirectError(ctx echo.Context, target string, err error) error {
	bErr, ok := errors.Cause(err).(*core.BackendError)
	if !ok || target == "" {
		return err
	}
	v := make(url.Values)
	v.Set("error", "access_denied")
	v.Set("error_code", bErr.Code)
	v.Set("error_description", bErr.Message)
	return ctx.Redirect(http.StatusSeeOther, withFragment(target, v))
}

func withFragment(target string, v url.Values) string {
	if i := strings.IndexByte(target, '#'); i >= 0 {
		target = target[:i]
	}
	return target + "#" + v.Encode()
}
