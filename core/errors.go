package core

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			msgs := make([]string, 0, len(err.Fields))
			for _, f := range err.Fields {
				msgs = append(msgs, f.Field+": "+f.Error)
			}
			return strings.Join(msgs, "; ")
		}
		return ""
	}
	return err.Err.Error()
}

// BackendError is an error reported by the remote backend (auth or tables).
type BackendError struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (err *BackendError) Error() string {
	if err.Code != "" {
		return fmt.Sprintf("%s (%s)", err.Message, err.Code)
	}
	return err.Message
}

// Backend error codes shared by the API server and its clients.
const (
	CodeRefreshTokenNotFound = "refresh_token_not_found"
	CodeInvalidRefreshToken  = "invalid_refresh_token"
	CodeInvalidJWT           = "invalid_jwt"
	CodeInvalidCredentials   = "invalid_credentials"
	CodeEmailNotConfirmed    = "email_not_confirmed"
	CodeUserExists           = "user_already_exists"
	CodeUnknownTable         = "unknown_table"
	CodeUnknownColumn        = "unknown_column"
	CodeConflict             = "conflict"
	CodeNotFound             = "not_found"
	CodeValidation           = "validation_failed"
)

// ErrorKind is the closed set of failure classes the client reacts to.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindSessionFatal
	KindConfiguration
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindSessionFatal:
		return "session-fatal"
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	default:
		return "transient"
	}
}

type configurationError struct {
	message string
}

func NewConfigurationError(msg string) error {
	return &configurationError{message: msg}
}

func (err configurationError) Error() string {
	return err.message
}

// sessionFatalMarkers are matched (lower-cased) against messages and codes of errors that mean
// the stored session can no longer be renewed.
var sessionFatalMarkers = []string{
	"invalid refresh token",
	"refresh token not found",
	CodeRefreshTokenNotFound,
}

// IsSessionFatal reports whether err means that the persisted session must be discarded.
func IsSessionFatal(err error) bool {
	if err == nil {
		return false
	}
	var bErr *BackendError
	if errors.As(err, &bErr) {
		code := strings.ToLower(bErr.Code)
		if code == CodeRefreshTokenNotFound || code == CodeInvalidRefreshToken {
			return true
		}
		return containsAny(strings.ToLower(bErr.Message), sessionFatalMarkers)
	}
	return containsAny(strings.ToLower(err.Error()), sessionFatalMarkers)
}

// KindOf classifies err. It is the single place where foreign error shapes are mapped onto ErrorKind.
func KindOf(err error) ErrorKind {
	if IsSessionFatal(err) {
		return KindSessionFatal
	}

	var (
		cfgErr *configurationError
		valErr *ValidationError
		vErrs  validator.ValidationErrors
	)
	switch {
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &valErr), errors.As(err, &vErrs):
		return KindValidation
	}
	return KindTransient
}

func containsAny(s string, markers []string) bool {
	if s == "" {
		return false
	}
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
