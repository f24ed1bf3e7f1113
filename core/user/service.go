package user

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/trezcool/studyplanner/core"
)

var (
	// errors
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("a user with this email already exists")
)

type (
	Repository interface {
		// CreateUser fails with ErrEmailExists when the email is taken.
		CreateUser(ctx context.Context, usr User) (User, error)
		// GetUser fails with ErrNotFound when no User matches.
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		QueryAllUsers(ctx context.Context) ([]User, error)
		// UpdateUser saves every field of usr but ID and CreatedAt.
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) checkUniqueness(email string) error {
	_, err := svc.repo.GetUser(context.Background(), GetFilter{Email: email})
	switch err {
	case nil:
		return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	case ErrNotFound:
		return nil
	default:
		return err
	}
}

// Create signs up a new email/password User. confirmed skips the email confirmation step.
func (svc *Service) Create(ctx context.Context, nu NewUser, confirmed bool) (User, error) {
	now := core.NowUTC()
	usr := User{
		ID:        uuid.NewString(),
		FullName:  nu.FullName,
		Email:     nu.Email,
		Provider:  ProviderEmail,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if confirmed {
		usr.EmailConfirmedAt = now
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

// GetOrCreateExternal returns the User owning email, creating a confirmed, password-less one
// on first sign-in through an identity provider.
func (svc *Service) GetOrCreateExternal(ctx context.Context, provider, email, name string) (User, error) {
	email = core.CleanString(email, true /* lower */)
	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: email})
	switch err {
	case nil:
		if !usr.IsConfirmed() {
			usr.EmailConfirmedAt = core.NowUTC()
			return svc.repo.UpdateUser(ctx, usr)
		}
		return usr, nil
	case ErrNotFound:
		now := core.NowUTC()
		return svc.repo.CreateUser(ctx, User{
			ID:               uuid.NewString(),
			FullName:         core.CleanString(name),
			Email:            email,
			Provider:         provider,
			IsActive:         true,
			EmailConfirmedAt: now,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	default:
		return User{}, err
	}
}

func (svc *Service) QueryAll(ctx context.Context) ([]User, error) {
	return svc.repo.QueryAllUsers(ctx)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	if uu.FullName != nil {
		usr.FullName = *uu.FullName
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, err
		}
	}
	usr.UpdatedAt = core.NowUTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) Confirm(ctx context.Context, usr User) (User, error) {
	if usr.IsConfirmed() {
		return usr, nil
	}
	now := core.NowUTC()
	usr.EmailConfirmedAt = now
	usr.UpdatedAt = now
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = core.NowUTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}
