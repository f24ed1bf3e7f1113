package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/studyplanner/core/user"
)

// addUser creates a confirmed user.User, or reactivates the existing one with a new password.
func (cli *commandLine) addUser(email, name, pwd string) error {
	ctx := context.Background()

	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	switch {
	case err == nil:
		active := true
		uu := user.UpdateUser{IsActive: &active, Password: pwd}
		if name != "" {
			uu.FullName = &name
		}
		if err = uu.Validate(usr); err != nil {
			return err
		}
		if _, err = cli.usrSvc.Update(ctx, usr, uu); err != nil {
			return err
		}
		if _, err = cli.usrSvc.Confirm(ctx, usr); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "updated user %s\n", usr.ID)
		return nil
	case errors.Is(err, user.ErrNotFound):
		nu := user.NewUser{FullName: name, Email: email, Password: pwd}
		if err = nu.Validate(cli.usrSvc); err != nil {
			return err
		}
		if usr, err = cli.usrSvc.Create(ctx, nu, true /* confirmed */); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "created user %s\n", usr.ID)
		return nil
	default:
		return err
	}
}
