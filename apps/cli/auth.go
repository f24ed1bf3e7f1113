package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/studyplanner/storage/backend/rest"
)

func (cli *commandLine) login(ctx context.Context, args []string) error {
	fs := cli.flagSet("login")
	email := fs.String("email", "", "The account's email. The password will be prompted next.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		fs.Usage()
		return errHelp
	}
	pwd, err := cli.promptPassword("Password:")
	if err != nil {
		return err
	}
	if pwd == "" {
		fs.Usage()
		return errHelp
	}

	sess, err := cli.p.auth.SignIn(ctx, *email, pwd)
	if err != nil {
		return err
	}
	printSuccess(cli.out, "Signed in as %s", sess.User.Email)
	return cli.p.lastLoadErr()
}

func (cli *commandLine) signUp(ctx context.Context, args []string) error {
	fs := cli.flagSet("signup")
	email := fs.String("email", "", "The account's email. The password will be prompted next.")
	name := fs.String("name", "", "Your full name.")
	redirect := fs.String("redirect", "", "Where the confirmation link leads.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		fs.Usage()
		return errHelp
	}
	pwd, err := cli.promptPassword("Password:")
	if err != nil {
		return err
	}
	if pwd == "" {
		fs.Usage()
		return errHelp
	}

	sess, err := cli.p.auth.SignUp(ctx, *email, pwd, *redirect)
	if err != nil {
		return err
	}
	if sess == nil {
		printSuccess(cli.out, "Check your inbox: a confirmation link was sent to %s", *email)
		return nil
	}
	if *name != "" {
		if _, err = cli.p.client.UpdateUser(ctx, rest.UserAttributes{FullName: *name}); err != nil {
			cli.p.logger.Warn("setting full name failed", err)
		}
	}
	printSuccess(cli.out, "Welcome %s, you are signed in", sess.User.Email)
	return cli.p.lastLoadErr()
}

func (cli *commandLine) oauth(ctx context.Context, args []string) error {
	fs := cli.flagSet("oauth")
	provider := fs.String("provider", "google", "The identity provider.")
	redirect := fs.String("redirect", "", "Where the provider sends the browser back to.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	u, err := cli.p.auth.SignInWithOAuth(ctx, *provider, *redirect)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, "Open this URL in your browser to sign in:")
	fmt.Fprintln(cli.out, u)
	fmt.Fprintln(cli.out, subtitleStyle.Render("Then run `planner callback URL` with the URL you land on."))
	return nil
}

func (cli *commandLine) callback(ctx context.Context, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(cli.out, "Usage: callback URL")
		return errHelp
	}
	sess, err := cli.p.auth.CompleteSignIn(ctx, args[0])
	if err != nil {
		return err
	}
	printSuccess(cli.out, "Signed in as %s", sess.User.Email)
	return cli.p.lastLoadErr()
}

func (cli *commandLine) recoverPassword(ctx context.Context, args []string) error {
	fs := cli.flagSet("recover")
	email := fs.String("email", "", "The account's email.")
	redirect := fs.String("redirect", "", "Where the reset link leads.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		fs.Usage()
		return errHelp
	}
	if err := cli.p.client.ResetPasswordForEmail(ctx, *email, *redirect); err != nil {
		return errors.Wrap(err, "requesting password reset")
	}
	printSuccess(cli.out, "If %s has an account, a reset link is on its way", *email)
	return nil
}

func (cli *commandLine) passwd(ctx context.Context, _ []string) error {
	if _, err := cli.p.requireUser(); err != nil {
		return err
	}
	pwd, err := cli.promptPassword("New password:")
	if err != nil {
		return err
	}
	if pwd == "" {
		return errHelp
	}
	confirm, err := cli.promptPassword("Confirm password:")
	if err != nil {
		return err
	}
	if confirm != pwd {
		return errors.New("passwords do not match")
	}
	if _, err = cli.p.client.UpdateUser(ctx, rest.UserAttributes{Password: pwd}); err != nil {
		return errors.Wrap(err, "changing password")
	}
	printSuccess(cli.out, "Password changed")
	return nil
}

func (cli *commandLine) logout(ctx context.Context, _ []string) error {
	if cli.p.auth.User() == nil {
		fmt.Fprintln(cli.out, subtitleStyle.Render("Not signed in."))
		return nil
	}
	if err := cli.p.auth.SignOut(ctx); err != nil {
		return err
	}
	printSuccess(cli.out, "Signed out")
	return nil
}

func (cli *commandLine) status(_ context.Context, _ []string) error {
	sess := cli.p.auth.Session()
	if sess == nil {
		fmt.Fprintln(cli.out, "Not signed in.")
		fmt.Fprintln(cli.out, subtitleStyle.Render("session: "+cli.p.manager.State().String()))
		return nil
	}
	name := sess.User.FullName()
	if name == "" {
		name = sess.User.Email
	}
	fmt.Fprintf(cli.out, "Signed in as %s <%s>\n", name, sess.User.Email)
	fmt.Fprintln(cli.out, subtitleStyle.Render("session: "+cli.p.manager.State().String()))
	if sess.ExpiresAt > 0 {
		exp := time.Unix(sess.ExpiresAt, 0)
		fmt.Fprintln(cli.out, subtitleStyle.Render("access token expires "+exp.Local().Format(time.RFC1123)))
	}
	fmt.Fprintf(cli.out, "%d homework, %d events, %d grades, %d classes\n",
		len(cli.p.store.Homework()), len(cli.p.store.CalendarEvents()), len(cli.p.store.Grades()), len(cli.p.store.Timetable()))
	return nil
}

func (cli *commandLine) dashboard(_ []string) error {
	usr, err := cli.p.requireUser()
	if err != nil {
		return err
	}
	name := usr.FullName()
	if name == "" {
		name = usr.Email
	}
	renderSummary(cli.out, name, cli.p.store.Summary(cli.now()))
	return nil
}
