package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/study"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp        = errors.New("help provided")
	errNotSignedIn = errors.New("not signed in: run `planner login` first")
)

type commandLine struct {
	p   *planner
	out io.Writer
	now func() time.Time // mockable
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  login -email EMAIL                     - sign in (the password is prompted)")
	fmt.Fprintln(cli.out, "  signup -email EMAIL [-name NAME]       - create an account")
	fmt.Fprintln(cli.out, "  oauth [-provider google] [-redirect URL] - print the URL to sign in with a provider")
	fmt.Fprintln(cli.out, "  callback URL                           - finish a sign-in from the URL the browser landed on")
	fmt.Fprintln(cli.out, "  recover -email EMAIL                   - email a password reset link")
	fmt.Fprintln(cli.out, "  passwd                                 - change the password")
	fmt.Fprintln(cli.out, "  logout                                 - sign out")
	fmt.Fprintln(cli.out, "  status                                 - show the current session")
	fmt.Fprintln(cli.out, "  dashboard                              - overview of what is due")
	fmt.Fprintln(cli.out, "  homework list|add|status|delete")
	fmt.Fprintln(cli.out, "  events list|add|delete")
	fmt.Fprintln(cli.out, "  grades list|add|delete")
	fmt.Fprintln(cli.out, "  timetable show|set|clear")
}

// run restores the session, loads the collections then runs the command named by args[1].
func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	if err := cli.p.start(ctx); err != nil {
		return err
	}
	defer cli.p.stop()

	cmd, args := args[1], args[2:]
	var err error
	switch cmd {
	case "login":
		err = cli.login(ctx, args)
	case "signup":
		err = cli.signUp(ctx, args)
	case "oauth":
		err = cli.oauth(ctx, args)
	case "callback":
		err = cli.callback(ctx, args)
	case "recover":
		err = cli.recoverPassword(ctx, args)
	case "passwd":
		err = cli.passwd(ctx, args)
	case "logout":
		err = cli.logout(ctx, args)
	case "status":
		err = cli.status(ctx, args)
	case "dashboard":
		err = cli.dashboard(args)
	case "homework":
		err = cli.homework(ctx, args)
	case "events":
		err = cli.events(ctx, args)
	case "grades":
		err = cli.grades(ctx, args)
	case "timetable":
		err = cli.timetable(ctx, args)
	default:
		cli.printUsage()
		return errHelp
	}
	if errors.Is(err, flag.ErrHelp) {
		return errHelp
	}
	return err
}

func (cli *commandLine) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

// subcommand splits args into the action and its own args, printing usage when there is none.
func (cli *commandLine) subcommand(name string, args []string, actions ...string) (string, []string, error) {
	if len(args) == 0 || !contains(actions, args[0]) {
		fmt.Fprintf(cli.out, "Usage: %s %s\n", name, strings.Join(actions, "|"))
		return "", nil, errHelp
	}
	return args[0], args[1:], nil
}

func (cli *commandLine) promptPassword(prompt string) (string, error) {
	fmt.Fprint(cli.out, prompt)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

// describe renders err for the user: the store error slot when it holds one, the failing fields of
// a validation error, the error itself otherwise.
func describe(err error, store *study.Store) string {
	var vErr *core.ValidationError
	if errors.As(err, &vErr) && len(vErr.Fields) > 0 {
		msgs := make([]string, 0, len(vErr.Fields))
		for _, f := range vErr.Fields {
			msgs = append(msgs, f.Field+": "+f.Error)
		}
		return "invalid input: " + strings.Join(msgs, "; ")
	}
	if store != nil {
		if msg := store.Err(); msg != "" {
			return msg
		}
	}
	var sErr *study.Error
	if errors.As(err, &sErr) {
		return sErr.Message
	}
	return err.Error()
}

// matchOption returns the option equal to s, ignoring case, or s itself.
func matchOption(options []string, s string) string {
	for _, opt := range options {
		if strings.EqualFold(opt, strings.TrimSpace(s)) {
			return opt
		}
	}
	return s
}

// resolveID expands a full or abbreviated ID among ids.
func resolveID(ids []string, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", errors.New("missing ID")
	}
	var found []string
	for _, id := range ids {
		if id == prefix {
			return id, nil
		}
		if strings.HasPrefix(id, prefix) {
			found = append(found, id)
		}
	}
	switch len(found) {
	case 0:
		return "", errors.Errorf("no item with ID %q", prefix)
	case 1:
		return found[0], nil
	default:
		return "", errors.Errorf("ID %q is ambiguous", prefix)
	}
}
