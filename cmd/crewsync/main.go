// Command crewsync keeps a local copy of a crew dashboard in sync with
// its API and shows it in the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nhle/crewsync/internal/app"
	"github.com/nhle/crewsync/internal/logging"
	"github.com/nhle/crewsync/internal/model"
	"github.com/nhle/crewsync/internal/ui/login"
)

const usage = `Usage: crewsync [flags] [command]

Commands:
  run      sync and open the dashboard (default)
  login    sign in, or create an account with --signup
  logout   sign out on this machine
  status   print the session and sync state

Flags:
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, login.ErrAborted) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, "crewsync:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// A missing .env is fine.
	_ = godotenv.Load()

	flags := pflag.NewFlagSet("crewsync", pflag.ContinueOnError)
	configPath := flags.String("config", model.DefaultConfigPath(), "path to the config file")
	flags.String("api-url", "", "base URL of the crew API")
	flags.String("db", "", "path to the local SQLite store")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	headless := flags.Bool("headless", false, "sync without the dashboard, logging changes to stderr")
	signup := flags.Bool("signup", false, "create an account instead of signing in (login only)")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := model.LoadConfig(*configPath, flags)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error(context.Background(), "shutting down", "err", err)
		}
	}()

	command := "run"
	if flags.NArg() > 0 {
		command = flags.Arg(0)
	}

	switch command {
	case "run":
		if *headless {
			return a.RunHeadless(ctx)
		}
		return a.RunDashboard(ctx)
	case "login":
		return loginCmd(ctx, a, *signup)
	case "logout":
		if err := a.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("Signed out.")
		return nil
	case "status":
		return statusCmd(ctx, a)
	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func loginCmd(ctx context.Context, a *app.App, signup bool) error {
	mode := login.ModeLogin
	if signup {
		mode = login.ModeSignup
	}
	creds, err := login.Prompt(ctx, mode)
	if err != nil {
		return err
	}

	if signup {
		err = a.Signup(ctx, creds.Name, creds.Email, creds.Password, creds.Role)
	} else {
		err = a.Login(ctx, creds.Email, creds.Password)
	}
	if err != nil {
		return err
	}

	u := a.Session().State().User
	fmt.Printf("Signed in as %s (%s).\n", u.Name, u.Role)
	return nil
}

func statusCmd(ctx context.Context, a *app.App) error {
	if err := a.Session().Restore(ctx); err != nil {
		return err
	}

	st := a.Session().State()
	if st.User == nil {
		fmt.Println("Not signed in.")
	} else {
		fmt.Printf("Signed in as %s <%s> (%s)\n", st.User.Name, st.User.Email, st.User.Role)
	}

	for _, s := range a.Statuses() {
		fmt.Printf("%-14s %4d items", s.Name, s.Items)
		if s.Pending > 0 {
			fmt.Printf(", %d pending", s.Pending)
		}
		if s.Failed > 0 {
			fmt.Printf(", %d failed", s.Failed)
		}
		fmt.Println()
	}
	return nil
}
