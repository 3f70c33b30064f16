package app

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"warden/cmd/identity"
	"warden/cmd/security/password"
)

// ErrUsage reports a bad command line.
var ErrUsage = errors.New("usage error")

const usage = `usage: warden <command> [flags]

commands:
  migrate                 apply the identity and audit schema to the configured store
  fingerprint <value>     print the lookup fingerprint of an identifier
  hash                    read a secret from stdin and print its password hash
  sweep --account N       discard every cookie session of an account
`

// IO bundles the streams a command reads and writes.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Run is the CLI entrypoint used by cmd/warden.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run(args []string, stdio IO) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(args) == 0 {
		_, _ = io.WriteString(stdio.Err, usage)
		return ErrUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "fingerprint":
		return runFingerprint(rest, stdio)
	case "hash":
		return runHash(stdio)
	case "migrate", "sweep":
	case "help", "-h", "--help":
		_, _ = io.WriteString(stdio.Out, usage)
		return nil
	default:
		_, _ = io.WriteString(stdio.Err, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}

	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	log := NewLogger(stdio.Err, cfg.LogLevel, cfg.LogFormat)

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("app.close.fail", "err", err)
		}
	}()

	if cmd == "migrate" {
		return a.Migrate(ctx)
	}
	return runSweep(ctx, a, rest, stdio)
}

func runFingerprint(args []string, stdio IO) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("%w: fingerprint takes exactly one value", ErrUsage)
	}
	std := identity.NewStandard(args[0], time.Time{})
	_, err := fmt.Fprintln(stdio.Out, std.Fingerprint())
	return err
}

func runHash(stdio IO) error {
	pw, err := password.FromEnv()
	if err != nil {
		return err
	}
	sc := bufio.NewScanner(stdio.In)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w: hash reads the secret from stdin", ErrUsage)
	}
	hash, err := pw.Hash(strings.TrimRight(sc.Text(), "\r"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdio.Out, hash)
	return err
}

func runSweep(ctx context.Context, a *App, args []string, stdio IO) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(stdio.Err)
	account := fs.Int64("account", 0, "account id")
	if err := fs.Parse(args); err != nil {
		return errors.Join(ErrUsage, err)
	}
	if *account <= 0 {
		return fmt.Errorf("%w: sweep requires --account", ErrUsage)
	}

	n, err := a.Sessions.DiscardAll(ctx, time.Now().UTC(), *account)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdio.Out, "discarded %d session(s) for account %d\n", n, *account)
	return err
}
