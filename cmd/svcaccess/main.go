// svcaccess runs the periodic jobs of the access lifecycle and administers its storage.
//
// Usage:
//
//	svcaccess [--env-file .env] [-v level] <command> [flags]
//
// Commands:
//
//	migrate            create missing tables and the indexes of the configured policy
//	sync-access        disable behaviours of lapsed grants, --all re-syncs every active grant
//	notify-expiry      warn users about expiring and expired grants
//	remind-pending     remind approvers of requests waiting too long
//	create-ldap-group  create a posix group in the directory from a group model
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/stdr"
	"github.com/spf13/pflag"

	"github.com/supremind/svcaccess/config"
)

func main() {
	if e := run(os.Args[1:]); e != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", e)
		os.Exit(1)
	}
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, env *environment, args []string) error
}

var commands = []command{
	{"migrate", "create missing tables and the indexes of the configured policy", runMigrate},
	{"sync-access", "disable behaviours of lapsed grants", runSyncAccess},
	{"notify-expiry", "warn users about expiring and expired grants", runNotifyExpiry},
	{"remind-pending", "remind approvers of requests waiting too long", runRemindPending},
	{"create-ldap-group", "create a posix group from a group model", runCreateLdapGroup},
}

func run(args []string) error {
	var (
		envFile   string
		verbosity int
	)
	flags := pflag.NewFlagSet("svcaccess", pflag.ContinueOnError)
	flags.StringVar(&envFile, "env-file", ".env", "file of SVCACCESS_* variables, skipped if missing")
	flags.IntVarP(&verbosity, "verbosity", "v", 0, "log verbosity, 4 traces every decision")
	flags.SetInterspersed(false)
	flags.Usage = func() { printUsage(flags) }

	if e := flags.Parse(args); e != nil {
		if errors.Is(e, pflag.ErrHelp) {
			return nil
		}
		return e
	}
	if flags.NArg() == 0 {
		printUsage(flags)
		return errors.New("missing command")
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == flags.Arg(0) {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		return fmt.Errorf("unknown command %q", flags.Arg(0))
	}

	stdr.SetVerbosity(verbosity)
	l := stdr.New(log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile)).WithName(cmd.name)

	cfg, e := config.Load(envFile)
	if e != nil {
		return e
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := &environment{cfg: cfg, log: l}
	defer env.close()

	return cmd.run(ctx, env, flags.Args()[1:])
}

func printUsage(flags *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "usage: svcaccess [flags] <command> [command flags]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-18s %s\n", c.name, c.usage)
	}
	fmt.Fprintf(os.Stderr, "\nflags:\n%s", flags.FlagUsages())
}

// parse parses the flags of a command, which takes no positional arguments
func parse(flags *pflag.FlagSet, args []string) error {
	if e := flags.Parse(args); e != nil {
		return e
	}
	if flags.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q", flags.Arg(0))
	}
	return nil
}

func runMigrate(ctx context.Context, env *environment, args []string) error {
	if e := parse(pflag.NewFlagSet("migrate", pflag.ContinueOnError), args); e != nil {
		return e
	}
	store, e := env.store(ctx)
	if e != nil {
		return e
	}
	return store.Migrate(ctx, !env.cfg.Policy.MultipleRequestsAllowed)
}

func runSyncAccess(ctx context.Context, env *environment, args []string) error {
	var all bool
	flags := pflag.NewFlagSet("sync-access", pflag.ContinueOnError)
	flags.BoolVar(&all, "all", false, "re-sync every active grant, not only lapsed ones")
	if e := parse(flags, args); e != nil {
		return e
	}

	m, e := env.manager(ctx)
	if e != nil {
		return e
	}
	return m.SyncAccess(ctx, all)
}

func runNotifyExpiry(ctx context.Context, env *environment, args []string) error {
	if e := parse(pflag.NewFlagSet("notify-expiry", pflag.ContinueOnError), args); e != nil {
		return e
	}
	m, e := env.manager(ctx)
	if e != nil {
		return e
	}
	return m.SendExpiryNotifications(ctx)
}

func runRemindPending(ctx context.Context, env *environment, args []string) error {
	if e := parse(pflag.NewFlagSet("remind-pending", pflag.ContinueOnError), args); e != nil {
		return e
	}
	m, e := env.manager(ctx)
	if e != nil {
		return e
	}
	return m.RemindPending(ctx)
}

func runCreateLdapGroup(ctx context.Context, env *environment, args []string) error {
	var model, name, description string
	flags := pflag.NewFlagSet("create-ldap-group", pflag.ContinueOnError)
	flags.StringVar(&model, "model", "", "group model the group belongs to")
	flags.StringVar(&name, "name", "", "name of the group")
	flags.StringVar(&description, "description", "", "description of the group")
	if e := parse(flags, args); e != nil {
		return e
	}
	if model == "" || name == "" {
		return errors.New("--model and --name are required")
	}

	dir, models, e := env.directory()
	if e != nil {
		return e
	}
	gm, ok := models.Lookup(model)
	if !ok {
		return fmt.Errorf("unknown group model %q, known are %v", model, models.Names())
	}

	gid, e := dir.CreateGroup(ctx, gm, name, description)
	if e != nil {
		return e
	}
	env.log.Info("group created", "model", model, "group", name, "gid", gid)
	return nil
}
