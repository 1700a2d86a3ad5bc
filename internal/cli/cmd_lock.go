package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/calvinalkan/scribe/internal/scribe"

	flag "github.com/spf13/pflag"
)

// LockCmd returns the lock command.
func LockCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("lock", flag.ContinueOnError),
		Usage: "lock <doc> <section> <user>",
		Short: "Lock a section for editing",
		Long: `Lock a section for exclusive editing by user. Locking a section user
already holds succeeds. Fails when another user holds the lock.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args, "<doc>", "<section>", "<user>")
			if err != nil {
				return err
			}

			doc, sectionID, user := args[0], args[1], args[2]

			name, err := a.section(ctx, o, doc, sectionID)
			if err != nil {
				return err
			}

			ok, err := a.locks.Lock(ctx, name, sectionID, user)
			if err != nil {
				return err
			}

			if !ok {
				holder, err := a.locks.Owner(ctx, name, sectionID)
				if err != nil {
					return err
				}

				return fmt.Errorf("%w: section %s is already locked by %s", scribe.ErrLockHeld, sectionID, holder)
			}

			o.Printf("Section %s locked by %s.\n", sectionID, user)

			return nil
		},
	}
}

// UnlockCmd returns the unlock command.
func UnlockCmd(a *app) *Command {
	flags := flag.NewFlagSet("unlock", flag.ContinueOnError)
	force := flags.BoolP("force", "f", false, "Break the lock whoever holds it")

	return &Command{
		Flags: flags,
		Usage: "unlock <doc> <section> <user> [--force]",
		Short: "Unlock a section after editing",
		Long: `Release the lock user holds on a section. Only the holder can unlock.

--force breaks the lock whoever holds it, for locks left behind by a crashed
editor. user is recorded as the one who broke it.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args, "<doc>", "<section>", "<user>")
			if err != nil {
				return err
			}

			doc, sectionID, user := args[0], args[1], args[2]

			name, err := scribe.DocumentName(doc)
			if err != nil {
				return err
			}

			err = scribe.ValidateUser(user)
			if err != nil {
				return err
			}

			err = a.open(ctx)
			if err != nil {
				return err
			}

			if *force {
				former, err := a.locks.Break(ctx, name, sectionID, user)
				if err != nil {
					return err
				}

				if former == "" {
					o.Printf("Section %s was not locked.\n", sectionID)
				} else {
					o.Printf("Lock of %s on section %s broken by %s.\n", former, sectionID, user)
				}

				return nil
			}

			released, err := a.locks.Unlock(ctx, name, sectionID, user)
			if err != nil {
				return err
			}

			if !released {
				return fmt.Errorf("%w: %s does not have permission to unlock section %s", scribe.ErrLockHeld, user, sectionID)
			}

			o.Printf("Section %s unlocked by %s.\n", sectionID, user)

			return nil
		},
	}
}

// CheckLockCmd returns the check-lock command.
func CheckLockCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("check-lock", flag.ContinueOnError),
		Usage: "check-lock <doc> <section>",
		Short: "Check if a section is locked",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args, "<doc>", "<section>")
			if err != nil {
				return err
			}

			name, err := scribe.DocumentName(args[0])
			if err != nil {
				return err
			}

			err = a.open(ctx)
			if err != nil {
				return err
			}

			owner, err := a.locks.Owner(ctx, name, args[1])
			if err != nil {
				return err
			}

			if owner == "" {
				o.Printf("Section %s is available.\n", args[1])
			} else {
				o.Printf("Section %s is locked by %s.\n", args[1], owner)
			}

			return nil
		},
	}
}

// LocksCmd returns the locks command.
func LocksCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("locks", flag.ContinueOnError),
		Usage: "locks <doc>",
		Short: "List the locked sections of a document",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := wantArgs(args, "<doc>")
			if err != nil {
				return err
			}

			name, err := scribe.DocumentName(args[0])
			if err != nil {
				return err
			}

			err = a.open(ctx)
			if err != nil {
				return err
			}

			recs, err := a.locks.List(ctx, name)
			if err != nil {
				return err
			}

			if len(recs) == 0 {
				o.Println("No locked sections.")

				return nil
			}

			for _, r := range recs {
				o.Printf("%s\t%s\t%s\n", r.Section, r.User, r.LockedAt.UTC().Format(time.DateTime))
			}

			return nil
		},
	}
}
