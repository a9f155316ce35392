package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hackgods/therapy-session-scheduling/internal/app"
	"github.com/hackgods/therapy-session-scheduling/internal/config"
	"github.com/hackgods/therapy-session-scheduling/internal/db"
	"github.com/hackgods/therapy-session-scheduling/internal/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "schedctl",
		Short:        "Operator tooling for the therapy session scheduler",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(slotCmd())
	rootCmd.AddCommand(holdsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *db.Migrator) error {
				applied, err := m.Up()
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				if !applied {
					fmt.Println("Schema already up to date.")
					return nil
				}
				version, _, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Printf("Migrated to version %d.\n", version)
				return nil
			})
		},
	}
	cmd.AddCommand(upCmd)

	// migrate force
	forceCmd := &cobra.Command{
		Use:   "force <version>",
		Short: "Mark a version as applied and clear the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("version must be an integer: %w", err)
			}
			return withMigrator(func(m *db.Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				fmt.Printf("Forced schema version %d.\n", version)
				return nil
			})
		},
	}
	cmd.AddCommand(forceCmd)

	// migrate version
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *db.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Printf("version=%d dirty=%t\n", version, dirty)
				return nil
			})
		},
	}
	cmd.AddCommand(versionCmd)

	return cmd
}

func withMigrator(fn func(m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	m, err := db.NewMigrator(cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

func slotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slot",
		Short: "Inspect and repair slots",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reopen <slotID>",
		Short: "Reopen a held or booked slot that no active appointment owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				s, err := a.Engine.ReopenSlot(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Slot %s is %s (version %d).\n", s.ID, s.Status, s.Version)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <slotID>",
		Short: "Print a slot and the appointment holding it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				s, err := a.Slots.Get(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s therapist=%s starts=%s status=%s version=%d\n",
					s.ID, s.TherapistID, s.StartsAt.Format("2006-01-02 15:04 MST"), s.Status, s.Version)
				if appt, err := a.Appointments.FindActiveBySlot(ctx, s.ID); err == nil {
					fmt.Printf("  appointment %s patient=%s status=%s\n", appt.ID, appt.PatientID, appt.Status)
				}
				holder, err := a.Locks.Holder(ctx, s.ID)
				if err != nil {
					return err
				}
				if holder != "" {
					fmt.Printf("  request lock held (token %s)\n", holder)
				}
				return nil
			})
		},
	})

	return cmd
}

func holdsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holds",
		Short: "Manage slot holds",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Release holds older than HOLD_TTL once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				if a.Config.HoldTTL <= 0 {
					return fmt.Errorf("HOLD_TTL is not set; nothing would be released")
				}
				released, err := a.Engine.ReleaseStaleHolds(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Released %d stale hold(s).\n", released)
				return nil
			})
		},
	})

	return cmd
}

func withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.Component(logging.New(cfg.Env, cfg.LogLevel), "schedctl")
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
