package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"volramp/internal/app"
	"volramp/internal/config"
	"volramp/internal/report"
)

func newRootCmd() *cobra.Command {
	var noWatch bool
	root := &cobra.Command{
		Use:   "volramp [config]",
		Short: "Ramp the system volume to scheduled levels",
		Long: "volramp reads a daily schedule of (time, volume) targets and moves the default\n" +
			"audio sink to each target gradually, finishing exactly at the scheduled time.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a := app.New(app.Options{ConfigPath: configPath(args), Watch: !noWatch})
			if err := a.CheckDependencies(ctx); err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
	root.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload the config file when it changes")
	root.AddCommand(newCheckCmd(afero.NewOsFs()))
	return root
}

func configPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return config.DefaultPath
}

// errInvalidConfig makes check exit non-zero after it printed its report.
var errInvalidConfig = errors.New("config is invalid; the built-in schedule would be used")

func newCheckCmd(fs afero.Fs) *cobra.Command {
	var upcoming int
	cmd := &cobra.Command{
		Use:   "check [config]",
		Short: "Validate the config and preview upcoming invocations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := config.NewManager(configPath(args), fs)
			snap := m.Load()
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "config: %s", m.Path())
			if snap.Format != "" {
				fmt.Fprintf(out, " (%s)", snap.Format)
			}
			fmt.Fprintln(out)
			if snap.Fallback {
				fmt.Fprintf(out, "error:  %v\n", snap.Err)
			}

			sched := snap.Schedule
			loc := sched.Location()
			fmt.Fprintf(out, "zone:   %s\nramp:   %s\n", loc, sched.PreRamp())
			fmt.Fprintf(out, "policy: on_failure=%s\n", policy(snap.Config))
			fmt.Fprintln(out, "targets:")
			for _, t := range sched.Targets() {
				fmt.Fprintf(out, "  %s  %s\n", t.Time, t.Level.Percent())
			}

			now := time.Now()
			if loc != nil {
				now = now.In(loc)
			}
			fmt.Fprintln(out, "upcoming:")
			for _, inv := range sched.Upcoming(now, upcoming) {
				fmt.Fprintf(out, "  %s  %s\n", inv.Occurrence.Format("Mon 2006-01-02 15:04 MST"), report.Describe(now, inv))
			}

			if snap.Fallback {
				return errInvalidConfig
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&upcoming, "upcoming", "n", 4, "Number of upcoming invocations to list")
	return cmd
}

func policy(cfg *config.Config) string {
	if cfg.ContinueOnFailure() {
		return config.OnFailureContinue
	}
	return config.OnFailureStop
}
