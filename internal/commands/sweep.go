package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/missionctl/internal/app"
	"github.com/dotcommander/missionctl/internal/engine"
	"github.com/dotcommander/missionctl/internal/notify"
	"github.com/dotcommander/missionctl/internal/output"
)

// NewSweepCmd groups the one-shot maintenance sweeps. The same logic
// backs the HTTP trigger endpoints; running them from cron or by hand
// uses these commands.
func NewSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run maintenance sweeps",
	}

	cmd.AddCommand(newSweepWatchdogCmd())
	cmd.AddCommand(newSweepReconcileCmd())
	return cmd
}

func newSweepWatchdogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watchdog",
		Short: "Fail dispatches whose ack deadline passed and open incidents",
		RunE: func(cmd *cobra.Command, args []string) error {
			var res engine.WatchdogResult
			if err := withDB(func(db *DB) error {
				r, err := engine.RunDispatchWatchdog(db, time.Now())
				if err != nil {
					return err
				}
				res = r
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Overdue int `json:"overdue"`
				Updated int `json:"updated"`
			}
			return output.PrintSuccess(resp{Overdue: res.Overdue, Updated: res.Updated})
		},
	}
}

func newSweepReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Mark silent agents down, time out stale tasks, record health",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := app.LoadSettings()
			if err != nil {
				return cmdErr(err)
			}

			var (
				res engine.ReconcileResult
				fx  engine.Effects
			)
			if err := withDB(func(db *DB) error {
				r, effects, err := engine.RunReconciliation(db, app.EffectiveSweepSettings(), time.Now())
				if err != nil {
					return err
				}
				res = r
				fx = effects
				return nil
			}); err != nil {
				return err
			}

			engine.DispatchEffects(context.Background(), fx, notify.NewSender(settings.Chat), notify.LogPublisher{})

			type resp struct {
				CheckedAgents int `json:"checked_agents"`
				OfflineMarked int `json:"offline_marked"`
				TimedOutTasks int `json:"timed_out_tasks"`
				DriftFixed    int `json:"drift_fixed"`
			}
			return output.PrintSuccess(resp{
				CheckedAgents: res.CheckedAgents,
				OfflineMarked: res.OfflineMarked,
				TimedOutTasks: res.TimedOutTasks,
				DriftFixed:    res.DriftFixed,
			})
		},
	}
}
