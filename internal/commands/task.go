package commands

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/missionctl/internal/app"
	"github.com/dotcommander/missionctl/internal/models"
	"github.com/dotcommander/missionctl/internal/output"
	"github.com/dotcommander/missionctl/internal/store"
)

// NewTaskCmd groups task operations for operators working without the
// HTTP surface.
func NewTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newTaskCreateCmd())
	cmd.AddCommand(newTaskDispatchCmd())
	cmd.AddCommand(newTaskGetCmd())
	cmd.AddCommand(newTaskBoardCmd())
	return cmd
}

func newTaskCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a queued task",
		RunE: func(cmd *cobra.Command, args []string) error {
			title, _ := cmd.Flags().GetString("title")
			agentID, _ := cmd.Flags().GetString("agent")
			stage, _ := cmd.Flags().GetString("stage")
			priority, _ := cmd.Flags().GetString("priority")

			if title == "" {
				return cmdErr(errors.New("--title is required"))
			}

			var task *models.Task
			if err := withDB(func(db *DB) error {
				t, err := store.CreateTask(db, title, agentID, models.Stage(stage), priority, "")
				if err != nil {
					return err
				}
				task = t
				return nil
			}); err != nil {
				return err
			}

			return output.PrintSuccess(task)
		},
	}

	cmd.Flags().String("title", "", "Task title (required)")
	cmd.Flags().String("agent", "", "Agent to assign the task to")
	cmd.Flags().String("stage", "", "Initial stage (default todo)")
	cmd.Flags().String("priority", "", "Priority (default medium)")
	return cmd
}

func newTaskDispatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Stamp a task for channel delivery (DEM id, ack deadline)",
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, _ := cmd.Flags().GetString("id")
			channel, _ := cmd.Flags().GetString("channel")

			if taskID == "" {
				return cmdErr(errors.New("--id is required"))
			}

			settings, err := app.LoadSettings()
			if err != nil {
				return cmdErr(err)
			}

			var task *models.Task
			if err := withDB(func(db *DB) error {
				t, err := store.GetTask(db, taskID)
				if err != nil {
					return err
				}

				if channel == "" {
					owner := strings.ToLower(t.AssignedTo)
					channel = settings.Chat.AgentChannels[owner]
					if channel == "" {
						channel = settings.Chat.FallbackChannel
					}
				}
				if channel == "" {
					return errors.New("no channel: pass --channel or configure agent_channels")
				}

				dispatched, err := store.DispatchTask(db, taskID, channel, app.EffectiveSweepSettings().AckDeadline, time.Now())
				if err != nil {
					return err
				}
				task = dispatched
				return nil
			}); err != nil {
				return err
			}

			return output.PrintSuccess(task)
		},
	}

	cmd.Flags().String("id", "", "Task id (required)")
	cmd.Flags().String("channel", "", "Target channel (default resolved from config)")
	return cmd
}

func newTaskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show one task",
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, _ := cmd.Flags().GetString("id")
			if taskID == "" {
				return cmdErr(errors.New("--id is required"))
			}

			var task *models.Task
			if err := withDB(func(db *DB) error {
				t, err := store.GetTask(db, taskID)
				if err != nil {
					return err
				}
				task = t
				return nil
			}); err != nil {
				return err
			}

			return output.PrintSuccess(task)
		},
	}

	cmd.Flags().String("id", "", "Task id (required)")
	return cmd
}

func newTaskBoardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "List the kanban board in column order",
		RunE: func(cmd *cobra.Command, args []string) error {
			var tasks []models.Task
			if err := withDB(func(db *DB) error {
				t, err := store.ListBoard(db)
				if err != nil {
					return err
				}
				tasks = t
				return nil
			}); err != nil {
				return err
			}

			return output.PrintSuccess(tasks)
		},
	}
}
