package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/missionctl/internal/app"
	"github.com/dotcommander/missionctl/internal/output"
	"github.com/dotcommander/missionctl/internal/store"
)

func NewDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database utilities",
	}

	cmd.AddCommand(newDBPathCmd())
	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBStatusCmd())
	return cmd
}

func newDBPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the resolved database path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.GetDBPath()
			if err != nil {
				return cmdErr(err)
			}

			type resp struct {
				Path string `json:"path"`
			}
			return output.PrintSuccess(resp{Path: path})
		},
	}
}

func newDBMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the database already runs migrations; report where
			// the schema landed.
			var current, latest int64
			if err := withDB(func(db *DB) error {
				var err error
				current, latest, err = store.SchemaVersion(db)
				return err
			}); err != nil {
				return err
			}

			type resp struct {
				Current int64 `json:"current"`
				Latest  int64 `json:"latest"`
			}
			return output.PrintSuccess(resp{Current: current, Latest: latest})
		},
	}
}

func newDBStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			var current, latest int64
			if err := withDB(func(db *DB) error {
				var err error
				current, latest, err = store.SchemaVersion(db)
				return err
			}); err != nil {
				return err
			}

			type resp struct {
				Current  int64 `json:"current"`
				Latest   int64 `json:"latest"`
				UpToDate bool  `json:"up_to_date"`
			}
			return output.PrintSuccess(resp{Current: current, Latest: latest, UpToDate: current == latest})
		},
	}
}
