package app

import (
	"github.com/spf13/cobra"

	"github.com/llifei/db2023/src/app"
	"github.com/llifei/db2023/src/cli"
)

func initStart(root *cli.RootCommand) {
	root.AddCommand(&cobra.Command{
		Use:   "start [path]",
		Short: "Opens the database, creating it if needed, and keeps it open until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := &app.DBEntrypoint{
				ConfigPath: root.Options.ConfigPath,
				Memory:     root.Options.Memory,
			}

			if len(args) == 1 {
				e.DataPath = args[0]
			}

			return app.Run(cmd.Context(), e)
		},
	})
}
