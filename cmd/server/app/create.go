package app

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/llifei/db2023/src/cli"
	"github.com/llifei/db2023/src/db"
)

func initCreate(root *cli.RootCommand) {
	root.AddCommand(&cobra.Command{
		Use:   "create <path>",
		Short: "Creates the ledger, heap and log files of a new database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, log, err := loadConfig(root.Options)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			database, err := db.Create(afero.NewOsFs(), args[0], config.MemoryBytes, log)
			if err != nil {
				return err
			}

			if err := database.Close(); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", args[0])

			return err
		},
	})
}
