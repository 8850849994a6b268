package app

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/llifei/db2023/src/cli"
	"github.com/llifei/db2023/src/recovery"
	"github.com/llifei/db2023/src/storage/engine"
)

func initWAL(root *cli.RootCommand) {
	root.AddCommand(&cobra.Command{
		Use:   "wal <path>",
		Short: "Prints the write-ahead log of a database as JSON lines",
		Long: "Prints the write-ahead log of a database as JSON lines. " +
			"A torn tail left by a crash is cut off, the same way opening the database does.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			_, log, err := loadConfig(root.Options)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			wal, err := recovery.OpenLogger(afero.NewOsFs(), engine.GetLogFilePath(args[0]), log)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, wal.Close()) }()

			_, err = recovery.Dump(cmd.OutOrStdout(), wal)

			return err
		},
	})
}
