package app

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/llifei/db2023/src/cli"
	"github.com/llifei/db2023/src/db"
)

func initCheck(root *cli.RootCommand) {
	root.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Opens the database, recovering it if it was not closed cleanly, and closes it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, log, err := loadConfig(root.Options)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			database, err := db.Open(afero.NewOsFs(), args[0], config.MemoryBytes, log)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if stats, ok := database.Data.Recovered().Get(); ok {
				_, _ = fmt.Fprintf(
					out,
					"recovered: pages=%d redone=%d undone=%d aborted=%v\n",
					stats.MaxPageNo,
					stats.Redone,
					stats.Undone,
					stats.AbortedTxns,
				)
			} else {
				_, _ = fmt.Fprintln(out, "clean")
			}

			_, _ = fmt.Fprintf(out, "last xid: %d\n", database.Ledger.LastID())

			return database.Close()
		},
	})
}
