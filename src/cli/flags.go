package cli

func (c *RootCommand) initFlags() {
	c.PersistentFlags().StringVarP(
		&c.Options.ConfigPath,
		"config",
		"c",
		"",
		"Path to the .env configuration file",
	)
	c.PersistentFlags().StringVarP(
		&c.Options.Memory,
		"mem",
		"m",
		"",
		"Page cache size such as 64MB, overrides DB2023_MEMORY",
	)
}
