package app

import (
	"context"

	"github.com/llifei/db2023/src"
	"github.com/llifei/db2023/src/app"
	"github.com/llifei/db2023/src/cfg"
	"github.com/llifei/db2023/src/cli"
	"github.com/llifei/db2023/src/pkg/utils"
)

func NewRootCommand() *cli.RootCommand {
	root := cli.Init("db2023")

	initStart(root)
	initCreate(root)
	initCheck(root)
	initWAL(root)

	return root
}

func MustExecute(ctx context.Context) {
	NewRootCommand().MustExecute(ctx)
}

// loadConfig applies the command line overrides on top of the environment.
func loadConfig(opts cli.Options) (cfg.Config, src.Logger, error) {
	config, err := cfg.Load(opts.ConfigPath)
	if err != nil {
		return cfg.Config{}, nil, err
	}

	if opts.Memory != "" {
		mem, err := utils.ParseMemory(opts.Memory)
		if err != nil {
			return cfg.Config{}, nil, err
		}

		config.Memory = opts.Memory
		config.MemoryBytes = mem
	}

	return config, app.NewLogger(config.Environment), nil
}
