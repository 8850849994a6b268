package app

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/llifei/db2023/src"
	"github.com/llifei/db2023/src/cfg"
	"github.com/llifei/db2023/src/db"
	"github.com/llifei/db2023/src/mvcc"
	"github.com/llifei/db2023/src/pkg/common"
	"github.com/llifei/db2023/src/pkg/utils"
)

// DBEntrypoint keeps one database open until the context is cancelled. The
// database is created when its files do not exist yet.
type DBEntrypoint struct {
	ConfigPath string
	// DataPath and Memory override the configured values when set.
	DataPath string
	Memory   string
	Fs       afero.Fs

	Config cfg.Config
	Log    src.Logger
	DB     *db.DB
}

func NewLogger(env cfg.Environment) src.Logger {
	if env == cfg.EnvDev {
		return utils.Must(zap.NewDevelopment()).Sugar()
	}

	return utils.Must(zap.NewProduction()).Sugar()
}

func (e *DBEntrypoint) Init(_ context.Context) error {
	config, err := cfg.Load(e.ConfigPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	if e.DataPath != "" {
		config.DataPath = e.DataPath
	}

	if e.Memory != "" {
		mem, err := utils.ParseMemory(e.Memory)
		if err != nil {
			return err
		}

		config.Memory = e.Memory
		config.MemoryBytes = mem
	}

	if config.DataPath == "" {
		return errors.New("data path is not set")
	}

	e.Config = config

	if e.Log == nil {
		e.Log = NewLogger(config.Environment)
	}

	if e.Fs == nil {
		e.Fs = afero.NewOsFs()
	}

	database, err := db.Open(e.Fs, config.DataPath, config.MemoryBytes, e.Log)
	if errors.Is(err, common.ErrFileNotExists) {
		e.Log.Infow("no database found, creating", "path", config.DataPath)
		database, err = db.Create(e.Fs, config.DataPath, config.MemoryBytes, e.Log)
	}

	if err != nil {
		if common.IsFatal(err) {
			e.Log.Errorw("fatal storage error", "error", err)
		}

		return err
	}

	database.SetIsolation(mvcc.IsolationLevel(config.IsolationLevel))
	e.DB = database

	return nil
}

func (e *DBEntrypoint) Run(ctx context.Context) error {
	e.Log.Infow(
		"database is ready",
		"path", e.Config.DataPath,
		"memory", e.Config.MemoryBytes,
		"isolation_level", e.DB.Isolation(),
	)

	<-ctx.Done()

	return nil
}

func (e *DBEntrypoint) Close() (err error) {
	if e.DB != nil {
		err = e.DB.Close()
		e.DB = nil
	}

	if e.Log != nil {
		if err != nil {
			e.Log.Errorw("failed to close database", "error", err)
		}

		// syncing stderr fails on some terminals
		_ = e.Log.Sync()
	}

	return err
}
