package cfg

import (
	"os"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/llifei/db2023/src/pkg/utils"
)

const EnvPrefix = "DB2023"

const (
	EnvDev  Environment = "dev"
	EnvProd Environment = "prod"

	DefaultEnv = EnvDev
)

type Environment string

func (e Environment) Validate() error {
	if e != EnvDev && e != EnvProd {
		return errors.New("environment must be either dev or prod")
	}

	return nil
}

type Config struct {
	Environment    Environment `default:"dev"`
	DataPath       string      `split_words:"true"`
	Memory         string      `default:"64MB"`
	IsolationLevel int         `split_words:"true" default:"0"`

	// MemoryBytes is Memory parsed.
	MemoryBytes int64 `ignored:"true"`
}

// Load reads the .env file at path, if any, and then the DB2023_* variables.
// An empty path means ".env" in the working directory.
func Load(path string) (Config, error) {
	if path == "" {
		path = ".env"
	}

	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, errors.Wrapf(err, "load %s", path)
	}

	var c Config
	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return Config{}, errors.Wrap(err, "process env")
	}

	if err := c.Environment.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "environment validation")
	}

	mem, err := utils.ParseMemory(c.Memory)
	if err != nil {
		return Config{}, errors.Wrap(err, "memory")
	}
	c.MemoryBytes = mem

	if c.IsolationLevel != 0 && c.IsolationLevel != 1 {
		return Config{}, errors.Errorf("isolation level must be 0 or 1, got %d", c.IsolationLevel)
	}

	return c, nil
}
