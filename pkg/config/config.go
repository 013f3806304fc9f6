package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	Prod = "prod"
	Dev  = "dev"
	Test = "test"
)

// Naming is the configuration root of the naming layer.
type Naming struct {
	Naming NamingBox `yaml:"naming"`
}

type NamingBox struct {
	// LocalityID identifies this process among the runtime's localities.
	LocalityID uint32 `yaml:"locality_id"`
	// InitialLog2Credit is the credit exponent handed out when a name is
	// first published and on every replenish. 29 matches the runtime's
	// global credit constant.
	InitialLog2Credit int16     `yaml:"initial_log2_credit"`
	IssueShards       int       `yaml:"issue_shards"`
	Replenish         Replenish `yaml:"replenish"`
	Transport         Transport `yaml:"transport"`
}

type Replenish struct {
	// RatePerSecond bounds replenish requests towards owning localities.
	RatePerSecond int `yaml:"rate_per_second"`
}

type Transport struct {
	// QueueSize is the decrement queue depth of the loopback transport.
	QueueSize int `yaml:"queue_size"`
}

const (
	configPath      = "/config/config.yaml"
	configPathLocal = "/config/config.local.yaml"
	configPathTest  = "/../../config/config.test.yaml"
)

func LoadConfig() (*Naming, error) {
	// .env is optional, a missing file is not an error
	_ = godotenv.Load()

	env := os.Getenv("APP_ENV")

	var path string
	switch env {
	case Prod:
		path = configPath
	case Dev:
		path = configPathLocal
	case Test:
		path = configPathTest
	default:
		return nil, errors.New("unknown APP_ENV: '" + env + "'")
	}

	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	path, err = filepath.Abs(filepath.Clean(dir + path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute config filepath: %w", err)
	}

	return LoadConfigFromFile(path)
}

func LoadConfigFromFile(path string) (*Naming, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	var cfg *Naming
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}

	if err = cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}

	return cfg, nil
}

// applyEnvOverrides lets deployment tooling pin per-process fields
// without templating the yaml. Only the locality id needs this: every
// other field is fleet-wide.
func (c *Naming) applyEnvOverrides() error {
	if v := os.Getenv("NAMING_LOCALITY_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("parse NAMING_LOCALITY_ID %q: %w", v, err)
		}
		c.Naming.LocalityID = uint32(id)
	}
	return nil
}

func (c *Naming) Validate() error {
	b := c.Naming
	if b.InitialLog2Credit < 1 || b.InitialLog2Credit > 31 {
		return fmt.Errorf("initial_log2_credit %d is outside [1, 31]", b.InitialLog2Credit)
	}
	if b.IssueShards <= 0 {
		return fmt.Errorf("issue_shards %d must be positive", b.IssueShards)
	}
	if b.Replenish.RatePerSecond <= 0 {
		return fmt.Errorf("replenish.rate_per_second %d must be positive", b.Replenish.RatePerSecond)
	}
	if b.Transport.QueueSize <= 0 {
		return fmt.Errorf("transport.queue_size %d must be positive", b.Transport.QueueSize)
	}
	return nil
}
