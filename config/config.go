// Package config implements the YAML config file parser
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/allocview/allocview/config/logger"
	"github.com/allocview/allocview/status/healthtracker"
	"github.com/allocview/allocview/status/starttracker"
)

// DefaultPollInterval is the default interval for polling the storage
// backend for new trace dumps.
const DefaultPollInterval = 5 * time.Second

// DefaultMaxParallel is the default number of trace dumps decoded
// concurrently. Decoding is CPU and memory hungry, so this is kept low.
const DefaultMaxParallel = 2

// Config is the config root object
type Config struct {
	Storage Storage       `yaml:"storage"`
	HTTP    HTTP          `yaml:"http"`
	Log     logger.Config `yaml:"log"`
	Watch   Watch         `yaml:"watch"`

	// Set to current version by main
	Version string `yaml:"-"`
}

// Storage selects and configures a simpleblob storage backend that holds
// the trace dumps.
type Storage struct {
	Type    string                 `yaml:"type"`
	Options map[string]interface{} `yaml:"options"`
}

// HTTP configures the HTTP server with Prometheus metrics and status page
type HTTP struct {
	Address string `yaml:"address"` // Address like ":8000"
}

// Watch configures the storage poller that picks up trace dumps
type Watch struct {
	Prefix        string                     `yaml:"prefix"` // Only consider blobs with this name prefix
	PollInterval  time.Duration              `yaml:"poll_interval"`
	MaxDumpSize   datasize.ByteSize          `yaml:"max_dump_size"` // 0 disables the limit
	MaxParallel   int                        `yaml:"max_parallel"`  // Concurrent decodes
	Health        healthtracker.HealthConfig `yaml:"health"`
	StartupHealth starttracker.StartConfig   `yaml:"startup_health"`
}

// Check validates a Config instance
func (c Config) Check() error {
	if err := c.Log.Check(); err != nil {
		return err
	}
	if c.Storage.Type == "" {
		return fmt.Errorf("storage.type: no storage backend configured")
	}
	if c.HTTP.Address != "" {
		if _, _, err := net.SplitHostPort(c.HTTP.Address); err != nil {
			return fmt.Errorf("http.address: %v", err)
		}
	}
	if c.Watch.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("watch.poll_interval: too short interval")
	}
	if c.Watch.MaxParallel < 1 {
		return fmt.Errorf("watch.max_parallel: must be at least 1")
	}
	return nil
}

// String returns the config as a YAML string.
func (c Config) String() string {
	y, err := yaml.Marshal(c)
	if err != nil {
		logrus.Panicf("YAML marshal of config failed: %v", err) // Should never happen
	}
	return string(y)
}

// LoadYAML loads config from YAML. Any set value overwrites any existing value,
// but omitted keys are untouched.
func (c *Config) LoadYAML(yamlContents []byte, expandEnv bool) error {
	if expandEnv {
		yamlContents = []byte(os.ExpandEnv(string(yamlContents)))
	}
	return yaml.UnmarshalStrict(yamlContents, c)
}

// LoadYAMLFile loads config from a YAML file. Any set value overwrites any existing value,
// but omitted keys are untouched.
func (c *Config) LoadYAMLFile(fpath string, expandEnv bool) error {
	contents, err := os.ReadFile(fpath)
	if err != nil {
		return errors.Wrap(err, "open yaml file")
	}
	return c.LoadYAML(contents, expandEnv)
}

// Default returns a Config with default settings
func Default() Config {
	return Config{
		Log: logger.DefaultConfig,
		Watch: Watch{
			PollInterval: DefaultPollInterval,
			MaxParallel:  DefaultMaxParallel,
		},
	}
}
