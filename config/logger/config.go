// Package logger configures logrus from YAML config and CLI flags.
package logger

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Accepted values for the Config fields.
var (
	LogLevels     = []string{"debug", "info", "warning", "error", "fatal"}
	LogFormats    = []string{"human", "logfmt", "json"}
	LogTimestamps = []string{"short", "disable", "full"}
)

// Config is the logging section of the application config.
type Config struct {
	Level     string `yaml:"level"`     // one of LogLevels
	Format    string `yaml:"format"`    // one of LogFormats
	Timestamp string `yaml:"timestamp"` // one of LogTimestamps
}

// DefaultConfig is the logging configuration used when nothing else is
// set.
var DefaultConfig = Config{
	Level:     "info",
	Format:    "human",
	Timestamp: "short",
}

// FlagConfig receives the values of the log CLI flags. Its fields stay
// zero when a flag was not passed, so Merge can tell flags apart from
// config file values.
var FlagConfig = Config{}

// StringVarFlagFunc has the signature of flag.StringVar, which pflag
// shares.
type StringVarFlagFunc func(*string, string, string, string)

// RegisterFlagsWith registers the log flags through the given StringVar
// implementation, into FlagConfig.
func RegisterFlagsWith(stringVar StringVarFlagFunc) {
	stringVar(&FlagConfig.Level, "log-level", "",
		"Log level "+options(DefaultConfig.Level, LogLevels))
	stringVar(&FlagConfig.Format, "log-format", "",
		"Log format "+options(DefaultConfig.Format, LogFormats))
	stringVar(&FlagConfig.Timestamp, "log-timestamp", "",
		"Log timestamp "+options(DefaultConfig.Timestamp, LogTimestamps))
}

// Check validates the Config values.
func (c Config) Check() error {
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("log.level: must be one of: %s", strings.Join(LogLevels, ", "))
	}
	if !lo.Contains(LogFormats, c.Format) {
		return fmt.Errorf("log.format: must be one of: %s", strings.Join(LogFormats, ", "))
	}
	if c.Timestamp != "" && !lo.Contains(LogTimestamps, c.Timestamp) {
		return fmt.Errorf("log.timestamp: must be one of: %s", strings.Join(LogTimestamps, ", "))
	}
	return nil
}

// Merge returns c with every non-empty field of o layered on top. Used
// to let CLI flags override the config file.
func (c Config) Merge(o Config) Config {
	if o.Level != "" {
		c.Level = o.Level
	}
	if o.Format != "" {
		c.Format = o.Format
	}
	if o.Timestamp != "" {
		c.Timestamp = o.Timestamp
	}
	return c
}

// Configure applies the Config to the logrus standard logger.
func Configure(c Config) {
	noTimestamp := c.Timestamp == "disable"
	fullTimestamp := c.Timestamp == "full"

	var formatter logrus.Formatter
	switch c.Format {
	case "json":
		formatter = &logrus.JSONFormatter{DisableTimestamp: noTimestamp}
	case "logfmt":
		formatter = &logrus.TextFormatter{
			DisableColors:    true, // logfmt output
			DisableTimestamp: noTimestamp,
			FullTimestamp:    fullTimestamp,
		}
	case "human":
		formatter = &NamespaceFormatter{
			Parent: &logrus.TextFormatter{
				DisableTimestamp: noTimestamp,
				FullTimestamp:    fullTimestamp,
			},
		}
	}
	logrus.SetFormatter(formatter)

	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		// Check should have caught this.
		logrus.Warnf("Ignoring invalid log level: %s", c.Level)
		return
	}
	logrus.SetLevel(level)
}

func options(def string, accepted []string) string {
	return fmt.Sprintf("(default: %s; options: %s)", def, strings.Join(accepted, ", "))
}
