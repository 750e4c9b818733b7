package commands

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the optional yaml configuration file.
//
//	loglevel: info
//	format: text
//	timeout: 10s
//	state_file: /var/tmp/nagios-plugins-counters.yml
//	workers: 4
//	checks:
//	  - name: root fs
//	    check: mounts
//	    args: ["--exclude", "/mnt"]
type Config struct {
	LogLevel  string        `yaml:"loglevel"`
	LogFile   string        `yaml:"logfile"`
	Format    string        `yaml:"format"`
	Timeout   time.Duration `yaml:"timeout"`
	StateFile string        `yaml:"state_file"`
	Workers   int           `yaml:"workers"`
	Checks    []ConfigCheck `yaml:"checks"`
}

// ConfigCheck is a single sub check of the multi command.
type ConfigCheck struct {
	Name  string   `yaml:"name"`
	Check string   `yaml:"check"`
	Args  []string `yaml:"args"`
}

// ReadConfig reads and validates the yaml config file.
func ReadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	conf := &Config{}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	for i := range conf.Checks {
		entry := &conf.Checks[i]
		if entry.Check == "" {
			return nil, fmt.Errorf("config %s: checks[%d]: check is required", path, i)
		}
		if entry.Name == "" {
			entry.Name = entry.Check
		}
	}
	if conf.Workers < 0 {
		return nil, fmt.Errorf("config %s: workers must not be negative", path)
	}

	return conf, nil
}
