package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"gitlab.com/gitlab-org/runner-pool/common"
)

var ROOTCONFIGDIR = "/etc/runner-pool"

func getDefaultConfigDirectory() string {
	if os.Getuid() == 0 {
		return ROOTCONFIGDIR
	}

	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		return filepath.Join(homeDir, ".runner-pool")
	}

	if currentDir, err := os.Getwd(); err == nil {
		return currentDir
	}

	panic("Cannot get default config file location")
}

func GetDefaultConfigFile() string {
	return filepath.Join(getDefaultConfigDirectory(), "config.toml")
}

var (
	_ prometheus.Collector = &configAccessCollector{}
)

type configAccessCollector struct {
	loadingError prometheus.Counter
	loaded       prometheus.Counter
	invalid      prometheus.Counter
}

func newConfigAccessCollector() *configAccessCollector {
	return &configAccessCollector{
		loadingError: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "runner_pool_configuration_loading_error_total",
			Help: "Total number of times the configuration file could not be loaded",
		}),
		loaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "runner_pool_configuration_loaded_total",
			Help: "Total number of times the configuration file was loaded",
		}),
		invalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "runner_pool_configuration_invalid_total",
			Help: "Total number of times the loaded configuration failed validation",
		}),
	}
}

func (c *configAccessCollector) Describe(descs chan<- *prometheus.Desc) {
	c.loadingError.Describe(descs)
	c.loaded.Describe(descs)
	c.invalid.Describe(descs)
}

func (c *configAccessCollector) Collect(metrics chan<- prometheus.Metric) {
	c.loadingError.Collect(metrics)
	c.loaded.Collect(metrics)
	c.invalid.Collect(metrics)
}

type configOptions struct {
	configMutex sync.Mutex
	config      *common.Config

	configAccessCollector *configAccessCollector

	ConfigFile string `short:"c" long:"config" env:"CONFIG_FILE" description:"Config file"`
}

// getConfig returns a shallow copy of the config as it was during the call.
// All writes of the config property are protected by the mutex.
func (c *configOptions) getConfig() *common.Config {
	c.configMutex.Lock()
	defer c.configMutex.Unlock()

	if c.config == nil {
		return nil
	}

	config := *c.config
	return &config
}

func (c *configOptions) onConfigurationAccessCollector(callback func(*configAccessCollector)) {
	if c.configAccessCollector == nil {
		return
	}

	callback(c.configAccessCollector)
}

// loadConfig reads and validates the config file. A failed schema check
// only warns, a failed Validate is an error.
func (c *configOptions) loadConfig() error {
	c.configMutex.Lock()
	defer c.configMutex.Unlock()

	config := common.NewConfig()
	err := config.LoadConfig(c.ConfigFile)
	if err != nil {
		c.onConfigurationAccessCollector(func(m *configAccessCollector) {
			m.loadingError.Inc()
		})

		return err
	}

	// Config validation is best-effort
	if err := common.ValidateSchema(config); err != nil {
		logrus.Warningf("There might be a problem with your config\n%v", err)
	}

	if err := config.Validate(); err != nil {
		c.onConfigurationAccessCollector(func(m *configAccessCollector) {
			m.invalid.Inc()
		})

		return fmt.Errorf("invalid config %s: %w", c.ConfigFile, err)
	}

	c.onConfigurationAccessCollector(func(m *configAccessCollector) {
		m.loaded.Inc()
	})

	c.config = config

	return nil
}

func init() {
	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		err := os.Setenv("CONFIG_FILE", GetDefaultConfigFile())
		if err != nil {
			logrus.WithError(err).Fatal("Couldn't set CONFIG_FILE environment variable")
		}
	}
}
