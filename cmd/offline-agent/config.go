package main

import (
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Origin    string   `yaml:"origin" env:"OFFLINE_AGENT_ORIGIN"`
	AppPrefix string   `yaml:"appPrefix" env:"OFFLINE_AGENT_PREFIX"`
	Version   string   `yaml:"version" env:"OFFLINE_AGENT_VERSION"`
	Manifest  []string `yaml:"manifest" env:"OFFLINE_AGENT_MANIFEST" envSeparator:","`
	Port      int      `yaml:"port" env:"OFFLINE_AGENT_PORT"`
	DB        string   `yaml:"db" env:"OFFLINE_AGENT_DB"`
	Provider  string   `yaml:"provider" env:"OFFLINE_AGENT_PROVIDER"`
}

// getConfig reads the optional YAML config file and applies environment
// variable overrides on top of it.
func getConfig(filename string) (Config, error) {
	var config Config
	if filename != "" {
		configBytes, err := os.ReadFile(filename)
		if err != nil {
			return config, err
		}
		if err := yaml.Unmarshal(configBytes, &config); err != nil {
			return config, err
		}
	}
	err := env.Parse(&config)
	return config, err
}
