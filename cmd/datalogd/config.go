package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the datalogd run configuration file (datalog.yaml): a data
// root, where query output goes, how much to parallelize, and log
// verbosity.
type Config struct {
	DataRoot    string `yaml:"data_root"`
	Output      string `yaml:"output"` // "table", "csv", or a directory path for per-relation .csv files
	Parallelism int    `yaml:"parallelism"`
	LogLevel    string `yaml:"log_level"`
	MaxTuples   int    `yaml:"max_tuples"`
}

// DefaultConfig matches running datalogd with no config file at all.
func DefaultConfig() Config {
	return Config{
		Output:      "table",
		Parallelism: 1,
		LogLevel:    "info",
	}
}

// LoadConfig reads path if it exists, layering it over DefaultConfig; a
// missing file is not an error, mirroring an EDB relation's "missing
// input is simply empty" treatment elsewhere in this codebase.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
