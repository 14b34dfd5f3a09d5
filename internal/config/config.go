// Package config loads the gateway's JSON configuration file, per spec §6.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
)

// Config is the JSON shape documented in spec §6.
type Config struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	APIKey        string `json:"apiKey"`
	Region        string `json:"region"`
	KiroVersion   string `json:"kiroVersion"`
	MachineID     string `json:"machineId,omitempty"`
	SystemVersion string `json:"systemVersion"`
	NodeVersion   string `json:"nodeVersion"`
}

// defaults mirrors the teacher's load-missing-is-ok config behavior.
func defaults() Config {
	return Config{
		Host:          "0.0.0.0",
		Port:          8080,
		Region:        "us-east-1",
		KiroVersion:   "0.1.0",
		SystemVersion: runtime.GOOS,
		NodeVersion:   "20.0.0",
	}
}

// DefaultPath returns the default config file location: $QGATEWAY_CONFIG
// if set, otherwise ./config.json in the working directory.
func DefaultPath() string {
	if p := os.Getenv("QGATEWAY_CONFIG"); p != "" {
		return p
	}
	return "./config.json"
}

// Load reads path and merges it over Config's defaults. A missing file is
// not an error: it returns the defaults, matching the teacher's
// tolerant-load behavior for an as-yet-unconfigured install.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, err
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ConfigDirForOS mirrors the teacher's per-OS config directory resolution:
// %APPDATA%\qgateway on Windows when APPDATA is set, otherwise
// ~/.qgateway. keystore.DefaultPath does not use it.
func ConfigDirForOS() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "qgateway")
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".qgateway"
	}
	return filepath.Join(home, ".qgateway")
}
