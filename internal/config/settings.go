package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"threatreg/internal/support"
)

type Config struct {
	Dispatch     DispatchConfig `json:"dispatch" yaml:"dispatch"`
	Destinations []Destination  `json:"destinations" yaml:"destinations"`
}

type DispatchConfig struct {
	AttemptTimeout   Timer `json:"attempt_timeout" yaml:"attempt_timeout"`
	MaxConcurrent    int   `json:"max_concurrent" yaml:"max_concurrent"`
	PerDispatchLimit int   `json:"per_dispatch_limit" yaml:"per_dispatch_limit"`
}

type Timer struct {
	Days    uint32 `json:"days" yaml:"days"`
	Hours   uint32 `json:"hours" yaml:"hours"`
	Minutes uint32 `json:"minutes" yaml:"minutes"`
	Seconds uint32 `json:"seconds" yaml:"seconds"`
}

const (
	defaultSettingsFile = "data/settings.json"

	DefaultMaxConcurrent    = 32
	DefaultPerDispatchLimit = 4
)

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
	configMu    sync.Mutex

	InProductionMode bool
)

func init() {
	var cfg Config
	if err := json.Unmarshal(defaultConfig, &cfg); err != nil {
		cfg = Config{}
	}
	configValue.Store(cfg)
}

// SettingsPath is the file settings are read from and persisted to.
func SettingsPath() string {
	return support.GetEnv("SETTINGS_FILE", defaultSettingsFile)
}

func ReadSettings() {
	path := SettingsPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Settings file not found, creating with default configuration", "path", path)

			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					log.Error("Error creating directory for settings file", "error", err)
					return
				}
			}

			// JSON is valid YAML, so the embedded default serves both formats.
			data = defaultConfig
			if err := os.WriteFile(path, data, 0o644); err != nil {
				log.Error("Error writing default settings file", "error", err)
				return
			}
		} else {
			log.Error("Error reading settings file", "error", err)
			return
		}
	}

	newConfig, err := decodeSettings(path, data)
	if err != nil {
		log.Error("Error parsing settings file", "path", path, "error", err)
		return
	}

	if err := applyConfigUpdate(newConfig, configUpdateOptions{source: "file"}); err != nil {
		log.Error("Error applying configuration from settings file", "error", err)
		return
	}

	log.Debug("Settings file loaded successfully", "path", path)
}

// LoadSettingsFile parses a settings file without applying it.
func LoadSettingsFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return decodeSettings(path, data)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func decodeSettings(path string, data []byte) (Config, error) {
	var cfg Config
	if isYAML(path) {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse yaml: %w", err)
		}
		return cfg, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse json: %w", err)
	}
	return cfg, nil
}

func encodeSettings(path string, cfg Config) ([]byte, error) {
	if isYAML(path) {
		var buf bytes.Buffer
		encoder := yaml.NewEncoder(&buf)
		encoder.SetIndent(2)
		if err := encoder.Encode(cfg); err != nil {
			return nil, err
		}
		_ = encoder.Close()
		return buf.Bytes(), nil
	}
	return json.MarshalIndent(cfg, "", "  ")
}

func SetConfig(newConfig Config) error {
	if err := applyConfigUpdate(newConfig, configUpdateOptions{persistToFile: true, broadcast: true, source: "local"}); err != nil {
		log.Error("Error applying configuration update", "error", err)
		return err
	}

	log.Debug("Configuration updated and written to file successfully")
	return nil
}

type configUpdateOptions struct {
	persistToFile bool
	broadcast     bool
	source        string
}

func applyConfigUpdate(newConfig Config, opts configUpdateOptions) error {
	configMu.Lock()
	defer configMu.Unlock()

	cleaned, problems := Validate(newConfig)
	for _, problem := range problems {
		log.Error("Invalid destination dropped", "error", problem)
	}
	warnMissingCredentials(cleaned)

	configValue.Store(cleaned)
	setAttemptTimeout(CalculateAttemptTimeout(cleaned.Dispatch.AttemptTimeout))

	var errs []error

	if opts.persistToFile {
		path := SettingsPath()
		data, err := encodeSettings(path, newConfig)
		if err != nil {
			log.Error("Error marshalling new configuration", "error", err)
			errs = append(errs, err)
		} else if err := os.WriteFile(path, data, 0o644); err != nil {
			log.Error("Error writing new configuration to file", "error", err)
			errs = append(errs, err)
		}
	}

	if opts.broadcast {
		if err := publishConfig(newConfig); err != nil {
			log.Error("Error broadcasting configuration update", "error", err)
			errs = append(errs, err)
		}
	}

	notifyListeners(cleaned)

	if opts.source != "" {
		log.Debug("Configuration applied", "source", opts.source, "destinations", len(cleaned.Destinations))
	} else {
		log.Debug("Configuration applied", "destinations", len(cleaned.Destinations))
	}

	return errors.Join(errs...)
}

func warnMissingCredentials(cfg Config) {
	for _, dest := range cfg.Destinations {
		if !dest.HasCredential() {
			log.Warn("Destination has no credential, deliveries will fail", "destination", dest.Name, "token_env", dest.TokenEnv)
		}
	}
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

func SetProductionMode(productionMode bool) {
	InProductionMode = productionMode
}

var (
	listenersMu     sync.Mutex
	configListeners []chan Config
)

// Updates returns a channel receiving every applied configuration, starting
// with the current one. Slow receivers only see the latest value.
func Updates() <-chan Config {
	ch := make(chan Config, 1)
	listenersMu.Lock()
	configListeners = append(configListeners, ch)
	listenersMu.Unlock()

	ch <- GetConfig()
	return ch
}

func notifyListeners(cfg Config) {
	listenersMu.Lock()
	defer listenersMu.Unlock()
	for _, ch := range configListeners {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
		}
	}
}
