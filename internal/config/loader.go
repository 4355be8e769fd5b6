package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PHISAN_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// ErrConfigNotFound is returned when a named config file does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// Load loads configuration from the YAML file at configPath, then
// overrides with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (PHISAN_FAKER_SEED, PHISAN_DETECTORS_HF_ENABLED, ...)
//  2. YAML config file
//  3. Default()
//
// An empty configPath skips the file. A non-empty configPath that does not
// exist fails with ErrConfigNotFound rather than falling back to defaults.
//
// # Environment Variable Mapping
//
// Variable names are the key path with dots replaced by underscores,
// uppercased and prefixed:
//
//	PHISAN_FAKER_SEED              -> faker_seed
//	PHISAN_PSEUDONYM_SALT          -> pseudonym_salt
//	PHISAN_DETECTORS_HF_ENABLED    -> detectors.hf.enabled
//	PHISAN_SERVER_SHUTDOWN_TIMEOUT -> server.shutdown_timeout
//
// Variables that do not name a known key are ignored.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		if k.String("pseudonym_salt") != "" {
			if err := checkSecretFilePerms(configPath); err != nil {
				return nil, err
			}
		}
	}

	keys := envKeys()
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return keys[strings.ToLower(strings.TrimPrefix(s, EnvPrefix))]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads variables from a .env file into the process
// environment without overriding variables already set. A missing file is
// not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// readConfigFile opens the file once and validates it through the open
// descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// checkSecretFilePerms rejects group- or world-accessible files that hold
// the pseudonym salt.
func checkSecretFilePerms(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return fmt.Errorf("insecure config file permissions %v: files holding pseudonym_salt must be 0600 or 0400", perm)
	}
	return nil
}

// envKeys maps underscore-joined key paths to dotted koanf keys for every
// leaf field of Config.
func envKeys() map[string]string {
	keys := make(map[string]string)
	collectKeys(reflect.TypeOf(Config{}), "", keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, out map[string]string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("koanf")
		if tag == "" || !field.IsExported() {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if field.Type.Kind() == reflect.Struct {
			collectKeys(field.Type, key, out)
			continue
		}
		out[strings.ReplaceAll(key, ".", "_")] = key
	}
}
