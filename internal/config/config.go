// Package config loads voicenote settings from a key=value file under
// the user config directory, with environment variable fallbacks.
package config

import (
	"bufio"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config keys.
const (
	KeyOutputDir     = "output-dir"
	KeyUploadBackend = "upload-backend"
	KeyUploadFolder  = "upload-folder"
	KeyBucket        = "bucket"
	KeyPublicBaseURL = "public-base-url"
	KeyRESTEndpoint  = "rest-endpoint"
	KeyMinBytes      = "min-bytes"
	KeySettleDelay   = "settle-delay"
	KeyMaxDuration   = "max-duration"
	KeyOutboxPath    = "outbox-path"
)

// Upload backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendGCS   = "gcs"
	BackendREST  = "rest"
)

// Defaults applied when neither the file nor the environment sets a key.
const (
	DefaultMinBytes    = 2000
	DefaultSettleDelay = 400 * time.Millisecond
	DefaultMaxDuration = 120 * time.Second

	// The settle delay is kept within this window.
	MinSettleDelay = 300 * time.Millisecond
	MaxSettleDelay = 500 * time.Millisecond
)

// envFallbacks maps each key to its environment variable.
var envFallbacks = map[string]string{
	KeyOutputDir:     "VOICENOTE_OUTPUT_DIR",
	KeyUploadBackend: "VOICENOTE_UPLOAD_BACKEND",
	KeyUploadFolder:  "VOICENOTE_UPLOAD_FOLDER",
	KeyBucket:        "VOICENOTE_BUCKET",
	KeyPublicBaseURL: "VOICENOTE_PUBLIC_BASE_URL",
	KeyRESTEndpoint:  "VOICENOTE_REST_ENDPOINT",
	KeyMinBytes:      "VOICENOTE_MIN_BYTES",
	KeySettleDelay:   "VOICENOTE_SETTLE_DELAY",
	KeyMaxDuration:   "VOICENOTE_MAX_DURATION",
	KeyOutboxPath:    "VOICENOTE_OUTBOX_PATH",
}

// Keys returns every recognized key, sorted.
func Keys() []string {
	return slices.Sorted(maps.Keys(envFallbacks))
}

// EnvFor returns the environment variable consulted for key.
func EnvFor(key string) string {
	return envFallbacks[key]
}

// Config holds user configuration loaded from ~/.config/go-voicenote/config.
type Config struct {
	OutputDir     string
	UploadBackend string
	UploadFolder  string
	Bucket        string
	PublicBaseURL string
	RESTEndpoint  string
	MinBytes      int
	SettleDelay   time.Duration
	MaxDuration   time.Duration
	OutboxPath    string
}

// dir returns the configuration directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/go-voicenote.
func dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "go-voicenote"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "go-voicenote"), nil
}

// path returns the full path to the config file.
func path() (string, error) {
	d, err := dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config"), nil
}

// Load reads the configuration file and environment variables.
// Precedence: config file values, then environment variable fallbacks,
// then defaults. A missing file is not an error.
func Load() (Config, error) {
	p, err := path()
	if err != nil {
		return Config{}, err
	}

	data, err := parseFile(p)
	if err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	lookup := func(key string) string {
		if v := data[key]; v != "" {
			return v
		}
		return os.Getenv(envFallbacks[key])
	}

	cfg := Config{
		OutputDir:     ExpandPath(lookup(KeyOutputDir)),
		UploadBackend: lookup(KeyUploadBackend),
		UploadFolder:  lookup(KeyUploadFolder),
		Bucket:        lookup(KeyBucket),
		PublicBaseURL: lookup(KeyPublicBaseURL),
		RESTEndpoint:  lookup(KeyRESTEndpoint),
		MinBytes:      DefaultMinBytes,
		SettleDelay:   DefaultSettleDelay,
		MaxDuration:   DefaultMaxDuration,
		OutboxPath:    ExpandPath(lookup(KeyOutboxPath)),
	}
	if cfg.UploadBackend == "" {
		cfg.UploadBackend = BackendLocal
	}
	if cfg.OutboxPath == "" {
		d, err := dir()
		if err != nil {
			return Config{}, err
		}
		cfg.OutboxPath = filepath.Join(d, "outbox.db")
	}

	for _, key := range []string{KeyUploadBackend, KeyMinBytes, KeySettleDelay, KeyMaxDuration} {
		v := lookup(key)
		if v == "" {
			continue
		}
		if err := Validate(key, v); err != nil {
			return Config{}, err
		}
		switch key {
		case KeyMinBytes:
			cfg.MinBytes, _ = strconv.Atoi(v)
		case KeySettleDelay:
			d, _ := time.ParseDuration(v)
			cfg.SettleDelay = ClampSettleDelay(d)
		case KeyMaxDuration:
			cfg.MaxDuration, _ = time.ParseDuration(v)
		}
	}

	return cfg, nil
}

// Validate checks that value is acceptable for key.
func Validate(key, value string) error {
	if _, ok := envFallbacks[key]; !ok {
		return fmt.Errorf("%w: %q (valid: %s)", ErrUnknownKey, key, strings.Join(Keys(), ", "))
	}
	switch key {
	case KeyUploadBackend:
		switch value {
		case BackendLocal, BackendS3, BackendGCS, BackendREST:
		default:
			return fmt.Errorf("%w: %s=%q (want local, s3, gcs or rest)", ErrInvalidValue, key, value)
		}
	case KeyMinBytes:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %s=%q (want a non-negative integer)", ErrInvalidValue, key, value)
		}
	case KeySettleDelay, KeyMaxDuration:
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: %s=%q (want a positive duration like 400ms)", ErrInvalidValue, key, value)
		}
	}
	return nil
}

// ClampSettleDelay keeps d within [MinSettleDelay, MaxSettleDelay].
func ClampSettleDelay(d time.Duration) time.Duration {
	return min(max(d, MinSettleDelay), MaxSettleDelay)
}

// parseFile reads a key=value config file.
// Format: one key=value per line, # comments, empty lines ignored.
func parseFile(p string) (map[string]string, error) {
	f, err := os.Open(p) // #nosec G304 -- config path is constructed from home dir
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid syntax at line %d: %q", lineNum, line)
		}
		data[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return data, nil
}

// Save validates and writes a single key=value to the config file.
// Creates the config directory and file if they don't exist.
// Preserves existing key=value pairs but discards comments.
func Save(key, value string) error {
	if err := Validate(key, value); err != nil {
		return err
	}
	p, err := path()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil { // #nosec G301 -- user config dir
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	existing, _ := parseFile(p)
	if existing == nil {
		existing = make(map[string]string)
	}
	existing[key] = value

	return writeFile(p, existing)
}

// writeFile writes the config map to a file in key order.
func writeFile(p string, data map[string]string) error {
	// #nosec G302 G304 -- config file with standard permissions, path from home dir
	f, err := os.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("cannot write config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, key := range slices.Sorted(maps.Keys(data)) {
		if _, err := fmt.Fprintf(f, "%s=%s\n", key, data[key]); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	return nil
}

// Get reads a single value from the config file.
// Returns empty string if the key doesn't exist.
func Get(key string) (string, error) {
	data, err := List()
	if err != nil {
		return "", err
	}
	return data[key], nil
}

// List returns all config file values as a map.
func List() (map[string]string, error) {
	p, err := path()
	if err != nil {
		return nil, err
	}

	data, err := parseFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}

	return data, nil
}

// ResolveOutputPath resolves the final output path using the following precedence:
//  1. If output is absolute, use it as-is
//  2. If output is relative and outputDir is set, join them
//  3. If output is empty, use defaultName in outputDir (or cwd if no outputDir)
func ResolveOutputPath(output, outputDir, defaultName string) string {
	if output != "" && filepath.IsAbs(output) {
		return filepath.Clean(output)
	}
	if output != "" {
		if outputDir != "" {
			return filepath.Clean(filepath.Join(outputDir, output))
		}
		return filepath.Clean(output)
	}
	if outputDir != "" {
		return filepath.Clean(filepath.Join(outputDir, defaultName))
	}
	return filepath.Clean(defaultName)
}

// EnsureOutputDir creates d if needed and checks that it is a writable
// directory.
func EnsureOutputDir(d string) error {
	if d == "" {
		return fmt.Errorf("%w: output-dir cannot be empty", ErrInvalidValue)
	}
	d = ExpandPath(d)

	info, err := os.Stat(d)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(d, 0750); err != nil { // #nosec G301 -- user output dir
				return fmt.Errorf("cannot create directory: %w", err)
			}
			return nil
		}
		return fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", d)
	}

	testFile := filepath.Join(d, ".go-voicenote-write-test")
	f, err := os.Create(testFile) // #nosec G304 -- path is constructed from validated dir
	if err != nil {
		return fmt.Errorf("directory is not writable: %w", err)
	}
	_ = f.Close()
	_ = os.Remove(testFile)

	return nil
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, p[2:])
	}
	return p
}

// Dir returns the configuration directory path.
func Dir() (string, error) {
	return dir()
}
