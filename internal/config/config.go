package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-chess-client/internal/obslog"
	yaml "gopkg.in/yaml.v3"
)

type AppConfig struct {
	GameWSURL string
	ClientID  string

	ClockInitial time.Duration
	ClockTick    time.Duration

	WSMaxReconnect   int
	WSReconnectDelay time.Duration

	// ControlAddr is the local control API listen address. Empty disables it.
	ControlAddr string

	RedisURL         string
	RedisSnapshotTTL time.Duration

	MsgOverrideDir string

	Log obslog.Options
}

// fileConfig is the optional YAML overlay named by CLIENT_CONFIG_FILE.
type fileConfig struct {
	GameWSURL        string  `yaml:"game_ws_url"`
	ClientID         string  `yaml:"client_id"`
	ClockInitial     string  `yaml:"clock_initial"`
	ClockTick        string  `yaml:"clock_tick"`
	WSMaxReconnect   *int    `yaml:"ws_max_reconnect"`
	WSReconnectDelay string  `yaml:"ws_reconnect_delay"`
	ControlAddr      *string `yaml:"control_addr"`
	RedisURL         string  `yaml:"redis_url"`
	RedisSnapshotTTL string  `yaml:"redis_snapshot_ttl"`
	MsgOverrideDir   string  `yaml:"msg_override_dir"`
	Log              struct {
		Level   string `yaml:"level"`
		Console *bool  `yaml:"console"`
		File    *bool  `yaml:"file"`
		Path    string `yaml:"path"`
		Format  string `yaml:"format"`
		Caller  *bool  `yaml:"caller"`
	} `yaml:"log"`
}

func defaults() *AppConfig {
	return &AppConfig{
		ClockInitial:     5 * time.Minute,
		ClockTick:        time.Second,
		WSMaxReconnect:   5,
		WSReconnectDelay: time.Second,
		ControlAddr:      "127.0.0.1:8088",
		RedisSnapshotTTL: time.Hour,
		Log: obslog.Options{
			Level:    "info",
			Console:  true,
			File:     true,
			FilePath: obslog.DefaultFile,
			Format:   "legacy",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file and
// the environment, in that order.
func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CLIENT_CONFIG_FILE")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.GameWSURL, f.GameWSURL)
	setString(&c.ClientID, f.ClientID)
	setString(&c.RedisURL, f.RedisURL)
	setString(&c.MsgOverrideDir, f.MsgOverrideDir)
	if f.ControlAddr != nil {
		c.ControlAddr = strings.TrimSpace(*f.ControlAddr)
	}
	if f.WSMaxReconnect != nil {
		c.WSMaxReconnect = *f.WSMaxReconnect
	}
	for _, d := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"clock_initial", f.ClockInitial, &c.ClockInitial},
		{"clock_tick", f.ClockTick, &c.ClockTick},
		{"ws_reconnect_delay", f.WSReconnectDelay, &c.WSReconnectDelay},
		{"redis_snapshot_ttl", f.RedisSnapshotTTL, &c.RedisSnapshotTTL},
	} {
		if err := setDuration(d.dst, d.raw); err != nil {
			return fmt.Errorf("config file %s: %w", d.key, err)
		}
	}

	setString(&c.Log.Level, f.Log.Level)
	setString(&c.Log.FilePath, f.Log.Path)
	setString(&c.Log.Format, f.Log.Format)
	if f.Log.Console != nil {
		c.Log.Console = *f.Log.Console
	}
	if f.Log.File != nil {
		c.Log.File = *f.Log.File
	}
	if f.Log.Caller != nil {
		c.Log.Caller = *f.Log.Caller
	}
	return nil
}

func (c *AppConfig) applyEnv() error {
	setString(&c.GameWSURL, os.Getenv("GAME_WS_URL"))
	setString(&c.ClientID, os.Getenv("CLIENT_ID"))
	setString(&c.RedisURL, os.Getenv("REDIS_URL"))
	setString(&c.MsgOverrideDir, os.Getenv("MSG_OVERRIDE_DIR"))
	// CONTROL_ADDR="" 는 비활성화로 취급
	if v, ok := os.LookupEnv("CONTROL_ADDR"); ok {
		c.ControlAddr = strings.TrimSpace(v)
	}

	if v := strings.TrimSpace(os.Getenv("WS_MAX_RECONNECT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WS_MAX_RECONNECT: %w", err)
		}
		c.WSMaxReconnect = n
	}
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"CLOCK_INITIAL", &c.ClockInitial},
		{"CLOCK_TICK", &c.ClockTick},
		{"WS_RECONNECT_DELAY", &c.WSReconnectDelay},
		{"REDIS_SNAPSHOT_TTL", &c.RedisSnapshotTTL},
	} {
		if err := setDuration(d.dst, os.Getenv(d.key)); err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
	}

	setString(&c.Log.Level, os.Getenv("LOG_LEVEL"))
	setString(&c.Log.FilePath, os.Getenv("LOG_FILE"))
	setString(&c.Log.Format, os.Getenv("LOG_FORMAT"))
	setBool(&c.Log.Console, os.Getenv("LOG_TO_CONSOLE"))
	setBool(&c.Log.File, os.Getenv("LOG_TO_FILE"))
	setBool(&c.Log.Caller, os.Getenv("LOG_CALLER"))
	return nil
}

func (c *AppConfig) validate() error {
	if c.GameWSURL == "" {
		return errors.New("GAME_WS_URL is required")
	}
	if !strings.HasPrefix(c.GameWSURL, "ws://") && !strings.HasPrefix(c.GameWSURL, "wss://") {
		return fmt.Errorf("GAME_WS_URL must be a ws:// or wss:// url: %q", c.GameWSURL)
	}
	if c.ClockInitial <= 0 {
		return errors.New("CLOCK_INITIAL must be positive")
	}
	if c.ClockTick <= 0 || c.ClockTick > c.ClockInitial {
		return errors.New("CLOCK_TICK must be positive and not exceed CLOCK_INITIAL")
	}
	if c.WSMaxReconnect < 0 {
		return errors.New("WS_MAX_RECONNECT must not be negative")
	}
	if c.WSReconnectDelay <= 0 {
		return errors.New("WS_RECONNECT_DELAY must be positive")
	}
	if c.RedisURL != "" && c.RedisSnapshotTTL <= 0 {
		return errors.New("REDIS_SNAPSHOT_TTL must be positive")
	}
	return nil
}

func setString(dst *string, v string) {
	if s := strings.TrimSpace(v); s != "" {
		*dst = s
	}
}

func setBool(dst *bool, v string) {
	if s := strings.TrimSpace(v); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			*dst = b
		}
	}
}

// setDuration accepts Go durations ("90s", "5m") or a bare number of seconds.
func setDuration(dst *time.Duration, v string) error {
	s := strings.TrimSpace(v)
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		*dst = time.Duration(n) * time.Second
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
