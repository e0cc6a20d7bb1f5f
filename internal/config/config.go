// Package config loads the process configuration and holds the runtime
// parameters shared by the capture and confirmation layers.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Process defaults.
const (
	DefaultAddr              = ":5000"
	DefaultCameraID          = 0
	DefaultModelPath         = "models/gesture_recognizer.task"
	DefaultMaxSentenceLength = 10
	DefaultMaxLogSize        = 50
	DefaultStreamFPS         = 30
	DefaultMQTTTopic         = "kalimat"
)

// Config holds the process configuration.
type Config struct {
	Addr              string     `yaml:"addr"`
	CameraID          int        `yaml:"camera_id"`
	ModelPath         string     `yaml:"model_path"`
	DataDir           string     `yaml:"data_dir"`
	StaticDir         string     `yaml:"static_dir"`
	PluginDir         string     `yaml:"plugin_dir"`
	MaxSentenceLength int        `yaml:"max_sentence_length"`
	MaxLogSize        int        `yaml:"max_log_size"`
	StreamFPS         int        `yaml:"stream_fps"`
	Persist           bool       `yaml:"persist"`
	Tray              bool       `yaml:"tray"`
	Runtime           Snapshot   `yaml:"runtime"`
	MQTT              MQTTConfig `yaml:"mqtt"`

	// Path is the YAML file the configuration was read from, if any.
	Path string `yaml:"-"`

	// runtimeFlags names the runtime flags given on the command line.
	runtimeFlags []string
}

// MQTTConfig contains the optional broker settings for publishing confirmed words.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// Default returns a Config populated with default values.
func Default() *Config {
	dataDir := ".kalimat"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".kalimat")
	}

	return &Config{
		Addr:              DefaultAddr,
		CameraID:          DefaultCameraID,
		ModelPath:         DefaultModelPath,
		DataDir:           dataDir,
		MaxSentenceLength: DefaultMaxSentenceLength,
		MaxLogSize:        DefaultMaxLogSize,
		StreamFPS:         DefaultStreamFPS,
		Persist:           true,
		Runtime: Snapshot{
			Threshold:   DefaultThreshold,
			Cooldown:    DefaultCooldown,
			Consecutive: DefaultConsecutive,
			Mirror:      true,
		},
		MQTT: MQTTConfig{
			TopicPrefix: DefaultMQTTTopic,
		},
	}
}

// Load builds the configuration from, in increasing priority: defaults, the
// YAML file named by -config or KALIMAT_CONFIG, a .env file, KALIMAT_*
// environment variables, and finally the command-line flags in args.
func Load(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("kalimat", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("KALIMAT_CONFIG"), "YAML configuration file")
	addr := fs.String("addr", cfg.Addr, "HTTP listen address")
	cameraID := fs.Int("camera", cfg.CameraID, "camera device index")
	modelPath := fs.String("model", cfg.ModelPath, "gesture recognizer model path")
	dataDir := fs.String("data-dir", cfg.DataDir, "directory for the settings database")
	staticDir := fs.String("web", cfg.StaticDir, "directory with static web files")
	pluginDir := fs.String("plugins", cfg.PluginDir, "directory with transcript plugins (default <data-dir>/plugins)")
	persist := fs.Bool("persist", cfg.Persist, "persist runtime settings across restarts")
	tray := fs.Bool("tray", cfg.Tray, "show a system tray menu")
	threshold := fs.Float64("threshold", cfg.Runtime.Threshold, "confidence threshold (0.0-1.0)")
	cooldown := fs.Float64("cooldown", cfg.Runtime.Cooldown, "seconds between voting evaluations")
	consecutive := fs.Int("consecutive", cfg.Runtime.Consecutive, "agreeing evaluations needed to confirm")
	mirror := fs.Bool("mirror", cfg.Runtime.Mirror, "mirror the camera image")
	broker := fs.String("mqtt-broker", cfg.MQTT.Broker, "MQTT broker host:port (empty disables)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		if err := cfg.loadFile(*configPath); err != nil {
			return nil, err
		}
	}

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	// Only flags given explicitly override the file and environment.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "camera":
			cfg.CameraID = *cameraID
		case "model":
			cfg.ModelPath = *modelPath
		case "data-dir":
			cfg.DataDir = *dataDir
		case "web":
			cfg.StaticDir = *staticDir
		case "plugins":
			cfg.PluginDir = *pluginDir
		case "persist":
			cfg.Persist = *persist
		case "tray":
			cfg.Tray = *tray
		case "threshold":
			cfg.Runtime.Threshold = *threshold
			cfg.runtimeFlags = append(cfg.runtimeFlags, f.Name)
		case "cooldown":
			cfg.Runtime.Cooldown = *cooldown
			cfg.runtimeFlags = append(cfg.runtimeFlags, f.Name)
		case "consecutive":
			cfg.Runtime.Consecutive = *consecutive
			cfg.runtimeFlags = append(cfg.runtimeFlags, f.Name)
		case "mirror":
			cfg.Runtime.Mirror = *mirror
			cfg.runtimeFlags = append(cfg.runtimeFlags, f.Name)
		case "mqtt-broker":
			cfg.MQTT.Broker = *broker
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile reads a YAML file on top of the defaults and validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	c.Path = path
	return nil
}

func (c *Config) loadEnv() error {
	c.Addr = getEnv("KALIMAT_ADDR", c.Addr)
	c.ModelPath = getEnv("KALIMAT_MODEL", c.ModelPath)
	c.DataDir = getEnv("KALIMAT_DATA_DIR", c.DataDir)
	c.StaticDir = getEnv("KALIMAT_WEB_DIR", c.StaticDir)
	c.PluginDir = getEnv("KALIMAT_PLUGIN_DIR", c.PluginDir)
	c.MQTT.Broker = getEnv("KALIMAT_MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.TopicPrefix = getEnv("KALIMAT_MQTT_TOPIC", c.MQTT.TopicPrefix)

	if v := getEnv("KALIMAT_CAMERA", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid KALIMAT_CAMERA %q: %w", v, err)
		}
		c.CameraID = n
	}

	if v := getEnv("KALIMAT_THRESHOLD", ""); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid KALIMAT_THRESHOLD %q: %w", v, err)
		}
		c.Runtime.Threshold = f
	}

	if v := getEnv("KALIMAT_COOLDOWN", ""); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("invalid KALIMAT_COOLDOWN %q: %w", v, err)
		}
		c.Runtime.Cooldown = d
	}

	if v := getEnv("KALIMAT_CONSECUTIVE", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid KALIMAT_CONSECUTIVE %q: %w", v, err)
		}
		c.Runtime.Consecutive = n
	}

	if v := getEnv("KALIMAT_MIRROR", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid KALIMAT_MIRROR %q: %w", v, err)
		}
		c.Runtime.Mirror = b
	}

	return nil
}

// parseSeconds accepts either a plain number of seconds or a Go duration.
func parseSeconds(v string) (float64, error) {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	return d.Seconds(), nil
}

// Validate checks the configuration and fills derived defaults.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.CameraID < 0 {
		return fmt.Errorf("camera_id must be >= 0")
	}
	if c.MaxSentenceLength < 1 {
		return fmt.Errorf("max_sentence_length must be >= 1")
	}
	if c.MaxLogSize < 1 {
		return fmt.Errorf("max_log_size must be >= 1")
	}
	if c.StreamFPS <= 0 {
		c.StreamFPS = DefaultStreamFPS
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = DefaultMQTTTopic
	}
	if c.PluginDir == "" {
		c.PluginDir = filepath.Join(c.DataDir, "plugins")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}

	// Range checks are shared with the live setters.
	if err := NewRuntime().Apply(c.Runtime); err != nil {
		return fmt.Errorf("runtime: %w", err)
	}

	return nil
}

// ApplyRuntimeFlags writes the runtime parameters given as command-line
// flags to rt, so they win over values restored from the settings store.
func (c *Config) ApplyRuntimeFlags(rt *Runtime) error {
	for _, name := range c.runtimeFlags {
		var err error
		switch name {
		case "threshold":
			err = rt.SetThreshold(c.Runtime.Threshold)
		case "cooldown":
			err = rt.SetCooldown(c.Runtime.Cooldown)
		case "consecutive":
			err = rt.SetRequiredConsecutive(c.Runtime.Consecutive)
		case "mirror":
			rt.SetMirror(c.Runtime.Mirror)
		}
		if err != nil {
			return fmt.Errorf("-%s: %w", name, err)
		}
	}
	return nil
}

// DBPath returns the settings database location inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "kalimat.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
