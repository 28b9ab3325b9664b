package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
)

type ApplicationConfig struct {
	Name string `toml:"name"`
	// Frames to run before exiting. Zero runs until the engine is stopped.
	Frames uint64 `toml:"frames"`
}

type LoggingConfig struct {
	// One of debug, info, warn, error, fatal.
	Level string `toml:"level"`
}

type RendererConfig struct {
	MaxRenderables uint32 `toml:"max_renderables"`
	PartitionCount uint32 `toml:"partition_count"`
	// Zero waits forever.
	FenceTimeoutMS uint32 `toml:"fence_timeout_ms"`
}

type DeviceConfig struct {
	// Time the simulated GPU takes to retire one frame.
	LatencyMS uint32 `toml:"latency_ms"`
}

type AssetsConfig struct {
	Dir string `toml:"dir"`
	// Shader manifest, relative to Dir.
	Manifest string `toml:"manifest"`
	// Reload the pipeline when the manifest changes on disk.
	Watch bool `toml:"watch"`
}

type Config struct {
	Application ApplicationConfig `toml:"application"`
	Logging     LoggingConfig     `toml:"logging"`
	Renderer    RendererConfig    `toml:"renderer"`
	Device      DeviceConfig      `toml:"device"`
	Assets      AssetsConfig      `toml:"assets"`
}

func Default() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name: "Tessera Testbed",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Renderer: RendererConfig{
			MaxRenderables: 4096,
			PartitionCount: 3,
			FenceTimeoutMS: 5000,
		},
		Device: DeviceConfig{
			LatencyMS: 2,
		},
		Assets: AssetsConfig{
			Dir:      "assets",
			Manifest: "shaders/pipeline.shadercfg",
			Watch:    true,
		},
	}
}

// Load reads a TOML file on top of the defaults. Unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Decode(data []byte) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("unknown keys:\n%s", strict.String())
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Application.Name == "" {
		errs = append(errs, errors.New("application.name must not be empty"))
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level %q: %w", c.Logging.Level, err))
	}
	if c.Renderer.MaxRenderables == 0 {
		errs = append(errs, errors.New("renderer.max_renderables must be > 0"))
	}
	if c.Renderer.PartitionCount == 0 {
		errs = append(errs, errors.New("renderer.partition_count must be > 0"))
	}
	if c.Assets.Dir == "" || c.Assets.Manifest == "" {
		errs = append(errs, errors.New("assets.dir and assets.manifest must be set"))
	}
	return errors.Join(errs...)
}

func (c *Config) FenceTimeout() time.Duration {
	return time.Duration(c.Renderer.FenceTimeoutMS) * time.Millisecond
}

func (c *Config) Latency() time.Duration {
	return time.Duration(c.Device.LatencyMS) * time.Millisecond
}
