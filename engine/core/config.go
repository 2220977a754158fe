package core

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type WindowConfig struct {
	X      uint32 `toml:"x" yaml:"x"`
	Y      uint32 `toml:"y" yaml:"y"`
	Width  uint32 `toml:"width" yaml:"width"`
	Height uint32 `toml:"height" yaml:"height"`
}

type RendererConfig struct {
	// Validation enables VK_LAYER_KHRONOS_validation and the debug report callback.
	Validation    bool `toml:"validation" yaml:"validation"`
	PreferMailbox bool `toml:"prefer_mailbox" yaml:"prefer_mailbox"`
	// DebugNames records names for device objects; validation messages about
	// a named object carry its name.
	DebugNames bool `toml:"debug_names" yaml:"debug_names"`
	// DebugView selects the fragment shader debug output. 0 is the lit image.
	DebugView int32 `toml:"debug_view" yaml:"debug_view"`
}

type AssetConfig struct {
	Root       string `toml:"root" yaml:"root"`
	ShaderDir  string `toml:"shader_dir" yaml:"shader_dir"`
	Font       string `toml:"font" yaml:"font"`
	// Material is a .mat file; its maps replace albedo and normal.
	Material   string `toml:"material" yaml:"material"`
	HotReload  bool   `toml:"hot_reload" yaml:"hot_reload"`
	AlbedoMap  string `toml:"albedo" yaml:"albedo"`
	NormalMap  string `toml:"normal" yaml:"normal"`
	LightCount int    `toml:"light_count" yaml:"light_count"`
}

type Config struct {
	ApplicationName string         `toml:"application_name" yaml:"application_name"`
	LogLevel        string         `toml:"log_level" yaml:"log_level"`
	Window          WindowConfig   `toml:"window" yaml:"window"`
	Renderer        RendererConfig `toml:"renderer" yaml:"renderer"`
	Assets          AssetConfig    `toml:"assets" yaml:"assets"`
}

func DefaultConfig() *Config {
	return &Config{
		ApplicationName: "forward+",
		LogLevel:        "info",
		Window: WindowConfig{
			X:      100,
			Y:      100,
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererConfig{
			Validation:    true,
			PreferMailbox: true,
			DebugNames:    true,
		},
		Assets: AssetConfig{
			Root:       "assets",
			ShaderDir:  "shaders",
			Font:       "fonts/default.fnt",
			HotReload:  true,
			LightCount: 200,
		},
	}
}

// LoadConfig reads a TOML or YAML file over the defaults. An empty path
// returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	if err := cfg.decode(filepath.Ext(path), data); err != nil {
		return nil, errors.Wrapf(err, "decoding config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(ext string, data []byte) error {
	switch strings.ToLower(ext) {
	case ".toml":
		return toml.Unmarshal(data, c)
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, c)
	default:
		return errors.Newf("unsupported config format '%s'", ext)
	}
}

func (c *Config) Validate() error {
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return errors.Newf("window size must be non-zero, got %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Assets.LightCount < 0 {
		return errors.Newf("light_count must not be negative, got %d", c.Assets.LightCount)
	}
	return nil
}
