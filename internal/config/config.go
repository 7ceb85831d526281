// Package config layers defaults, an optional config.yaml, NOTETREE_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "NOTETREE"
	configFileName = "config"
)

const (
	KeyDir          = "dir"
	KeyFormat       = "format"
	KeyPretty       = "pretty"
	KeyLogLevel     = "log_level"
	KeyRenderStyle  = "render.style"
	KeyRenderWidth  = "render.width"
	KeyTitlesNote   = "titles.note"
	KeyTitlesFolder = "titles.folder"
	KeyLockTimeout  = "lock_timeout"
)

type Config struct {
	Dir          string
	Format       string
	Pretty       bool
	LogLevel     string
	RenderStyle  string
	RenderWidth  int
	NoteTitle    string
	FolderTitle  string
	LockTimeoutS int
	// File is the config file that was read, if any.
	File string
}

// Dir returns the config directory: $NOTETREE_CONFIG_DIR or ~/.notetree.
func Dir() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvPrefix + "_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".notetree"), nil
}

// New returns a viper instance with defaults, env binding and the config
// file search path set. Flags are bound by the caller.
func New() (*viper.Viper, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetDefault(KeyDir, filepath.Join(dir, "default"))
	v.SetDefault(KeyFormat, "json")
	v.SetDefault(KeyPretty, false)
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyRenderStyle, "auto")
	v.SetDefault(KeyRenderWidth, 80)
	v.SetDefault(KeyTitlesNote, "Untitled.md")
	v.SetDefault(KeyTitlesFolder, "New Folder")
	v.SetDefault(KeyLockTimeout, 10)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(configFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	return v, nil
}

// Load reads the config file when present and returns the typed settings.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	cfg := Config{
		Dir:          strings.TrimSpace(v.GetString(KeyDir)),
		Format:       strings.ToLower(strings.TrimSpace(v.GetString(KeyFormat))),
		Pretty:       v.GetBool(KeyPretty),
		LogLevel:     strings.TrimSpace(v.GetString(KeyLogLevel)),
		RenderStyle:  strings.ToLower(strings.TrimSpace(v.GetString(KeyRenderStyle))),
		RenderWidth:  v.GetInt(KeyRenderWidth),
		NoteTitle:    strings.TrimSpace(v.GetString(KeyTitlesNote)),
		FolderTitle:  strings.TrimSpace(v.GetString(KeyTitlesFolder)),
		LockTimeoutS: v.GetInt(KeyLockTimeout),
		File:         v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Dir == "" {
		return errors.New("config: dir must not be empty")
	}
	switch c.RenderStyle {
	case "auto", "dark", "light":
	default:
		return fmt.Errorf("config: render.style must be auto|dark|light, got %q", c.RenderStyle)
	}
	if c.RenderWidth <= 0 {
		return fmt.Errorf("config: render.width must be positive, got %d", c.RenderWidth)
	}
	if c.NoteTitle == "" || c.FolderTitle == "" {
		return errors.New("config: default titles must not be empty")
	}
	return nil
}

// Settings returns every effective key, for the config command.
func Settings(v *viper.Viper) map[string]any {
	return v.AllSettings()
}
