// Package config resolves skonnx settings from defaults, an optional
// skonnx.yaml file, SKONNX_* environment variables and command flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/zerfoo/skonnx/pkg/pipeline"
)

// Name is the config file base name and the environment prefix.
const Name = "skonnx"

// Storage locates the bucket the edge function reads models from.
type Storage struct {
	Bucket string `mapstructure:"bucket"`
	URL    string `mapstructure:"url"`
	Key    string `mapstructure:"key"`
}

// Log configures the rotating log file.
type Log struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Config holds every setting of the convert workflow.
type Config struct {
	Source            string    `mapstructure:"source"`
	Output            string    `mapstructure:"output"`
	InputName         string    `mapstructure:"input_name"`
	Features          int       `mapstructure:"features"`
	TargetOpset       int64     `mapstructure:"target_opset"`
	Sample            []float32 `mapstructure:"sample"`
	ZipMap            bool      `mapstructure:"zipmap"`
	VerifyEquivalence bool      `mapstructure:"verify_equivalence"`
	Storage           Storage   `mapstructure:"storage"`
	Log               Log       `mapstructure:"log"`
}

// SetDefaults registers the default of every key on v. Workflow keys take
// their values from pipeline.DefaultConfig.
func SetDefaults(v *viper.Viper) {
	d := pipeline.DefaultConfig()
	v.SetDefault("source", d.Source)
	v.SetDefault("output", d.Output)
	v.SetDefault("input_name", d.InputName)
	v.SetDefault("features", d.Features)
	v.SetDefault("target_opset", d.TargetOpset)
	v.SetDefault("sample", d.Sample)
	v.SetDefault("zipmap", d.ZipMap)
	v.SetDefault("verify_equivalence", d.VerifyEquivalence)
	v.SetDefault("storage.bucket", d.Bucket)
	v.SetDefault("storage.url", "")
	v.SetDefault("storage.key", "")
	v.SetDefault("log.file", Name+".log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
}

// Init points v at the config file and environment. An empty cfgFile
// searches ./skonnx.yaml and ~/.config/skonnx/skonnx.yaml. A missing file is
// not an error; the returned path is empty then.
func Init(v *viper.Viper, cfgFile string) (string, error) {
	SetDefaults(v)
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(Name)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", Name))
		}
	}

	v.SetEnvPrefix(strings.ToUpper(Name))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read config: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// Load decodes the settings held by v.
func Load(v *viper.Viper) (*Config, error) {
	// env values and flags arrive as one string
	if s, ok := v.Get("sample").(string); ok {
		sample, err := ParseSample(s)
		if err != nil {
			return nil, err
		}
		v.Set("sample", sample)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ParseSample reads a comma or space separated list of floats, optionally
// wrapped in brackets.
func ParseSample(s string) ([]float32, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]float32, 0, len(fields))
	for _, f := range fields {
		x, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("sample value %q is not a number", f)
		}
		out = append(out, float32(x))
	}
	return out, nil
}

// Validate reports settings the workflow cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Source == "":
		return fmt.Errorf("source is empty")
	case c.Output == "":
		return fmt.Errorf("output is empty")
	case c.InputName == "":
		return fmt.Errorf("input_name is empty")
	case c.Features <= 0:
		return fmt.Errorf("features must be positive, got %d", c.Features)
	case len(c.Sample) != c.Features:
		return fmt.Errorf("sample has %d values, features is %d", len(c.Sample), c.Features)
	}
	return nil
}
