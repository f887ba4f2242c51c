package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/andreyvit/pbdb"
)

// DefaultConfigFile is read when --config is not given, if it exists.
const DefaultConfigFile = "pbdb.yaml"

// Config holds project settings shared by commands. Command-line flags
// override it.
type Config struct {
	DescriptorSet string `yaml:"descriptor_set"`
	DB            string `yaml:"db"`
	Engine        string `yaml:"engine"`
	Verbose       bool   `yaml:"verbose,omitempty"`

	Gen GenConfig `yaml:"gen"`
}

type GenConfig struct {
	Out       string `yaml:"out"`
	Package   string `yaml:"package,omitempty"`
	GoPackage string `yaml:"go_package,omitempty"`
}

func defaultConfig() *Config {
	return &Config{
		Engine: pbdb.EngineBolt.String(),
		Gen: GenConfig{
			Out: "-",
		},
	}
}

// ParseConfigBytes decodes YAML over the defaults. Unknown keys are errors.
func ParseConfigBytes(data []byte) (*Config, error) {
	cfg := defaultConfig()
	if len(data) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if _, err := pbdb.ParseEngine(cfg.Engine); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads fn. A missing file yields the defaults unless required.
func LoadConfig(fn string, required bool) (*Config, error) {
	data, err := os.ReadFile(fn)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return defaultConfig(), nil
	} else if err != nil {
		return nil, err
	}
	cfg, err := ParseConfigBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return cfg, nil
}

func setupConfig(c *cli.Context) error {
	fn := c.String("config")
	cfg, err := LoadConfig(fn, c.IsSet("config"))
	if err != nil {
		return err
	}
	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[configKeyName] = cfg
	return nil
}

const configKeyName = "pbdb.config"

func configFrom(c *cli.Context) *Config {
	if cfg, ok := c.App.Metadata[configKeyName].(*Config); ok {
		return cfg
	}
	return defaultConfig()
}

// stringOpt returns the flag value if it was given, otherwise the config value.
func stringOpt(c *cli.Context, flag, configured string) string {
	if c.IsSet(flag) || configured == "" {
		return c.String(flag)
	}
	return configured
}

func (cfg *Config) dbOptions(c *cli.Context) (pbdb.Options, error) {
	engine, err := pbdb.ParseEngine(stringOpt(c, "engine", cfg.Engine))
	if err != nil {
		return pbdb.Options{}, err
	}
	opt := pbdb.DefaultOptions()
	opt.CreateIfMissing = false
	opt.Engine = engine
	opt.Verbose = cfg.Verbose || c.Bool("verbose")
	opt.Logger = loggerFrom(c)
	return opt, nil
}
