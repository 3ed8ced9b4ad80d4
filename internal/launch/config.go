// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package launch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultConfigFile = "droidrun.yaml"

// Config is the optional per-project file. Zero fields leave the detected
// environment untouched. Relative paths are relative to the file itself.
type Config struct {
	ProjectDir string     `yaml:"project_dir"`
	Manifest   string     `yaml:"manifest"`
	Gradle     string     `yaml:"gradle"`
	BuildTask  string     `yaml:"build_task"`
	AVD        string     `yaml:"avd"`
	DNSServer  string     `yaml:"dns_server"`
	Ports      []string   `yaml:"ports"`
	Wait       WaitConfig `yaml:"wait"`

	dir string
}

type WaitConfig struct {
	Interval time.Duration `yaml:"interval"`
	Attempts int           `yaml:"attempts"`
}

// LoadConfig reads path. A missing file is only an error when required is
// set, so the default droidrun.yaml can be absent.
func LoadConfig(path string, required bool) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

func (c Config) path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.dir == "" {
		return p
	}
	return filepath.Join(c.dir, p)
}

// Apply overlays the non-zero fields of c onto env.
func (c Config) Apply(env *Env) error {
	if c.ProjectDir != "" {
		env.SetProjectDir(c.path(c.ProjectDir))
	}
	if c.Manifest != "" {
		env.ManifestPath = c.path(c.Manifest)
	}
	if c.Gradle != "" {
		env.Gradle = c.Gradle
	}
	if c.BuildTask != "" {
		env.BuildTask = c.BuildTask
	}
	if c.AVD != "" {
		env.AVD = c.AVD
	}
	if c.DNSServer != "" {
		env.DNSServer = c.DNSServer
	}
	if len(c.Ports) > 0 {
		ports := make([]PortMapping, 0, len(c.Ports))
		for _, p := range c.Ports {
			m, err := ParsePortMapping(p)
			if err != nil {
				return err
			}
			ports = append(ports, m)
		}
		env.Ports = ports
	}
	if c.Wait.Interval < 0 || c.Wait.Attempts < 0 {
		return fmt.Errorf("wait interval and attempts must not be negative")
	}
	if c.Wait.Interval > 0 {
		env.WaitInterval = c.Wait.Interval
	}
	if c.Wait.Attempts > 0 {
		env.WaitAttempts = c.Wait.Attempts
	}
	return nil
}
