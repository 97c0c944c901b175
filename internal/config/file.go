package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the subset of Config that may live in a YAML file.
type fileConfig struct {
	Backend struct {
		URL            string `yaml:"url"`
		CookieName     string `yaml:"cookie_name"`
		ClientID       string `yaml:"client_id"`
		RequestTimeout string `yaml:"request_timeout"`
		AuthReturnPath string `yaml:"auth_return_path"`
	} `yaml:"backend"`
	DownloadDir  string `yaml:"download_dir"`
	DatabasePath string `yaml:"database_path"`
	Log          struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Defaults struct {
		MealKind  string `yaml:"meal_kind"`
		MealCount int    `yaml:"meal_count"`
		Zip       string `yaml:"zip"`
	} `yaml:"defaults"`
	PlanSource  string `yaml:"plan_source"`
	GeminiModel string `yaml:"gemini_model"`
	Port        string `yaml:"port"`
}

// applyFile overlays non-empty values from a YAML file. Secrets are read from
// the environment only.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.BackendURL, fc.Backend.URL)
	set(&c.SessionCookieName, fc.Backend.CookieName)
	set(&c.ClientID, fc.Backend.ClientID)
	set(&c.AuthReturnPath, fc.Backend.AuthReturnPath)
	set(&c.DownloadDir, fc.DownloadDir)
	set(&c.DatabasePath, fc.DatabasePath)
	set(&c.LogLevel, fc.Log.Level)
	set(&c.LogFormat, fc.Log.Format)
	set(&c.DefaultMealKind, fc.Defaults.MealKind)
	set(&c.DefaultZip, fc.Defaults.Zip)
	set(&c.PlanSource, fc.PlanSource)
	set(&c.GeminiModel, fc.GeminiModel)
	set(&c.Port, fc.Port)

	if fc.Defaults.MealCount > 0 {
		c.DefaultMealCount = fc.Defaults.MealCount
	}
	if fc.Backend.RequestTimeout != "" {
		d, err := time.ParseDuration(fc.Backend.RequestTimeout)
		if err != nil {
			return fmt.Errorf("invalid backend.request_timeout %q: %w", fc.Backend.RequestTimeout, err)
		}
		c.RequestTimeout = d
	}
	return nil
}
