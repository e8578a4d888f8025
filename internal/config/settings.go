package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"gtodo/internal/todo"
)

// Backend names accepted in config.yaml.
const (
	BackendSQLite      = "sqlite"
	BackendGoogleTasks = "googletasks"
)

// Settings are the user-editable options in config.yaml.
type Settings struct {
	Backend         string        `yaml:"backend"`
	Database        string        `yaml:"database"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	DefaultCategory string        `yaml:"default_category"`
}

// DefaultSettings returns the settings used when config.yaml is absent.
func DefaultSettings() Settings {
	return Settings{
		Backend:         BackendSQLite,
		Database:        "gtodo.db",
		PollInterval:    5 * time.Second,
		DefaultCategory: todo.DefaultCategory,
	}
}

// settingsSchema constrains config.yaml. #Settings is closed, so unknown
// keys are rejected.
const settingsSchema = `
#Settings: {
	backend?:          "sqlite" | "googletasks"
	database?:         string & != ""
	poll_interval?:    string & =~"^[0-9]+(ms|s|m|h)$"
	default_category?: string & != ""
}
`

// LoadSettings reads config.yaml into c.Settings. A missing file keeps the
// defaults; an invalid one is an error.
func (c *Config) LoadSettings() error {
	data, err := os.ReadFile(c.SettingsPath())
	if errors.Is(err, os.ErrNotExist) {
		c.Settings = DefaultSettings()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", SettingsFile, err)
	}

	s, err := ParseSettings(data)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", SettingsFile, err)
	}
	c.Settings = s
	return nil
}

// ParseSettings validates YAML against the schema and merges it over the defaults.
func ParseSettings(data []byte) (Settings, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Settings{}, err
	}
	if err := validateSettings(raw); err != nil {
		return Settings{}, err
	}

	s := DefaultSettings()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func validateSettings(raw map[string]any) error {
	if raw == nil {
		return nil
	}
	ctx := cuecontext.New()
	schema := ctx.CompileString(settingsSchema)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("settings schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Settings"))

	v := def.Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return nil
}
