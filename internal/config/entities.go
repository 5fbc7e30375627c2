package config

import (
	"fmt"

	"github.com/roboricindustries/raycon-changefeed/pkg/changefeed"
)

// EntityConfig declares change notifications for one entity type. Resolver
// targets cannot be expressed here; register those from code.
type EntityConfig struct {
	Name      string         `mapstructure:"name"`
	Targets   []TargetConfig `mapstructure:"targets"`
	FromField string         `mapstructure:"from_field"`
}

// TargetConfig is a field target, or an organization target when
// Organization or FromField is set.
type TargetConfig struct {
	Channel      string `mapstructure:"channel"`
	Field        string `mapstructure:"field"`
	Organization bool   `mapstructure:"organization"`
	FromField    string `mapstructure:"from_field"`
	FromEntity   string `mapstructure:"from_entity"`
}

func (e EntityConfig) PluginConfig() (changefeed.PluginConfig, error) {
	cfg := changefeed.PluginConfig{FromField: e.FromField}
	for i, t := range e.Targets {
		if t.Organization || t.FromField != "" {
			if t.Field != "" {
				return cfg, fmt.Errorf("%w: %s target %d: field and from_field are mutually exclusive",
					changefeed.ErrInvalidConfig, e.Name, i)
			}
			cfg.Targets = append(cfg.Targets, changefeed.ByOrganization{
				Channel:    t.Channel,
				FromField:  t.FromField,
				FromEntity: t.FromEntity,
			})
			continue
		}
		spec, err := changefeed.NewTarget(t.Channel, t.Field, nil)
		if err != nil {
			return cfg, fmt.Errorf("%s target %d: %w", e.Name, i, err)
		}
		cfg.Targets = append(cfg.Targets, spec)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", e.Name, err)
	}
	return cfg, nil
}
