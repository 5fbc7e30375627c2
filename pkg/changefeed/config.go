package changefeed

import (
	"errors"
	"fmt"
)

const OrganizationChannel = "organization"

var ErrInvalidConfig = errors.New("invalid change notification config")

// PluginConfig declares where changes of one entity type are published.
// FromField is shorthand for an extra ByOrganization target on the
// organization channel.
type PluginConfig struct {
	Targets   []TargetSpec
	FromField string
}

func (c PluginConfig) Validate() error {
	if len(c.Targets) == 0 && c.FromField == "" {
		return fmt.Errorf("%w: targets must not be empty", ErrInvalidConfig)
	}
	for i, t := range c.Targets {
		if t == nil {
			return fmt.Errorf("%w: target %d is nil", ErrInvalidConfig, i)
		}
		if err := t.validate(); err != nil {
			return fmt.Errorf("%w: target %d: %v", ErrInvalidConfig, i, err)
		}
	}
	return nil
}

func (c PluginConfig) targets() []TargetSpec {
	out := make([]TargetSpec, 0, len(c.Targets)+1)
	out = append(out, c.Targets...)
	if c.FromField != "" {
		out = append(out, ByOrganization{Channel: OrganizationChannel, FromField: c.FromField})
	}
	return out
}

func (c PluginConfig) needsStore() bool {
	for _, t := range c.targets() {
		if _, ok := t.(ByOrganization); ok {
			return true
		}
	}
	return false
}
