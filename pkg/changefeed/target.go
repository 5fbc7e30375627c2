package changefeed

import (
	"context"
	"fmt"

	"github.com/roboricindustries/raycon-changefeed/pkg/schemas/changes"
	"github.com/roboricindustries/raycon-changefeed/pkg/store"
)

// Target is one resolved destination of a change.
type Target struct {
	Channel string
	ID      string
}

type ResolveArgs struct {
	Entity    string
	Operation changes.Operation
	Updated   store.Record
	Existing  store.Record
}

// ResolveFunc returns the target id for a change, or "" to skip the target.
type ResolveFunc func(ctx context.Context, args ResolveArgs) (string, error)

// TargetSpec is one configured target entry: ByField, ByResolver or
// ByOrganization.
type TargetSpec interface {
	channelName() string
	validate() error
}

// ByField reads the target id from a field of the changed record.
type ByField struct {
	Channel string
	Field   string
}

// ByResolver asks a caller-supplied function for the target id.
type ByResolver struct {
	Channel string
	Resolve ResolveFunc
}

// ByOrganization targets the owning organization and, when an active
// OrganizationLink points at it, the holding organization too.
//
// With FromField empty the owner is read from the record's own organization
// field. Otherwise FromField names a relation; the related record (entity
// FromEntity, default FromField with its first letter upper-cased) is loaded
// and its organization is used.
type ByOrganization struct {
	Channel    string
	FromField  string
	FromEntity string
}

func (t ByField) channelName() string        { return t.Channel }
func (t ByResolver) channelName() string     { return t.Channel }
func (t ByOrganization) channelName() string { return t.Channel }

func (t ByField) validate() error {
	if t.Channel == "" {
		return fmt.Errorf("channel is required")
	}
	if t.Field == "" {
		return fmt.Errorf("target %q: field or resolve is required", t.Channel)
	}
	return nil
}

func (t ByResolver) validate() error {
	if t.Channel == "" {
		return fmt.Errorf("channel is required")
	}
	if t.Resolve == nil {
		return fmt.Errorf("target %q: field or resolve is required", t.Channel)
	}
	return nil
}

func (t ByOrganization) validate() error {
	if t.Channel == "" {
		return fmt.Errorf("channel is required")
	}
	return nil
}

func (t ByOrganization) relatedEntity() string {
	if t.FromEntity != "" {
		return t.FromEntity
	}
	return upperFirst(t.FromField)
}

// NewTarget builds a target entry from the loose {channel, field?, resolve?}
// shape. Exactly one of field and resolve must be given.
func NewTarget(channel, field string, resolve ResolveFunc) (TargetSpec, error) {
	var spec TargetSpec
	switch {
	case field != "" && resolve != nil:
		return nil, fmt.Errorf("%w: target %q: field and resolve are mutually exclusive", ErrInvalidConfig, channel)
	case resolve != nil:
		spec = ByResolver{Channel: channel, Resolve: resolve}
	default:
		spec = ByField{Channel: channel, Field: field}
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return spec, nil
}
