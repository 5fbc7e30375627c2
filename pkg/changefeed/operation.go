// Package changefeed publishes a message for every change of a tracked
// entity. A Notifier is attached to an entity's after-change hook through a
// Registry; for each change it maps the operation, resolves the targets
// (channel + id) the change fans out to, and publishes one message per target
// on "<prefix>.<channel>.<id>.<entity>". Publishing is best effort: failures
// are logged per target and never reach the mutation that triggered them.
package changefeed

import (
	"github.com/roboricindustries/raycon-changefeed/pkg/schemas/changes"
	"github.com/roboricindustries/raycon-changefeed/pkg/store"
)

const DefaultSoftDeleteField = "deletedAt"

// MapOperation returns the operation consumers see. An update that sets the
// soft-delete marker (unset before, set after) is reported as a delete; every
// other combination passes raw through.
func MapOperation(raw changes.Operation, existing, updated store.Record, marker string) changes.Operation {
	if marker == "" {
		marker = DefaultSoftDeleteField
	}
	if raw == changes.Update && updated.IsSet(marker) && !existing.IsSet(marker) {
		return changes.Delete
	}
	return raw
}
