package changefeed

import (
	"testing"
	"time"

	"github.com/roboricindustries/raycon-changefeed/pkg/schemas/changes"
	"github.com/roboricindustries/raycon-changefeed/pkg/store"
	"github.com/stretchr/testify/assert"
)

func TestMapOperation(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)
	live := store.Record{"id": "t-1", "deletedAt": nil}
	deleted := store.Record{"id": "t-1", "deletedAt": now}
	deletedBefore := store.Record{"id": "t-1", "deletedAt": earlier}

	cases := []struct {
		name     string
		raw      changes.Operation
		existing store.Record
		updated  store.Record
		want     changes.Operation
	}{
		{"create passes through", changes.Create, nil, live, changes.Create},
		{"plain update", changes.Update, live, live, changes.Update},
		{"soft delete becomes delete", changes.Update, live, deleted, changes.Delete},
		{"marker absent before", changes.Update, store.Record{"id": "t-1"}, deleted, changes.Delete},
		{"already deleted stays update", changes.Update, deletedBefore, deleted, changes.Update},
		{"restore stays update", changes.Update, deleted, live, changes.Update},
		{"create with marker is not reclassified", changes.Create, nil, deleted, changes.Create},
		{"hard delete passes through", changes.Delete, live, nil, changes.Delete},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, MapOperation(c.raw, c.existing, c.updated, ""))
		})
	}
}

func TestMapOperation_CustomMarker(t *testing.T) {
	got := MapOperation(changes.Update,
		store.Record{"archived": false},
		store.Record{"archived": true},
		"archived")
	assert.Equal(t, changes.Delete, got)
}
