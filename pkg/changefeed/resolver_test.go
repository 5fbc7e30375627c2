package changefeed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roboricindustries/raycon-changefeed/pkg/schemas/changes"
	"github.com/roboricindustries/raycon-changefeed/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(t *testing.T, reader store.Reader, opts ResolverOptions) (*TargetResolver, *logSink, *countingObserver) {
	t.Helper()
	logger, sink := newTestLogger()
	obs := &countingObserver{}
	r, err := NewTargetResolver(reader, opts, logger, obs)
	require.NoError(t, err)
	return r, sink, obs
}

func TestResolve_ByField(t *testing.T) {
	r, sink, _ := newResolver(t, nil, ResolverOptions{})
	ctx := context.Background()
	spec := ByField{Channel: "organization", Field: "organization"}

	got := r.Resolve(ctx, spec, ResolveArgs{Entity: "Ticket", Updated: store.Record{"organization": "org-1"}})
	assert.Equal(t, []Target{{Channel: "organization", ID: "org-1"}}, got)

	assert.Empty(t, r.Resolve(ctx, spec, ResolveArgs{Entity: "Ticket", Updated: store.Record{"organization": nil}}))
	assert.Empty(t, r.Resolve(ctx, spec, ResolveArgs{Entity: "Ticket", Updated: store.Record{}}))
	assert.Empty(t, sink.errors())
}

func TestResolve_ByFieldFallsBackToExisting(t *testing.T) {
	r, _, _ := newResolver(t, nil, ResolverOptions{})
	got := r.Resolve(context.Background(),
		ByField{Channel: "organization", Field: "organization"},
		ResolveArgs{Entity: "Ticket", Operation: changes.Delete, Existing: store.Record{"organization": "org-1"}})
	assert.Equal(t, []Target{{Channel: "organization", ID: "org-1"}}, got)
}

func TestResolve_ByResolver(t *testing.T) {
	ctx := context.Background()
	args := ResolveArgs{
		Entity:    "Ticket",
		Operation: changes.Update,
		Updated:   store.Record{"id": "t-1", "assignee": "u-7"},
		Existing:  store.Record{"id": "t-1", "assignee": "u-3"},
	}

	t.Run("returns id", func(t *testing.T) {
		r, _, _ := newResolver(t, nil, ResolverOptions{})
		var seen ResolveArgs
		spec := ByResolver{Channel: "user", Resolve: func(_ context.Context, a ResolveArgs) (string, error) {
			seen = a
			id, _ := a.Updated.String("assignee")
			return id, nil
		}}
		assert.Equal(t, []Target{{Channel: "user", ID: "u-7"}}, r.Resolve(ctx, spec, args))
		assert.Equal(t, args, seen)
	})

	t.Run("empty id skips without logging", func(t *testing.T) {
		r, sink, obs := newResolver(t, nil, ResolverOptions{})
		spec := ByResolver{Channel: "user", Resolve: noopResolve}
		assert.Empty(t, r.Resolve(ctx, spec, args))
		assert.Empty(t, sink.errors())
		assert.Zero(t, obs.resolveFailed)
	})

	t.Run("error is logged and skipped", func(t *testing.T) {
		r, sink, obs := newResolver(t, nil, ResolverOptions{})
		spec := ByResolver{Channel: "user", Resolve: func(context.Context, ResolveArgs) (string, error) {
			return "", errors.New("lookup failed")
		}}
		assert.Empty(t, r.Resolve(ctx, spec, args))
		entries := sink.errors()
		require.Len(t, entries, 1)
		assert.Equal(t, "Ticket", entries[0]["entity"])
		assert.Equal(t, "user", entries[0]["channel"])
		assert.Equal(t, "lookup failed", entries[0]["error"])
		assert.Equal(t, 1, obs.resolveFailed)
	})

	t.Run("panic is recovered", func(t *testing.T) {
		r, sink, _ := newResolver(t, nil, ResolverOptions{})
		spec := ByResolver{Channel: "user", Resolve: func(context.Context, ResolveArgs) (string, error) {
			panic("nil map")
		}}
		assert.NotPanics(t, func() { assert.Empty(t, r.Resolve(ctx, spec, args)) })
		require.Len(t, sink.errors(), 1)
	})
}

func TestResolve_OrganizationDirect(t *testing.T) {
	mem := store.NewMemory()
	mem.Put("OrganizationLink", store.Record{"id": "l-1", "from": "org-9", "to": "org-1", "deletedAt": nil})
	r, _, _ := newResolver(t, mem, ResolverOptions{})

	got := r.Resolve(context.Background(), ByOrganization{Channel: "organization"},
		ResolveArgs{Entity: "Ticket", Updated: store.Record{"id": "t-1", "organization": "org-1"}})
	assert.Equal(t, []Target{
		{Channel: "organization", ID: "org-1"},
		{Channel: "organization", ID: "org-9"},
	}, got)
}

func TestResolve_OrganizationFromField(t *testing.T) {
	mem := store.NewMemory()
	mem.Put("Ticket", store.Record{"id": "t-1", "organization": "org-2"})
	mem.Put("OrganizationLink",
		store.Record{"id": "l-0", "from": "org-7", "to": "org-2", "deletedAt": time.Now()},
		store.Record{"id": "l-1", "from": "org-9", "to": "org-2", "deletedAt": nil},
	)
	r, sink, _ := newResolver(t, mem, ResolverOptions{})
	spec := ByOrganization{Channel: "organization", FromField: "ticket"}

	got := r.Resolve(context.Background(), spec,
		ResolveArgs{Entity: "TicketComment", Updated: store.Record{"id": "c-1", "ticket": "t-1"}})
	assert.Equal(t, []Target{
		{Channel: "organization", ID: "org-2"},
		{Channel: "organization", ID: "org-9"},
	}, got)

	// relation unset or pointing at nothing: silent skip
	assert.Empty(t, r.Resolve(context.Background(), spec,
		ResolveArgs{Entity: "TicketComment", Updated: store.Record{"id": "c-2"}}))
	assert.Empty(t, r.Resolve(context.Background(), spec,
		ResolveArgs{Entity: "TicketComment", Updated: store.Record{"id": "c-3", "ticket": "gone"}}))
	assert.Empty(t, sink.errors())
}

func TestResolve_OrganizationFromEntityOverride(t *testing.T) {
	mem := store.NewMemory()
	mem.Put("Property", store.Record{"id": "p-1", "organization": "org-4"})
	r, _, _ := newResolver(t, mem, ResolverOptions{})

	got := r.Resolve(context.Background(),
		ByOrganization{Channel: "organization", FromField: "building", FromEntity: "Property"},
		ResolveArgs{Entity: "Meter", Updated: store.Record{"id": "m-1", "building": store.Record{"id": "p-1"}}})
	assert.Equal(t, []Target{{Channel: "organization", ID: "org-4"}}, got)
}

func TestResolve_HoldingSameAsOwnIsPublishedOnce(t *testing.T) {
	mem := store.NewMemory()
	mem.Put("OrganizationLink", store.Record{"id": "l-1", "from": "org-1", "to": "org-1"})
	r, _, _ := newResolver(t, mem, ResolverOptions{})

	got := r.Resolve(context.Background(), ByOrganization{Channel: "organization"},
		ResolveArgs{Entity: "Ticket", Updated: store.Record{"organization": "org-1"}})
	assert.Equal(t, []Target{{Channel: "organization", ID: "org-1"}}, got)
}

func TestResolve_HoldingLookupFailureKeepsOwn(t *testing.T) {
	mem := store.NewMemory()
	mem.FailWith("OrganizationLink", errors.New("replica lag"))
	r, sink, obs := newResolver(t, mem, ResolverOptions{})

	got := r.Resolve(context.Background(), ByOrganization{Channel: "organization"},
		ResolveArgs{Entity: "Ticket", Updated: store.Record{"organization": "org-1"}})
	assert.Equal(t, []Target{{Channel: "organization", ID: "org-1"}}, got)
	require.Len(t, sink.errors(), 1)
	assert.Equal(t, 1, obs.resolveFailed)
}

func TestResolve_OwnLookupFailureSkipsEntry(t *testing.T) {
	mem := store.NewMemory()
	mem.FailWith("Ticket", errors.New("timeout"))
	r, sink, _ := newResolver(t, mem, ResolverOptions{})

	got := r.Resolve(context.Background(), ByOrganization{Channel: "organization", FromField: "ticket"},
		ResolveArgs{Entity: "TicketComment", Updated: store.Record{"ticket": "t-1"}})
	assert.Empty(t, got)
	entries := sink.errors()
	require.Len(t, entries, 1)
	assert.Equal(t, "TicketComment", entries[0]["entity"])
	assert.Equal(t, "organization", entries[0]["channel"])
}

func TestResolve_HoldingCache(t *testing.T) {
	mem := store.NewMemory()
	mem.Put("OrganizationLink", store.Record{"id": "l-1", "from": "org-9", "to": "org-1"})
	reader := &countingReader{Reader: mem}
	r, _, _ := newResolver(t, reader, ResolverOptions{HoldingCacheSize: 8, HoldingCacheTTL: time.Minute})

	args := ResolveArgs{Entity: "Ticket", Updated: store.Record{"organization": "org-1"}}
	spec := ByOrganization{Channel: "organization"}
	first := r.Resolve(context.Background(), spec, args)
	second := r.Resolve(context.Background(), spec, args)
	assert.Equal(t, first, second)
	assert.Len(t, second, 2)
	assert.Equal(t, 1, reader.finds)

	// absence is cached as well
	args.Updated = store.Record{"organization": "org-5"}
	assert.Len(t, r.Resolve(context.Background(), spec, args), 1)
	assert.Len(t, r.Resolve(context.Background(), spec, args), 1)
	assert.Equal(t, 2, reader.finds)
}

func TestResolve_HoldingCacheExpires(t *testing.T) {
	mem := store.NewMemory()
	reader := &countingReader{Reader: mem}
	r, _, _ := newResolver(t, reader, ResolverOptions{HoldingCacheSize: 8, HoldingCacheTTL: time.Nanosecond})

	args := ResolveArgs{Entity: "Ticket", Updated: store.Record{"organization": "org-1"}}
	r.Resolve(context.Background(), ByOrganization{Channel: "organization"}, args)
	time.Sleep(time.Millisecond)
	r.Resolve(context.Background(), ByOrganization{Channel: "organization"}, args)
	assert.Equal(t, 2, reader.finds)
}
