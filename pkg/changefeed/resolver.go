package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/roboricindustries/raycon-changefeed/pkg/store"
)

type ResolverOptions struct {
	OrganizationField string
	LinkEntity        string
	LinkFromField     string
	LinkToField       string
	SoftDeleteField   string

	// HoldingCacheSize > 0 caches holding-organization lookups for
	// HoldingCacheTTL (default 30s).
	HoldingCacheSize int
	HoldingCacheTTL  time.Duration
}

func (o *ResolverOptions) normalize() {
	if o.OrganizationField == "" {
		o.OrganizationField = "organization"
	}
	if o.LinkEntity == "" {
		o.LinkEntity = "OrganizationLink"
	}
	if o.LinkFromField == "" {
		o.LinkFromField = "from"
	}
	if o.LinkToField == "" {
		o.LinkToField = "to"
	}
	if o.SoftDeleteField == "" {
		o.SoftDeleteField = DefaultSoftDeleteField
	}
	if o.HoldingCacheSize > 0 && o.HoldingCacheTTL <= 0 {
		o.HoldingCacheTTL = 30 * time.Second
	}
}

type holdingEntry struct {
	id      string
	expires time.Time
}

// TargetResolver turns a target entry into zero or more targets. It never
// fails: lookup and resolver errors are logged and the target is skipped.
type TargetResolver struct {
	reader   store.Reader
	opts     ResolverOptions
	cache    *lru.Cache[string, holdingEntry]
	log      *slog.Logger
	observer Observer
}

func NewTargetResolver(reader store.Reader, opts ResolverOptions, logger *slog.Logger, observer Observer) (*TargetResolver, error) {
	opts.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = NopObserver{}
	}
	r := &TargetResolver{
		reader:   reader,
		opts:     opts,
		log:      logger,
		observer: observer,
	}
	if opts.HoldingCacheSize > 0 {
		cache, err := lru.New[string, holdingEntry](opts.HoldingCacheSize)
		if err != nil {
			return nil, fmt.Errorf("create holding cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

func (r *TargetResolver) hasStore() bool { return r.reader != nil }

// Resolve returns the targets of one entry for args. The record read is
// args.Updated, or args.Existing when the change left no post-change state.
func (r *TargetResolver) Resolve(ctx context.Context, spec TargetSpec, args ResolveArgs) []Target {
	switch t := spec.(type) {
	case ByField:
		id, ok := state(args).String(t.Field)
		if !ok {
			return nil
		}
		return []Target{{Channel: t.Channel, ID: id}}

	case ByResolver:
		id, err := r.callResolver(ctx, t, args)
		if err != nil {
			r.failed(args.Entity, t.Channel, "resolve target failed", err)
			return nil
		}
		if id == "" {
			return nil
		}
		return []Target{{Channel: t.Channel, ID: id}}

	case ByOrganization:
		return r.resolveOrganization(ctx, t, args)
	}
	r.failed(args.Entity, spec.channelName(), "resolve target failed", fmt.Errorf("unsupported target %T", spec))
	return nil
}

func (r *TargetResolver) callResolver(ctx context.Context, t ByResolver, args ResolveArgs) (id string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("resolver panic: %v", p)
		}
	}()
	return t.Resolve(ctx, args)
}

// resolveOrganization yields the owning organization and, independently, the
// holding organization. A failed holding lookup still publishes to the owner.
func (r *TargetResolver) resolveOrganization(ctx context.Context, t ByOrganization, args ResolveArgs) []Target {
	own, err := r.ownOrganization(ctx, t, state(args))
	if err != nil {
		r.failed(args.Entity, t.Channel, "resolve organization failed", err)
		return nil
	}
	if own == "" {
		return nil
	}
	out := []Target{{Channel: t.Channel, ID: own}}

	holding, err := r.holdingOrganization(ctx, own)
	if err != nil {
		r.failed(args.Entity, t.Channel, "resolve holding organization failed", err)
		return out
	}
	if holding != "" && holding != own {
		out = append(out, Target{Channel: t.Channel, ID: holding})
	}
	return out
}

func (r *TargetResolver) ownOrganization(ctx context.Context, t ByOrganization, rec store.Record) (string, error) {
	if t.FromField == "" {
		id, _ := rec.String(r.opts.OrganizationField)
		return id, nil
	}
	relID, ok := rec.String(t.FromField)
	if !ok {
		return "", nil
	}
	if r.reader == nil {
		return "", fmt.Errorf("no store to load %s %s", t.relatedEntity(), relID)
	}
	related, err := r.reader.GetByID(ctx, t.relatedEntity(), relID)
	if err != nil {
		return "", fmt.Errorf("load %s %s: %w", t.relatedEntity(), relID, err)
	}
	id, _ := related.String(r.opts.OrganizationField)
	return id, nil
}

func (r *TargetResolver) holdingOrganization(ctx context.Context, orgID string) (string, error) {
	if r.cache != nil {
		if e, ok := r.cache.Get(orgID); ok {
			if time.Now().Before(e.expires) {
				return e.id, nil
			}
			r.cache.Remove(orgID)
		}
	}
	if r.reader == nil {
		return "", fmt.Errorf("no store to load %s", r.opts.LinkEntity)
	}
	links, err := r.reader.Find(ctx, r.opts.LinkEntity, store.Where{
		r.opts.LinkToField:     orgID,
		r.opts.SoftDeleteField: nil,
	})
	if err != nil {
		return "", fmt.Errorf("find %s to %s: %w", r.opts.LinkEntity, orgID, err)
	}
	holding := ""
	if len(links) > 0 {
		holding, _ = links[0].String(r.opts.LinkFromField)
	}
	if r.cache != nil {
		r.cache.Add(orgID, holdingEntry{id: holding, expires: time.Now().Add(r.opts.HoldingCacheTTL)})
	}
	return holding, nil
}

func (r *TargetResolver) failed(entity, channel, msg string, err error) {
	r.observer.ResolveFailed(entity, channel)
	r.log.Error(msg,
		slog.String("entity", entity),
		slog.String("channel", channel),
		slog.Any("error", err),
	)
}

func state(args ResolveArgs) store.Record {
	if args.Updated != nil {
		return args.Updated
	}
	return args.Existing
}
