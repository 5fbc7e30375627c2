package changefeed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roboricindustries/raycon-changefeed/pkg/pubsub"
	"github.com/roboricindustries/raycon-changefeed/pkg/schemas/changes"
	"github.com/roboricindustries/raycon-changefeed/pkg/schemas/common"
	"github.com/roboricindustries/raycon-changefeed/pkg/store"
)

// Change is what the host reports once a mutation is committed.
type Change struct {
	Entity    string
	Operation changes.Operation
	Existing  store.Record
	Updated   store.Record
}

// Deps are the collaborators shared by every notifier of a process.
type Deps struct {
	Publisher pubsub.Publisher
	// Resolver is required for organization targets; a store-less one is
	// created when nil.
	Resolver   *TargetResolver
	Dispatcher *Dispatcher
	Topics     TopicBuilder
	Logger     *slog.Logger
	Observer   Observer
	// SoftDeleteField names the soft-delete marker (default deletedAt).
	SoftDeleteField string
	// Producer is stamped on message metadata.
	Producer string
}

// Notifier publishes the changes of one entity type.
type Notifier struct {
	entity     string
	topicName  string
	targets    []TargetSpec
	pub        pubsub.Publisher
	resolver   *TargetResolver
	dispatcher *Dispatcher
	topics     TopicBuilder
	log        *slog.Logger
	observer   Observer
	marker     string
	producer   string
}

func NewNotifier(entity string, cfg PluginConfig, deps Deps) (*Notifier, error) {
	if entity == "" {
		return nil, fmt.Errorf("%w: entity name is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", entity, err)
	}
	if deps.Publisher == nil {
		return nil, fmt.Errorf("%s: publisher is required", entity)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	if deps.Resolver == nil {
		r, err := NewTargetResolver(nil, ResolverOptions{SoftDeleteField: deps.SoftDeleteField}, deps.Logger, deps.Observer)
		if err != nil {
			return nil, err
		}
		deps.Resolver = r
	}
	if cfg.needsStore() && !deps.Resolver.hasStore() {
		return nil, fmt.Errorf("%w: %s: organization targets require a store", ErrInvalidConfig, entity)
	}
	if deps.SoftDeleteField == "" {
		deps.SoftDeleteField = DefaultSoftDeleteField
	}

	return &Notifier{
		entity:     entity,
		topicName:  EntityName(entity),
		targets:    cfg.targets(),
		pub:        deps.Publisher,
		resolver:   deps.Resolver,
		dispatcher: deps.Dispatcher,
		topics:     deps.Topics,
		log:        deps.Logger.With(slog.String("entity", entity)),
		observer:   deps.Observer,
		marker:     deps.SoftDeleteField,
		producer:   deps.Producer,
	}, nil
}

// AfterChange is the after-change hook. It never returns an error: the
// mutation's outcome does not depend on publishing.
func (n *Notifier) AfterChange(ctx context.Context, ch Change) error {
	n.dispatcher.Run(ctx, func(ctx context.Context) {
		n.Notify(ctx, ch)
	})
	return nil
}

// Notify publishes ch to every resolved target and returns how many messages
// were accepted by the publisher. Each target entry is isolated: a failing
// entry is logged and the remaining ones still run.
func (n *Notifier) Notify(ctx context.Context, ch Change) int {
	op := MapOperation(ch.Operation, ch.Existing, ch.Updated, n.marker)
	id, ok := ch.Updated.ID()
	if !ok {
		id, ok = ch.Existing.ID()
	}
	if !ok {
		n.log.Warn("change without id, nothing to publish", slog.String("operation", string(op)))
		return 0
	}

	payload := changes.EntityChangedV1{ID: id, Operation: op}
	args := ResolveArgs{
		Entity:    n.entity,
		Operation: op,
		Updated:   ch.Updated,
		Existing:  ch.Existing,
	}

	sent := 0
	for _, spec := range n.targets {
		sent += n.publishEntry(ctx, spec, args, payload)
	}
	return sent
}

func (n *Notifier) publishEntry(ctx context.Context, spec TargetSpec, args ResolveArgs, payload changes.EntityChangedV1) (sent int) {
	channel := spec.channelName()
	defer func() {
		if p := recover(); p != nil {
			n.observer.PublishFailed(n.entity, channel)
			n.log.Error("publish change failed",
				slog.String("channel", channel),
				slog.Any("error", fmt.Errorf("panic: %v", p)),
			)
		}
	}()

	for _, t := range n.resolver.Resolve(ctx, spec, args) {
		msg := pubsub.Message{
			Topic: n.topics.Build(t.Channel, t.ID, n.topicName),
			Data:  payload,
			Meta: common.Meta{
				Type:     changes.EntityChangedMeta.EventType,
				Producer: n.producer,
			},
		}
		if err := n.pub.Publish(ctx, msg); err != nil {
			n.observer.PublishFailed(n.entity, t.Channel)
			n.log.Error("publish change failed",
				slog.String("channel", t.Channel),
				slog.String("topic", msg.Topic),
				slog.Any("error", err),
			)
			continue
		}
		n.observer.Published(n.entity, t.Channel)
		sent++
	}
	return sent
}
