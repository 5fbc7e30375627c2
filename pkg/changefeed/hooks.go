package changefeed

import (
	"context"
	"errors"

	"github.com/roboricindustries/raycon-changefeed/pkg/schemas/changes"
	"github.com/roboricindustries/raycon-changefeed/pkg/store"
)

type ResolveInputArgs struct {
	Entity       string
	Operation    changes.Operation
	Existing     store.Record
	ResolvedData store.Record
}

// ResolveInputHook may rewrite the data about to be written and returns it.
type ResolveInputHook func(ctx context.Context, args ResolveInputArgs) (store.Record, error)

// AfterChangeHook reacts to a committed change.
type AfterChangeHook func(ctx context.Context, ch Change) error

type Hooks struct {
	ResolveInput ResolveInputHook
	AfterChange  AfterChangeHook
}

// ComposeResolveInput runs existing first and threads its result into next.
// An error from existing stops the chain.
func ComposeResolveInput(existing, next ResolveInputHook) ResolveInputHook {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return func(ctx context.Context, args ResolveInputArgs) (store.Record, error) {
		data, err := existing(ctx, args)
		if err != nil {
			return nil, err
		}
		args.ResolvedData = data
		return next(ctx, args)
	}
}

// ComposeAfterChange runs both hooks in order, unconditionally. A failure
// of existing never stops next; their errors are joined for reporting only.
func ComposeAfterChange(existing, next AfterChangeHook) AfterChangeHook {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return func(ctx context.Context, ch Change) error {
		errA := existing(ctx, ch)
		errB := next(ctx, ch)
		return errors.Join(errA, errB)
	}
}

func ChainResolveInput(hooks ...ResolveInputHook) ResolveInputHook {
	var out ResolveInputHook
	for _, h := range hooks {
		out = ComposeResolveInput(out, h)
	}
	return out
}

func ChainAfterChange(hooks ...AfterChangeHook) AfterChangeHook {
	var out AfterChangeHook
	for _, h := range hooks {
		out = ComposeAfterChange(out, h)
	}
	return out
}
