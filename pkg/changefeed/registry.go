package changefeed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/roboricindustries/raycon-changefeed/pkg/store"
)

// List is the registration of one entity type and its lifecycle hooks.
type List struct {
	Name  string
	Hooks Hooks
}

// Plugin extends a list at registration time, usually by composing a hook.
type Plugin func(List) (List, error)

var ErrRegistryFrozen = errors.New("registry is frozen")

// Registry holds the lists of a process. It is filled at startup and frozen
// by the first hook invocation; lists never change afterwards.
type Registry struct {
	mu     sync.RWMutex
	lists  map[string]List
	frozen bool
}

func NewRegistry() *Registry {
	return &Registry{lists: make(map[string]List)}
}

// Register applies plugins in order and stores the result. Any plugin error
// (typically ErrInvalidConfig) is returned and nothing is stored.
func (r *Registry) Register(list List, plugins ...Plugin) error {
	if list.Name == "" {
		return fmt.Errorf("%w: list name is required", ErrInvalidConfig)
	}
	for _, p := range plugins {
		var err error
		if list, err = p(list); err != nil {
			return fmt.Errorf("register %s: %w", list.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("register %s: %w", list.Name, ErrRegistryFrozen)
	}
	if _, dup := r.lists[list.Name]; dup {
		return fmt.Errorf("register %s: already registered", list.Name)
	}
	r.lists[list.Name] = list
	return nil
}

// MustRegister is Register for startup code: a bad config is fatal.
func (r *Registry) MustRegister(list List, plugins ...Plugin) {
	if err := r.Register(list, plugins...); err != nil {
		panic(err)
	}
}

func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

func (r *Registry) Lookup(name string) (List, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.lists[name]
	return l, ok
}

func (r *Registry) Entities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.lists))
	for name := range r.lists {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) list(name string) (List, bool) {
	r.mu.Lock()
	r.frozen = true
	l, ok := r.lists[name]
	r.mu.Unlock()
	return l, ok
}

// ResolveInput runs the composed resolve-input hook of args.Entity. Without
// a hook the data is returned unchanged.
func (r *Registry) ResolveInput(ctx context.Context, args ResolveInputArgs) (store.Record, error) {
	l, ok := r.list(args.Entity)
	if !ok || l.Hooks.ResolveInput == nil {
		return args.ResolvedData, nil
	}
	return l.Hooks.ResolveInput(ctx, args)
}

// AfterChange runs the composed after-change hook of ch.Entity. Every
// attached hook runs regardless of the others' results. The returned error
// joins what the hooks reported and is for the host to log: the change is
// already committed and must not be rolled back on it. Notification hooks
// never contribute to it.
func (r *Registry) AfterChange(ctx context.Context, ch Change) error {
	l, ok := r.list(ch.Entity)
	if !ok || l.Hooks.AfterChange == nil {
		return nil
	}
	return l.Hooks.AfterChange(ctx, ch)
}

// -----------------------------------------------------------------------------
// Plugins
// -----------------------------------------------------------------------------

// Notifications publishes every committed change of the list. The config is
// validated here, at registration.
func Notifications(cfg PluginConfig, deps Deps) Plugin {
	return func(l List) (List, error) {
		n, err := NewNotifier(l.Name, cfg, deps)
		if err != nil {
			return l, err
		}
		l.Hooks.AfterChange = ComposeAfterChange(l.Hooks.AfterChange, n.AfterChange)
		return l, nil
	}
}

func WithAfterChange(h AfterChangeHook) Plugin {
	return func(l List) (List, error) {
		l.Hooks.AfterChange = ComposeAfterChange(l.Hooks.AfterChange, h)
		return l, nil
	}
}

func WithResolveInput(h ResolveInputHook) Plugin {
	return func(l List) (List, error) {
		l.Hooks.ResolveInput = ComposeResolveInput(l.Hooks.ResolveInput, h)
		return l, nil
	}
}
