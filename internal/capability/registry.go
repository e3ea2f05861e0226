package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"chefassist/internal/channel"
)

var (
	// ErrUnknownTool is returned for any tool name that was not registered.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidRegistry is returned when startup validation fails.
	ErrInvalidRegistry = errors.New("invalid tool registry")
)

// Executor is the tool-authoring boundary. Implementations may return a map, a
// struct, or serialized JSON text; the dispatcher normalizes all of them.
type Executor func(ctx context.Context, args json.RawMessage) (any, error)

// Descriptor describes one invocable tool. Descriptors are owned by the Registry
// and never mutated after registration.
type Descriptor struct {
	ID          ToolID
	Category    Category
	Description string
	InputSchema map[string]any
	Execute     Executor
}

// Registry maps tool identifiers to descriptors and channels to categories.
// It is built once at startup and is read-only afterwards, so it needs no locking.
type Registry struct {
	byID   map[ToolID]Descriptor
	order  []ToolID
	policy Policy
}

// NewRegistry builds and validates a registry. Every identifier of the catalogue
// must be registered exactly once.
func NewRegistry(policy Policy, descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{
		byID:   make(map[ToolID]Descriptor, len(descriptors)),
		order:  make([]ToolID, 0, len(descriptors)),
		policy: policy.clone(),
	}
	for _, d := range descriptors {
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("%w: %s registered twice", ErrInvalidRegistry, d.ID)
		}
		r.byID[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	sort.Slice(r.order, func(i, j int) bool { return r.order[i] < r.order[j] })

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the registry against the closed tool catalogue and the policy.
func (r *Registry) Validate() error {
	var errs []error
	for _, id := range Catalogue {
		if _, ok := r.byID[id]; !ok {
			errs = append(errs, fmt.Errorf("tool %s is not registered", id))
		}
	}
	for _, id := range r.order {
		d := r.byID[id]
		if !id.valid() {
			errs = append(errs, fmt.Errorf("tool %s is not part of the catalogue", id))
		}
		if !d.Category.valid() {
			errs = append(errs, fmt.Errorf("tool %s has unknown category %q", id, d.Category))
		}
		if d.Execute == nil {
			errs = append(errs, fmt.Errorf("tool %s has no executor", id))
		}
		if d.InputSchema == nil {
			errs = append(errs, fmt.Errorf("tool %s has no input schema", id))
		}
	}
	for _, ch := range channel.Known {
		set, ok := r.policy[ch]
		if !ok {
			errs = append(errs, fmt.Errorf("channel %s has no capability entry", ch))
			continue
		}
		for cat := range set {
			if !cat.valid() {
				errs = append(errs, fmt.Errorf("channel %s allows unknown category %q", ch, cat))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRegistry, errors.Join(errs...))
	}
	return nil
}

// Lookup resolves a tool name as requested by the completion engine.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	d, ok := r.byID[ToolID(name)]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return d, nil
}

// CategoryOf returns the category a tool was registered with.
func (r *Registry) CategoryOf(name string) (Category, error) {
	d, err := r.Lookup(name)
	if err != nil {
		return "", err
	}
	return d.Category, nil
}

// AllowedCategories returns the categories a channel may invoke. Channels without
// an entry get core only. The returned set is a copy.
func (r *Registry) AllowedCategories(c channel.Channel) CategorySet {
	if set, ok := r.policy[c]; ok {
		return set.clone()
	}
	return NewCategorySet(Core)
}

// Permits reports whether a tool of the given category may be invoked on c.
func (r *Registry) Permits(c channel.Channel, cat Category) bool {
	return r.AllowedCategories(c).Has(cat)
}

// ToolsFor filters the registry down to the tools a channel may invoke, ordered
// by tool identifier.
func (r *Registry) ToolsFor(c channel.Channel) []Descriptor {
	allowed := r.AllowedCategories(c)
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		if d := r.byID[id]; allowed.Has(d.Category) {
			out = append(out, d)
		}
	}
	return out
}

// All returns every registered descriptor ordered by identifier.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
