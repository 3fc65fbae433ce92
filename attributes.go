package thingsboard

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"net/url"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Scope is an attribute namespace. Values never cross scopes.
type Scope string

// Attribute scopes.
const (
	ServerScope Scope = "SERVER_SCOPE"
	SharedScope Scope = "SHARED_SCOPE"
	ClientScope Scope = "CLIENT_SCOPE"
)

// Scopes lists every attribute scope.
var Scopes = []Scope{ServerScope, SharedScope, ClientScope}

// Valid reports whether s is one of the known scopes.
func (s Scope) Valid() bool {
	return slices.Contains(Scopes, s)
}

// Attribute is a single scoped key/value pair with its last update time.
type Attribute struct {
	Key         string    `json:"key" tb:"key,required"`
	Value       any       `json:"value"`
	LastUpdated Timestamp `json:"lastUpdateTs" tb:"last_update_ts"`
}

func (a *Attribute) UnmarshalJSON(data []byte) error {
	return hydrateInto(data, a)
}

// Attributes is the set of attributes of one scope, keyed by attribute key.
type Attributes struct {
	Scope Scope
	items map[string]Attribute
}

// NewAttributes builds an attribute set from plain values.
func NewAttributes(scope Scope, values map[string]any) *Attributes {
	a := &Attributes{Scope: scope, items: make(map[string]Attribute, len(values))}
	for k, v := range values {
		a.items[k] = Attribute{Key: k, Value: v}
	}
	return a
}

func newAttributesFrom(scope Scope, list []Attribute) *Attributes {
	a := &Attributes{Scope: scope, items: make(map[string]Attribute, len(list))}
	for _, attr := range list {
		a.items[attr.Key] = attr
	}
	return a
}

// Len returns the number of attributes.
func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.items)
}

// Get returns the attribute stored under key.
func (a *Attributes) Get(key string) (Attribute, bool) {
	if a == nil {
		return Attribute{}, false
	}
	attr, ok := a.items[key]
	return attr, ok
}

// Value returns the value stored under key, or nil.
func (a *Attributes) Value(key string) any {
	attr, _ := a.Get(key)
	return attr.Value
}

// Keys returns the attribute keys in sorted order.
func (a *Attributes) Keys() []string {
	if a == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(a.items))
}

// All iterates the attributes in key order.
func (a *Attributes) All() iter.Seq2[string, Attribute] {
	return func(yield func(string, Attribute) bool) {
		for _, k := range a.Keys() {
			if !yield(k, a.items[k]) {
				return
			}
		}
	}
}

// AsMap returns the plain key/value view, the shape the server accepts on save.
func (a *Attributes) AsMap() map[string]any {
	out := make(map[string]any, a.Len())
	if a == nil {
		return out
	}
	for k, attr := range a.items {
		out[k] = attr.Value
	}
	return out
}

// Merge folds other into a. The more recently updated value wins on key
// collisions. Sets from different scopes are never merged.
func (a *Attributes) Merge(other *Attributes) error {
	if a == nil {
		return ErrNilAttributes
	}
	if other == nil {
		return nil
	}
	if a.Scope != other.Scope {
		return fmt.Errorf("%w: %s and %s", ErrScopeMismatch, a.Scope, other.Scope)
	}
	if a.items == nil {
		a.items = make(map[string]Attribute, len(other.items))
	}
	for k, attr := range other.items {
		if cur, ok := a.items[k]; ok && cur.LastUpdated.After(attr.LastUpdated.Time) {
			continue
		}
		a.items[k] = attr
	}
	return nil
}

// HasScopedAttributes is implemented by entities that carry scoped
// attributes: customers, devices, tenants, users and device profiles.
type HasScopedAttributes interface {
	Identifiable
	GetAttributes(ctx context.Context, scope Scope) (*Attributes, error)
	SetAttributes(ctx context.Context, data any, scope Scope) error
	DeleteAttributes(ctx context.Context, keys []string, scope Scope) (bool, error)
}

// AttributedEntity is an Entity with scoped attribute operations.
type AttributedEntity struct {
	Entity
}

func (e *AttributedEntity) telemetryPath() string {
	return fmt.Sprintf("/api/plugins/telemetry/%s/%s", e.ID.EntityType, e.ID.ID)
}

func checkScope(scope Scope) error {
	if scope == "" {
		return ErrEmptyScope
	}
	if !scope.Valid() {
		return fmt.Errorf("thingsboard: unknown attribute scope %q", scope)
	}
	return nil
}

// GetAttributes fetches every attribute of the entity in scope.
func (e *AttributedEntity) GetAttributes(ctx context.Context, scope Scope) (*Attributes, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	c, err := e.client()
	if err != nil {
		return nil, err
	}
	data, err := c.get(ctx, fmt.Sprintf("%s/values/attributes/%s", e.telemetryPath(), scope))
	if err != nil {
		return nil, err
	}
	list, err := unmarshalResponse[[]Attribute](data, "attributes")
	if err != nil {
		return nil, err
	}
	return newAttributesFrom(scope, list), nil
}

// SetAttributes writes attributes in scope. data may be *Attributes,
// Attributes or map[string]any; only keys and values are sent.
func (e *AttributedEntity) SetAttributes(ctx context.Context, data any, scope Scope) error {
	if err := checkScope(scope); err != nil {
		return err
	}
	var values map[string]any
	switch d := data.(type) {
	case *Attributes:
		if d.Scope != "" && d.Scope != scope {
			return fmt.Errorf("%w: %s and %s", ErrScopeMismatch, d.Scope, scope)
		}
		values = d.AsMap()
	case Attributes:
		return e.SetAttributes(ctx, &d, scope)
	case map[string]any:
		values = d
	case JSONObject:
		values = d
	default:
		return fmt.Errorf("thingsboard: cannot save attributes from %T", data)
	}
	c, err := e.client()
	if err != nil {
		return err
	}
	_, err = c.post(ctx, fmt.Sprintf("%s/%s", e.telemetryPath(), scope), values)
	return err
}

// DeleteAttributes removes keys from scope. The server does not report
// which keys existed, so a successful call always returns true.
func (e *AttributedEntity) DeleteAttributes(ctx context.Context, keys []string, scope Scope) (bool, error) {
	if err := checkScope(scope); err != nil {
		return false, err
	}
	if len(keys) == 0 {
		return false, ErrEmptyKeys
	}
	c, err := e.client()
	if err != nil {
		return false, err
	}
	path := withQuery(fmt.Sprintf("%s/%s", e.telemetryPath(), scope), url.Values{"keys": {joinKeys(keys)}})
	if _, err := c.delete(ctx, path); err != nil {
		return false, err
	}
	return true, nil
}

// GetServerAttributes is GetAttributes(ctx, ServerScope).
func (e *AttributedEntity) GetServerAttributes(ctx context.Context) (*Attributes, error) {
	return e.GetAttributes(ctx, ServerScope)
}

// GetSharedAttributes is GetAttributes(ctx, SharedScope).
func (e *AttributedEntity) GetSharedAttributes(ctx context.Context) (*Attributes, error) {
	return e.GetAttributes(ctx, SharedScope)
}

// GetClientAttributes is GetAttributes(ctx, ClientScope).
func (e *AttributedEntity) GetClientAttributes(ctx context.Context) (*Attributes, error) {
	return e.GetAttributes(ctx, ClientScope)
}

func (e *AttributedEntity) SetServerAttributes(ctx context.Context, data any) error {
	return e.SetAttributes(ctx, data, ServerScope)
}

func (e *AttributedEntity) SetSharedAttributes(ctx context.Context, data any) error {
	return e.SetAttributes(ctx, data, SharedScope)
}

func (e *AttributedEntity) SetClientAttributes(ctx context.Context, data any) error {
	return e.SetAttributes(ctx, data, ClientScope)
}

func (e *AttributedEntity) DeleteServerAttributes(ctx context.Context, keys ...string) (bool, error) {
	return e.DeleteAttributes(ctx, keys, ServerScope)
}

func (e *AttributedEntity) DeleteSharedAttributes(ctx context.Context, keys ...string) (bool, error) {
	return e.DeleteAttributes(ctx, keys, SharedScope)
}

func (e *AttributedEntity) DeleteClientAttributes(ctx context.Context, keys ...string) (bool, error) {
	return e.DeleteAttributes(ctx, keys, ClientScope)
}

// GetAllScopes fetches all three scopes concurrently. The result is keyed by
// scope; the sets are kept apart.
func (e *AttributedEntity) GetAllScopes(ctx context.Context) (map[Scope]*Attributes, error) {
	results := make([]*Attributes, len(Scopes))
	g, ctx := errgroup.WithContext(ctx)
	for i, scope := range Scopes {
		g.Go(func() error {
			attrs, err := e.GetAttributes(ctx, scope)
			if err != nil {
				return fmt.Errorf("%s: %w", scope, err)
			}
			results[i] = attrs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[Scope]*Attributes, len(Scopes))
	for i, scope := range Scopes {
		out[scope] = results[i]
	}
	return out, nil
}
