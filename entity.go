package thingsboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Entity holds what every platform entity shares: its identity, its
// creation time and a reference to the client that fetched it. The client
// reference is a capability handle, not ownership; entities stay valid as
// plain data after the client is gone.
type Entity struct {
	ID          Id         `json:"id" tb:"id,required"`
	CreatedTime *Timestamp `json:"createdTime,omitempty" tb:"created_time,readonly"`

	api *Client
}

// Identity returns the entity's Id.
func (e Entity) Identity() Id {
	return e.ID
}

// Equal reports whether other has the same identity. Only ids are compared.
func (e Entity) Equal(other Identifiable) bool {
	if other == nil {
		return false
	}
	return e.ID.Equal(other.Identity())
}

// Client returns the client the entity was fetched with, or nil.
func (e *Entity) Client() *Client {
	return e.api
}

func (e *Entity) bindAs(c *Client, t EntityType) {
	e.api = c
	if e.ID.EntityType == "" {
		e.ID.EntityType = t
	}
}

func (e *Entity) client() (*Client, error) {
	if e.api == nil {
		return nil, ErrUnboundEntity
	}
	return e.api, nil
}

// boundEntity is satisfied by pointers to every entity shape; bind attaches
// the client and fills in the entity type when the server omitted it.
type boundEntity[T any] interface {
	*T
	Identifiable
	bind(*Client)
}

func hydrateBound[T any, PT boundEntity[T]](c *Client, data []byte) (*T, error) {
	v, err := Hydrate[T](data)
	if err != nil {
		return nil, err
	}
	PT(v).bind(c)
	return v, nil
}

func hydrateAll[T any, PT boundEntity[T]](c *Client, raws []json.RawMessage) ([]*T, error) {
	out := make([]*T, 0, len(raws))
	for _, raw := range raws {
		v, err := hydrateBound[T, PT](c, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// fetchOne GETs path and hydrates a bound entity.
func fetchOne[T any, PT boundEntity[T]](ctx context.Context, c *Client, path string) (*T, error) {
	data, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return hydrateBound[T, PT](c, data)
}

// fetchAll reads a paged listing, hydrates it and applies the sort spec.
func fetchAll[T any, PT boundEntity[T]](ctx context.Context, c *Client, path string, sortBy any) ([]*T, error) {
	raws, err := c.getPaged(ctx, path)
	if err != nil {
		return nil, err
	}
	out, err := hydrateAll[T, PT](c, raws)
	if err != nil {
		return nil, err
	}
	if err := Sort(out, sortBy); err != nil {
		return nil, err
	}
	return out, nil
}

// save POSTs v without its read-only fields and rehydrates the reply into v.
func save[T any, PT boundEntity[T]](ctx context.Context, c *Client, path string, v PT) error {
	body, err := wireMap(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", shapeName(v), err)
	}
	data, err := c.post(ctx, path, body)
	if err != nil {
		return err
	}
	fresh, err := hydrateBound[T, PT](c, data)
	if err != nil {
		return err
	}
	*v = *fresh
	return nil
}

// ListOptions narrows and orders a GetAll* listing.
type ListOptions struct {
	// SortBy is any spec accepted by NormalizeSortSpec.
	SortBy any
	// TextSearch is the server-side prefix filter on names.
	TextSearch string
	// Type filters devices by device type.
	Type string
	// Active filters devices by connectivity (nil means no filter).
	Active *bool
}

func (o *ListOptions) sortSpec() any {
	if o == nil {
		return nil
	}
	return o.SortBy
}

// listPath applies the server-side filters of opts to a listing path.
func (o *ListOptions) listPath(base string) string {
	if o == nil {
		return base
	}
	q := url.Values{}
	if o.TextSearch != "" {
		q.Set("textSearch", o.TextSearch)
	}
	if o.Type != "" {
		q.Set("type", o.Type)
	}
	if o.Active != nil {
		q.Set("active", strconv.FormatBool(*o.Active))
	}
	if len(q) == 0 {
		return base
	}
	return withQuery(base, q)
}

// oneLineAddress renders "address, address2, city, state", skipping empty parts.
func oneLineAddress(parts ...string) string {
	return strings.Join(slices.DeleteFunc(slices.Clone(parts), func(s string) bool {
		return strings.TrimSpace(s) == ""
	}), ", ")
}
