package thingsboard

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"strconv"
)

// PageData is the envelope ThingsBoard wraps around every paged listing.
type PageData struct {
	Data          []json.RawMessage `json:"data"`
	TotalPages    int               `json:"totalPages"`
	TotalElements int               `json:"totalElements"`
	HasNext       bool              `json:"hasNext"`
}

func pagePath(path string, page, size int) string {
	return withQuery(path, url.Values{
		"pageSize": {strconv.Itoa(size)},
		"page":     {strconv.Itoa(page)},
	})
}

// GetPaged fetches every page of a paged listing and concatenates the
// records in server order.
func (c *Client) GetPaged(ctx context.Context, path string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for rec, err := range c.pages(ctx, path, c.Get) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Paged returns an iterator over the records of a paged listing. Pages are
// fetched lazily as the caller advances; stopping early stops fetching.
//
// Example:
//
//	for raw, err := range client.Paged(ctx, "/api/tenant/devices") {
//	    if err != nil {
//	        return err
//	    }
//	    device, err := tb.Hydrate[tb.Device](raw)
//	    ...
//	}
func (c *Client) Paged(ctx context.Context, path string) iter.Seq2[json.RawMessage, error] {
	return c.pages(ctx, path, c.get)
}

func (c *Client) pages(ctx context.Context, path string, get func(context.Context, string) (json.RawMessage, error)) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		for page := 0; ; page++ {
			select {
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			default:
			}

			data, err := get(ctx, pagePath(path, page, DefaultPageSize))
			if err != nil {
				yield(nil, err)
				return
			}
			var pd PageData
			if err := json.Unmarshal(data, &pd); err != nil {
				yield(nil, fmt.Errorf("failed to parse page %d of %s: %w (body: %s)", page, path, err, truncatePreview(data)))
				return
			}

			for _, rec := range pd.Data {
				if !yield(rec, nil) {
					return
				}
			}

			if !pd.HasNext || len(pd.Data) == 0 {
				return
			}
		}
	}
}

// Entities streams a paged listing as hydrated entities bound to c.
func Entities[T any, PT boundEntity[T]](ctx context.Context, c *Client, path string) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		for raw, err := range c.Paged(ctx, path) {
			if err != nil {
				yield(nil, err)
				return
			}
			v, err := hydrateBound[T, PT](c, raw)
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}
