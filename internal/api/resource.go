package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Record is one raw JSON object as the server sent it.
type Record = map[string]any

// envelopeKeys are the object keys a list response may wrap its array in,
// tried in order after the resource's own name.
var envelopeKeys = []string{"data", "items", "results"}

// Resource is a REST collection under /api/<name>.
type Resource struct {
	client    *Client
	name      string
	deletable bool
}

// NewResource binds the collection /api/<name> to client.
func NewResource(client *Client, name string, deletable bool) *Resource {
	return &Resource{client: client, name: name, deletable: deletable}
}

// Jobs is the /api/jobs collection.
func Jobs(c *Client) *Resource { return NewResource(c, "jobs", true) }

// Employees is the /api/employees collection.
func Employees(c *Client) *Resource { return NewResource(c, "employees", true) }

// Notifications is the /api/notifications collection. It has no DELETE.
func Notifications(c *Client) *Resource { return NewResource(c, "notifications", false) }

// Chat is the /api/chat collection. It has no DELETE.
func Chat(c *Client) *Resource { return NewResource(c, "chat", false) }

// Name returns the collection name.
func (r *Resource) Name() string {
	return r.name
}

func (r *Resource) path() string {
	return "/api/" + r.name
}

func (r *Resource) itemPath(id string) string {
	return r.path() + "/" + url.PathEscape(id)
}

// List fetches the whole collection. The array may come bare or wrapped
// in an object; elements that are not objects are dropped.
func (r *Resource) List(ctx context.Context) ([]Record, error) {
	var body any
	err := r.client.do(ctx, request{method: http.MethodGet, path: r.path(), result: &body})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", r.name, err)
	}

	items, ok := r.unwrapList(body)
	if !ok {
		return nil, fmt.Errorf("listing %s: response is not a list", r.name)
	}

	records := make([]Record, 0, len(items))
	for _, item := range items {
		if rec, ok := item.(map[string]any); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (r *Resource) unwrapList(body any) ([]any, bool) {
	switch v := body.(type) {
	case []any:
		return v, true
	case map[string]any:
		for _, key := range append([]string{r.name}, envelopeKeys...) {
			if items, ok := v[key].([]any); ok {
				return items, true
			}
		}
	}
	return nil, false
}

// Create POSTs body and returns the record the server echoed, if any.
func (r *Resource) Create(ctx context.Context, body any) (Record, error) {
	var resp any
	err := r.client.do(ctx, request{method: http.MethodPost, path: r.path(), body: body, result: &resp})
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", r.name, err)
	}
	return unwrapRecord(resp), nil
}

// Update PUTs body to /<id> and returns the record the server echoed, if any.
func (r *Resource) Update(ctx context.Context, id string, body any) (Record, error) {
	var resp any
	err := r.client.do(ctx, request{method: http.MethodPut, path: r.itemPath(id), body: body, result: &resp})
	if err != nil {
		return nil, fmt.Errorf("updating %s %s: %w", r.name, id, err)
	}
	return unwrapRecord(resp), nil
}

// Delete removes /<id>.
func (r *Resource) Delete(ctx context.Context, id string) error {
	if !r.deletable {
		return fmt.Errorf("deleting %s %s: %w", r.name, id, ErrMethodNotAllowed)
	}

	err := r.client.do(ctx, request{method: http.MethodDelete, path: r.itemPath(id)})
	if err != nil {
		return fmt.Errorf("deleting %s %s: %w", r.name, id, err)
	}
	return nil
}

// unwrapRecord returns the object in resp, looking inside a "data"
// envelope. Anything else yields nil.
func unwrapRecord(resp any) Record {
	obj, ok := resp.(map[string]any)
	if !ok {
		return nil
	}
	if inner, ok := obj["data"].(map[string]any); ok {
		return inner
	}
	return obj
}
