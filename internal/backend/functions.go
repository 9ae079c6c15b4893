package backend

import (
	"context"
	"fmt"
	"net/http"
)

// Functions invokes the backend's edge functions
type Functions struct {
	client *Client
}

// NewFunctions creates an edge function invoker
func NewFunctions(client *Client) *Functions {
	return &Functions{client: client}
}

// Invoke calls the named function with a JSON payload and decodes the reply into out.
// The function's behaviour is opaque to this service.
func (f *Functions) Invoke(ctx context.Context, name string, payload any, out any) error {
	resp, err := f.client.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   "/functions/v1/" + name,
		Body:   payload,
	})
	if err != nil {
		return fmt.Errorf("invoke function %s: %w", name, err)
	}
	if out == nil {
		return nil
	}
	if err := resp.JSON(out); err != nil {
		return fmt.Errorf("decode function %s response: %w", name, err)
	}
	return nil
}
