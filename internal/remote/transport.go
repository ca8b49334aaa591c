// Package remote defines the delivery boundary between the sync engine
// and the remote task service.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/localfirst/tasksync/internal/model"
)

// Transport delivers a single pending operation to the remote endpoint.
//
// Any returned error is a delivery failure for retry purposes; the
// engine never distinguishes transport errors from rejection responses.
type Transport interface {
	Deliver(ctx context.Context, op *model.PendingOperation) error
}

// HTTPTransport delivers operations over HTTP. Mutations map to
// REST-ish calls against /api/{entityType}s on the configured base URL:
// create -> POST, update -> PUT, delete -> DELETE, with the operation
// payload as the request body.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport creates a transport for the given base URL,
// e.g. "https://tasks.example.com". If client is nil, a default
// client is used; per-attempt timeouts come from the caller's context.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{baseURL: baseURL, client: client}
}

// Deliver implements Transport.
func (t *HTTPTransport) Deliver(ctx context.Context, op *model.PendingOperation) error {
	var method string
	switch op.Op {
	case model.OpCreate:
		method = http.MethodPost
	case model.OpUpdate:
		method = http.MethodPut
	case model.OpDelete:
		method = http.MethodDelete
	default:
		return fmt.Errorf("unknown operation %q", op.Op)
	}

	url := fmt.Sprintf("%s/api/%ss", t.baseURL, op.EntityType)

	var body io.Reader
	if len(op.Data) > 0 {
		body = bytes.NewReader(op.Data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("delivery rejected: %s %s returned %s", method, url, resp.Status)
	}
	return nil
}
