package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/localfirst/tasksync/internal/model"
)

func pendingOp(op model.Op, entityType, data string) *model.PendingOperation {
	return &model.PendingOperation{
		ID:         "p-1",
		Op:         op,
		EntityType: entityType,
		Data:       []byte(data),
		Timestamp:  time.Now(),
		MaxRetries: model.DefaultMaxRetries,
	}
}

func TestDeliverMethodAndPath(t *testing.T) {
	tests := []struct {
		op         model.Op
		entityType string
		wantMethod string
		wantPath   string
	}{
		{model.OpCreate, "task", http.MethodPost, "/api/tasks"},
		{model.OpUpdate, "task", http.MethodPut, "/api/tasks"},
		{model.OpDelete, "task", http.MethodDelete, "/api/tasks"},
		{model.OpCreate, "tag", http.MethodPost, "/api/tags"},
	}

	for _, tt := range tests {
		t.Run(string(tt.op)+"_"+tt.entityType, func(t *testing.T) {
			var gotMethod, gotPath, gotBody, gotContentType string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod = r.Method
				gotPath = r.URL.Path
				gotContentType = r.Header.Get("Content-Type")
				body, _ := io.ReadAll(r.Body)
				gotBody = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			tr := NewHTTPTransport(srv.URL, nil)
			op := pendingOp(tt.op, tt.entityType, `{"id":"x"}`)
			if err := tr.Deliver(context.Background(), op); err != nil {
				t.Fatalf("Deliver() failed: %v", err)
			}

			if gotMethod != tt.wantMethod {
				t.Errorf("method = %s, want %s", gotMethod, tt.wantMethod)
			}
			if gotPath != tt.wantPath {
				t.Errorf("path = %s, want %s", gotPath, tt.wantPath)
			}
			if gotBody != `{"id":"x"}` {
				t.Errorf("body = %q, want the operation payload", gotBody)
			}
			if gotContentType != "application/json" {
				t.Errorf("content type = %q, want application/json", gotContentType)
			}
		})
	}
}

func TestDeliverRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, nil)
	if err := tr.Deliver(context.Background(), pendingOp(model.OpCreate, "task", `{}`)); err == nil {
		t.Fatal("Deliver() succeeded against a rejecting server")
	}
}

func TestDeliverTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	tr := NewHTTPTransport(srv.URL, nil)
	if err := tr.Deliver(context.Background(), pendingOp(model.OpDelete, "task", `{}`)); err == nil {
		t.Fatal("Deliver() succeeded against a closed server")
	}
}

func TestDeliverUnknownOp(t *testing.T) {
	tr := NewHTTPTransport("http://localhost:0", nil)
	op := pendingOp(model.Op("merge"), "task", `{}`)
	if err := tr.Deliver(context.Background(), op); err == nil {
		t.Fatal("Deliver() accepted an unknown operation")
	}
}
