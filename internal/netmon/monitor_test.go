package netmon

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestInitialStateOnline(t *testing.T) {
	m := New(Config{Logger: quietLogger()})
	if !m.Online() {
		t.Error("new monitor should start online")
	}
}

func TestPassiveSignals(t *testing.T) {
	m := New(Config{Logger: quietLogger()})

	var transitions []bool
	m.Subscribe(func(online bool) {
		transitions = append(transitions, online)
	})

	// A matching signal is a no-op
	m.SetOnline(true)
	if len(transitions) != 0 {
		t.Errorf("got %d transitions after matching signal, want 0", len(transitions))
	}

	m.SetOnline(false)
	if m.Online() {
		t.Error("monitor still online after offline signal")
	}
	m.SetOnline(false) // duplicate, no-op
	m.SetOnline(true)

	want := []bool{false, true}
	if len(transitions) != len(want) {
		t.Fatalf("got %d transitions, want %d", len(transitions), len(want))
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestProbeOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New(Config{ProbeURL: srv.URL, Logger: quietLogger()})
	m.SetOnline(false)

	if online := m.ProbeOnce(context.Background()); !online {
		t.Error("ProbeOnce() = false against a live server")
	}
	if !m.Online() {
		t.Error("monitor not online after successful probe")
	}
}

func TestProbeOnceUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // now guaranteed unreachable

	m := New(Config{ProbeURL: srv.URL, Logger: quietLogger()})
	if online := m.ProbeOnce(context.Background()); online {
		t.Error("ProbeOnce() = true against a closed server")
	}
	if m.Online() {
		t.Error("monitor still online after failed probe")
	}
}

func TestProbeTreatsAnyResponseAsReachable(t *testing.T) {
	// A 500 still proves the network path works.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := New(Config{ProbeURL: srv.URL, Logger: quietLogger()})
	m.SetOnline(false)
	if online := m.ProbeOnce(context.Background()); !online {
		t.Error("ProbeOnce() = false, want true for a 500 response")
	}
}

func TestProbeLoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	m := New(Config{
		ProbeURL:      srv.URL,
		ProbeInterval: 10 * time.Millisecond,
		Logger:        quietLogger(),
	})
	m.SetOnline(false)

	recovered := make(chan struct{})
	m.Subscribe(func(online bool) {
		if online {
			close(recovered)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)

	select {
	case <-recovered:
	case <-time.After(2 * time.Second):
		t.Fatal("probe loop never flipped the monitor back online")
	}

	cancel()
	m.Wait()
}

func TestStartWithoutProbeURL(t *testing.T) {
	m := New(Config{Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx) // no-op, must not hang Wait
	cancel()
	m.Wait()
}
