package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestSendTextPostsContent(t *testing.T) {
	t.Parallel()
	var (
		mu   sync.Mutex
		got  []webhookPayload
		ctyp string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		var p webhookPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		mu.Lock()
		got = append(got, p)
		ctyp = r.Header.Get("Content-Type")
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	s, err := New(Config{WebhookURL: srv.URL, Username: "searchwatch"}, srv.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.SendText(context.Background(), `Found 5 new results for "acme" in Acme`); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("posts = %d, want 1", len(got))
	}
	if got[0].Content != `Found 5 new results for "acme" in Acme` || got[0].Username != "searchwatch" {
		t.Fatalf("payload = %+v", got[0])
	}
	if ctyp != "application/json" {
		t.Fatalf("content-type = %q", ctyp)
	}
}

func TestSendTextSplitsLongMessages(t *testing.T) {
	t.Parallel()
	var (
		mu    sync.Mutex
		posts int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhookPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		if len([]rune(p.Content)) > contentLimit {
			t.Errorf("content too long: %d", len([]rune(p.Content)))
		}
		mu.Lock()
		posts++
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	s, _ := New(Config{WebhookURL: srv.URL}, srv.Client())
	if err := s.SendText(context.Background(), strings.Repeat("x", contentLimit*2+1)); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if posts != 3 {
		t.Fatalf("posts = %d, want 3", posts)
	}
}

func TestSendTextStatusError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"retry_after":1.5}`))
	}))
	t.Cleanup(srv.Close)

	s, _ := New(Config{WebhookURL: srv.URL}, srv.Client())
	err := s.SendText(context.Background(), "hi")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusTooManyRequests {
		t.Fatalf("err = %v, want 429 StatusError", err)
	}
}

func TestNewRequiresWebhook(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, nil); !errors.Is(err, ErrNoWebhook) {
		t.Fatalf("err = %v, want ErrNoWebhook", err)
	}
}
