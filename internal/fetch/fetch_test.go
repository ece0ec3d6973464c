package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"searchwatch/pkg/logx"
)

func TestFetchTotalOK(t *testing.T) {
	t.Parallel()
	var gotQuery, gotPath, gotUA, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("q")
		gotUA = r.Header.Get("User-Agent")
		gotKey = r.Header.Get("X-Api-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"info":{"total":17},"decisions":[]}`))
	}))
	t.Cleanup(srv.Close)

	c := New(Config{
		BaseURL:   srv.URL + "/api/",
		UserAgent: "searchwatch-test",
		Headers:   map[string]string{"X-Api-Key": "k"},
	}, srv.Client(), logx.Nop())

	q := `q:["acme"] AND issueDate:[DT(2024-01-01T00:00:00) TO DT(2024-06-28T23:59:59)]`
	n, err := c.FetchTotal(context.Background(), q)
	if err != nil {
		t.Fatalf("FetchTotal: %v", err)
	}
	if n != 17 {
		t.Fatalf("total = %d, want 17", n)
	}
	if gotPath != "/api/search/advanced" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotQuery != "("+q+")" {
		t.Fatalf("q = %q, want %q", gotQuery, "("+q+")")
	}
	if gotUA != "searchwatch-test" || gotKey != "k" {
		t.Fatalf("headers not applied: ua=%q key=%q", gotUA, gotKey)
	}
}

func TestFetchTotalFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusBadGateway, body: `{"info":{"total":3}}`},
		{name: "not modified style status", status: http.StatusAccepted, body: `{"info":{"total":3}}`},
		{name: "bad json", status: http.StatusOK, body: `{"info":`},
		{name: "missing total", status: http.StatusOK, body: `{"info":{}}`},
		{name: "negative total", status: http.StatusOK, body: `{"info":{"total":-1}}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			c := New(Config{BaseURL: srv.URL}, srv.Client(), logx.Nop())
			if _, err := c.FetchTotal(context.Background(), `q:["x"]`); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestFetchTotalStatusError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	c := New(Config{BaseURL: srv.URL}, srv.Client(), logx.Nop())
	_, err := c.FetchTotal(context.Background(), `q:["x"]`)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Code != http.StatusTooManyRequests {
		t.Fatalf("code = %d", se.Code)
	}
}

func TestFetchTotalNoBaseURL(t *testing.T) {
	t.Parallel()
	c := New(Config{}, nil, logx.Nop())
	if _, err := c.FetchTotal(context.Background(), "x"); !errors.Is(err, ErrNoBaseURL) {
		t.Fatalf("err = %v, want ErrNoBaseURL", err)
	}
}

func TestFetchTotalContextCancelled(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, srv.Client(), logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.FetchTotal(ctx, "x"); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestURLEncodesSpaces(t *testing.T) {
	t.Parallel()
	c := New(Config{BaseURL: "https://api.example.org/v1"}, nil, logx.Nop())
	got, err := c.URL(`organizationLatinName:"Acme Corp"`)
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	want := "https://api.example.org/v1/search/advanced?q=%28organizationLatinName%3A%22Acme%20Corp%22%29"
	if got != want {
		t.Fatalf("url = %q, want %q", got, want)
	}
}
