package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.json", `{
		"search": {"organization_name": "Acme Corp", "organization_id": "42", "query": "acme", "chunk_days": 90},
		"api": {"base_url": "https://search.example.com/api/v1", "timeout": "10s"},
		"schedule": {"interval": "30m", "overlap": "allow", "run_on_start": false},
		"storage": {"driver": "sqlite", "path": "./state.db"}
	}`)
	cfg, err := NewConfigManager(p).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Search.OrganizationID != "42" || cfg.Search.ChunkDays != 90 {
		t.Fatalf("search = %+v", cfg.Search)
	}
	if cfg.Schedule.RunOnStartOrDefault() {
		t.Fatal("run_on_start should be false")
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestParseYAMLNumericOrganizationID(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.yaml", `
search:
  organization_name: Acme Corp
  organization_id: 12345
  query: acme
api:
  base_url: https://search.example.com/api/v1
  headers:
    X-Api-Key: secret
`)
	m := NewConfigManager(p)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Search.OrganizationID != "12345" {
		t.Fatalf("organization_id = %q", cfg.Search.OrganizationID)
	}
	if cfg.API.Headers["X-Api-Key"] != "secret" {
		t.Fatalf("headers = %v", cfg.API.Headers)
	}
	if !cfg.Schedule.RunOnStartOrDefault() {
		t.Fatal("run_on_start should default to true")
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestParseRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		body string
	}{
		{"unknown field", "c.json", `{"search": {"qeury": "typo"}}`},
		{"unknown section", "c.yaml", "plugins: {}\n"},
		{"trailing data", "c.json", `{"search": {}} {"search": {}}`},
		{"bad organization id", "c.json", `{"search": {"organization_id": 1.5}}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewConfigManager(writeFile(t, tt.file, tt.body)).Parse(); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "example ok", mutate: func(*Config) {}},
		{name: "empty search ok", mutate: func(c *Config) { c.Search = SearchConfig{} }},
		{name: "chunk days", mutate: func(c *Config) { c.Search.ChunkDays = -1 }, wantErr: "ChunkDays"},
		{name: "overlap", mutate: func(c *Config) { c.Schedule.Overlap = "queue" }, wantErr: "Overlap"},
		{name: "base url", mutate: func(c *Config) { c.API.BaseURL = "not a url" }, wantErr: "BaseURL"},
		{name: "duration", mutate: func(c *Config) { c.API.Timeout = "soon" }, wantErr: "api.timeout"},
		{name: "timezone", mutate: func(c *Config) { c.Schedule.Timezone = "Mars/Base" }, wantErr: "schedule.timezone"},
		{name: "level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "logging.level"},
		{name: "storage driver", mutate: func(c *Config) { c.Storage.Driver = "postgres" }, wantErr: "Driver"},
		{name: "telegram half set", mutate: func(c *Config) { c.Telegram.Token = "123:abc" }, wantErr: "chat_id"},
		{name: "file log path", mutate: func(c *Config) { c.Logging.File.Enabled = true }, wantErr: "Path"},
		{
			name: "diagnostics public without token",
			mutate: func(c *Config) {
				c.Diagnostics = DiagnosticsConfig{Enabled: true, Addr: "0.0.0.0:9464"}
			},
			wantErr: "diagnostics.addr",
		},
		{
			name: "diagnostics loopback",
			mutate: func(c *Config) {
				c.Diagnostics = DiagnosticsConfig{Enabled: true, Addr: "127.0.0.1:9464"}
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Example()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.json", `{"search": {"chunk_days": -5}}`)
	m := NewConfigManager(p)
	if _, err := m.Load(); err == nil {
		t.Fatal("expected validation error")
	}
	if m.Get() != nil {
		t.Fatal("invalid config must not be committed")
	}
}

func TestExampleRoundTripsThroughParse(t *testing.T) {
	t.Parallel()
	b, err := json.Marshal(Example())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := NewConfigManager(writeFile(t, "config.json", string(b))).Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	t.Parallel()
	oldCfg := Example()
	newCfg := Example()
	newCfg.Search.Query = "acme widgets"
	newCfg.Discord.WebhookURL = "https://discord.com/api/webhooks/1/very-secret"
	newCfg.Telegram = TelegramConfig{Token: "123:super-secret", ChatID: 5}

	changed, _ := SummarizeConfigChange(oldCfg, newCfg)
	want := map[string]bool{"search": true, "discord": true, "telegram": true}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v", changed)
	}
	for _, c := range changed {
		if !want[c] {
			t.Fatalf("unexpected section %q in %v", c, changed)
		}
	}

	if changed, _ := SummarizeConfigChange(oldCfg, Example()); len(changed) != 0 {
		t.Fatalf("identical configs reported changes: %v", changed)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationOrDefault("x", "", time.Second); err != nil || d != time.Second {
		t.Fatalf("empty = %v, %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "250ms", time.Second); err != nil || d != 250*time.Millisecond {
		t.Fatalf("250ms = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration must fail")
	}
	days := map[string]time.Duration{
		"1d":    24 * time.Hour,
		"2d12h": 60 * time.Hour,
		"0d30m": 30 * time.Minute,
		"90m":   90 * time.Minute,
	}
	for in, want := range days {
		if d, err := ParseDurationField("x", in); err != nil || d != want {
			t.Fatalf("%s = %v, %v; want %v", in, d, err, want)
		}
	}
	for _, in := range []string{"d", "1dx", "1.5d"} {
		if _, err := ParseDurationField("x", in); err == nil {
			t.Fatalf("%s: expected error", in)
		}
	}
}

func TestSubscribeDeliversLatest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)
	a, b := Example(), Example()
	b.Search.Query = "b"
	m.publish(a)
	m.publish(b)
	select {
	case got := <-ch:
		if got != b {
			t.Fatalf("got %+v, want latest", got.Search)
		}
	default:
		t.Fatal("nothing delivered")
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after Unsubscribe")
	}
}

func TestWatchPublishesReload(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.json", `{"search": {"query": "one"}}`)
	m := NewConfigManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-ch:
			if cfg.Search.Query != "two" {
				t.Fatalf("query = %q", cfg.Search.Query)
			}
			cancel()
			<-done
			return
		case <-tick.C:
			// rewrite until the watcher is attached and notices
			_ = os.WriteFile(p, []byte(`{"search": {"query": "two"}}`), 0o644)
		case <-deadline:
			t.Fatal("no reload published")
		}
	}
}

func TestReload(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.json", `{"search": {"query": "one"}}`)
	m := NewConfigManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	ctx := context.Background()

	if changed, err := m.Reload(ctx); err != nil || changed {
		t.Fatalf("unchanged file: changed = %v, err = %v", changed, err)
	}

	_ = os.WriteFile(p, []byte(`{"search": {"query": "two"}, "logging": {"level": "loud"}}`), 0o644)
	if changed, err := m.Reload(ctx); err == nil || changed {
		t.Fatalf("invalid file: changed = %v, err = %v", changed, err)
	}
	if m.Get().Search.Query != "one" {
		t.Fatalf("rejected config was committed: %q", m.Get().Search.Query)
	}

	m.SetValidator(func(context.Context, *Config) error { return os.ErrInvalid })
	_ = os.WriteFile(p, []byte(`{"search": {"query": "two"}}`), 0o644)
	if _, err := m.Reload(ctx); err == nil {
		t.Fatal("validator error ignored")
	}

	m.SetValidator(nil)
	if changed, err := m.Reload(ctx); err != nil || !changed {
		t.Fatalf("changed = %v, err = %v", changed, err)
	}
	if got := <-ch; got.Search.Query != "two" {
		t.Fatalf("published query = %q", got.Search.Query)
	}
}

func TestEncodeDecodeYAML(t *testing.T) {
	t.Parallel()
	b, err := Encode("config.yaml", Example())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.HasPrefix(strings.TrimSpace(string(b)), "{") {
		t.Fatalf("expected yaml, got %s", b)
	}
	cfg, err := Decode("config.yml", b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Search.OrganizationName != Example().Search.OrganizationName {
		t.Fatalf("search = %+v", cfg.Search)
	}
	if _, err := Decode("config.yaml", []byte("search:\n  nope: 1\n")); err == nil {
		t.Fatal("unknown yaml key accepted")
	}
}
