package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and cross-field rules that tags cannot express.
// All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if err := validate.Struct(cfg); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			for _, fe := range ve {
				errs = append(errs, fmt.Errorf("%s: failed %q", fieldPath(fe.Namespace()), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	for _, d := range durationFields(cfg) {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			errs = append(errs, err)
		}
	}

	if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("schedule.timezone: %w", err))
		}
	}
	if !validLevel(cfg.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if !validLevel(cfg.Logging.Forward.MinLevel) {
		errs = append(errs, fmt.Errorf("logging.forward.min_level: unknown level %q", cfg.Logging.Forward.MinLevel))
	}
	if (strings.TrimSpace(cfg.Telegram.Token) == "") != (cfg.Telegram.ChatID == 0) {
		errs = append(errs, errors.New("telegram: token and chat_id must be set together"))
	}
	if d := cfg.Diagnostics; d.Enabled && !d.AllowInsecure && strings.TrimSpace(d.Token) == "" {
		if addr := strings.TrimSpace(d.Addr); addr != "" && !isLoopbackAddr(addr) {
			errs = append(errs, fmt.Errorf("diagnostics.addr %q is not loopback; set diagnostics.token or allow_insecure", addr))
		}
	}
	return errors.Join(errs...)
}

func validLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// fieldPath turns "Config.Search.ChunkDays" into "Search.ChunkDays".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
