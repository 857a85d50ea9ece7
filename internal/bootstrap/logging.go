package bootstrap

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/slopecast/slopecast-api/config"
)

var logLevel = new(slog.LevelVar) //nolint:gochecknoglobals // shared by the process-wide default logger

// InitLogger installs a JSON logger on stdout at info level. ConfigureLogger adjusts it once
// configuration is available.
func InitLogger() *slog.Logger {
	return installLogger(os.Stdout, false)
}

// ConfigureLogger applies the configured level. In dev mode it installs a text logger and
// returns it; otherwise current is returned unchanged.
func ConfigureLogger(cfg config.AppConfig, current *slog.Logger) *slog.Logger {
	SetLogLevel(cfg.LogLevel)
	if cfg.IsDev {
		return installLogger(os.Stdout, true)
	}
	return current
}

func installLogger(w io.Writer, text bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if text {
		h = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(h).With("service", "slopecast")
	slog.SetDefault(logger)
	return logger
}

// SetLogLevel sets the shared level from a name (debug, info, warn, error). Unknown names
// select info.
func SetLogLevel(name string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		lvl = slog.LevelInfo
	}
	logLevel.Set(lvl)
	return lvl
}

// ServiceNames lists the enabled modes in startup order, or nothing when the list is invalid.
func ServiceNames(cfg *config.AppConfig) []string {
	if cfg == nil {
		return nil
	}
	modes, err := cfg.EnabledServices()
	if err != nil {
		return nil
	}
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return names
}
