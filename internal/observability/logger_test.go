package observability

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/askdb/askdb/internal/config"
)

func TestNewLoggerAddsServiceAttrs(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{Profile: config.ProfileTest, Service: config.ServiceConfig{Name: "askdb-api"}}
	cfg.Observability.LogJSON = true
	cfg.Observability.LogLevel = slog.LevelInfo

	NewLogger(cfg, &buf).Info("hello")

	out := buf.String()
	if !strings.Contains(out, `"service":"askdb-api"`) || !strings.Contains(out, `"profile":"test"`) {
		t.Fatalf("log output = %s", out)
	}
}

func TestOpenLoggerFansOutToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "askdb.log")
	cfg := config.Config{Profile: config.ProfileDev, Service: config.ServiceConfig{Name: "askdb-api"}}
	cfg.Observability.LogLevel = slog.LevelInfo
	cfg.Observability.LogFile = path

	logger, closeFn, err := OpenLogger(cfg, &buf)
	if err != nil {
		t.Fatalf("OpenLogger() error = %v", err)
	}
	logger.Info("fanout", slog.String("k", "v"))
	if err := closeFn(); err != nil {
		t.Fatalf("close error = %v", err)
	}

	if !strings.Contains(buf.String(), "msg=fanout") {
		t.Fatalf("text output = %q", buf.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), `"msg":"fanout"`) {
		t.Fatalf("file output = %q", string(data))
	}
}

func TestLoggerAddsTraceIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{Profile: config.ProfileTest, Service: config.ServiceConfig{Name: "askdb-api"}}
	cfg.Observability.LogJSON = true

	logger := NewLogger(cfg, &buf).With(slog.String("component", "orchestrator"))
	logger.InfoContext(ContextWithTraceID(context.Background(), "abc123"), "traced")
	logger.Info("untraced")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %q", lines)
	}
	if !strings.Contains(lines[0], `"trace_id":"abc123"`) || !strings.Contains(lines[0], `"component":"orchestrator"`) {
		t.Fatalf("traced record = %s", lines[0])
	}
	if strings.Contains(lines[1], "trace_id") {
		t.Fatalf("untraced record = %s", lines[1])
	}
}
