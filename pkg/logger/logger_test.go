package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLoggerInit(t *testing.T) {
	for _, format := range []string{FormatText, FormatJSON, FormatConsole} {
		var buf bytes.Buffer
		if err := Init(WithWriter(&buf), WithFormat(format)); err != nil {
			t.Fatalf("failed to initialize %s logger: %v", format, err)
		}
		if Get() == nil {
			t.Fatalf("logger is nil after %s initialization", format)
		}
		Get().Info(context.Background(), "hello")
		if !strings.Contains(buf.String(), "hello") {
			t.Errorf("%s logger wrote %q, expected message", format, buf.String())
		}
	}
	if err := Sync(); err != nil {
		t.Errorf("failed to sync logger: %v", err)
	}
}

func TestLoggerUnknownFormat(t *testing.T) {
	if err := Init(WithFormat("xml")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLoggerNamedJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf), WithFormat(FormatJSON)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Named("worker").Named("unit-1").Warn(context.Background(), "request failed",
		Int("attempt", 2), Error(errors.New("boom")))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if line["logger"] != "worker.unit-1" {
		t.Errorf("logger = %v, want worker.unit-1", line["logger"])
	}
	if line["attempt"] != float64(2) {
		t.Errorf("attempt = %v, want 2", line["attempt"])
	}
	if src, _ := line["source"].(string); !strings.Contains(src, "logger_test.go") {
		t.Errorf("source = %v, want caller in logger_test.go", line["source"])
	}
}

func TestSetLevelString(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = SetLevelString("info") }()

	ctx := context.Background()
	Get().Debug(ctx, "hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug written at info level")
	}

	if err := SetLevelString("DEBUG"); err != nil {
		t.Fatalf("SetLevelString: %v", err)
	}
	Get().Debug(ctx, "visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("debug not written at debug level")
	}

	if err := SetLevelString("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
