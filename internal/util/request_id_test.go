package util

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEnsureRequestIDKeepsExisting(t *testing.T) {
	const incoming = "req-incoming-123"
	ctx := ContextWithRequestID(context.Background(), incoming)

	got, id := EnsureRequestID(ctx)
	if id != incoming {
		t.Fatalf("unexpected request id: got %q want %q", id, incoming)
	}
	if RequestIDFromContext(got) != incoming {
		t.Fatalf("context lost request id")
	}
}

func TestEnsureRequestIDGeneratesWhenMissing(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if id == "" {
		t.Fatal("expected generated request id")
	}
	if RequestIDFromContext(ctx) != id {
		t.Fatalf("generated id not stored in context")
	}
}

func TestContextWithRequestIDIgnoresBlank(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "  ")
	if RequestIDFromContext(ctx) != "" {
		t.Fatalf("blank id should not be stored")
	}
}

func TestSetRequestIDCopiesHeader(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-42")
	req := httptest.NewRequest(http.MethodPost, "/input", nil).WithContext(ctx)

	if got := SetRequestID(req); got != "req-42" {
		t.Fatalf("SetRequestID() = %q", got)
	}
	if got := req.Header.Get(RequestIDHeader); got != "req-42" {
		t.Fatalf("unexpected header: %q", got)
	}
}

func TestContextLoggerCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, "debug", "json")
	ctx := ContextWithLogger(context.Background(), base)
	ctx = ContextWithRequestID(ctx, "req-7")

	LoggerFromContext(ctx, nil).Info("hello")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log record: %v", err)
	}
	if record["request_id"] != "req-7" {
		t.Fatalf("log record missing request_id: %v", record)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("warning").String() != "WARN" {
		t.Fatalf("warning should map to WARN")
	}
	if ParseLevel("nonsense").String() != "INFO" {
		t.Fatalf("unknown level should map to INFO")
	}
}
