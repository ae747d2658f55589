package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func resetLoggingState() {
	mu.Lock()
	defer mu.Unlock()

	if fileCloser != nil {
		_ = fileCloser.Close()
		fileCloser = nil
	}
	baseWriter = os.Stderr
	baseComponent = ""
	baseLogger = zerolog.New(baseWriter).With().Timestamp().Logger()
	log.Logger = baseLogger
	zerolog.TimeFieldFormat = defaultTimeFmt
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func readJSONLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()

	line := strings.TrimSpace(buf.String())
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	if line == "" {
		t.Fatalf("expected log output, got empty string")
	}

	var event map[string]interface{}
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	return event
}

func TestInitJSONFormatSetsLevelAndComponent(t *testing.T) {
	t.Cleanup(resetLoggingState)

	Init(Config{
		Format:    "json",
		Level:     "debug",
		Component: "superflow",
	})

	mu.RLock()
	defer mu.RUnlock()

	if baseWriter != os.Stderr {
		t.Fatalf("expected json format to write to stderr")
	}
	if baseComponent != "superflow" {
		t.Fatalf("component = %q, want superflow", baseComponent)
	}
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("global level = %s, want debug", zerolog.GlobalLevel())
	}
}

func TestInitAutoFormatUsesConsoleOnTerminal(t *testing.T) {
	t.Cleanup(resetLoggingState)
	original := isTerminalFn
	t.Cleanup(func() { isTerminalFn = original })
	isTerminalFn = func(int) bool { return true }

	Init(Config{Format: "auto"})

	mu.RLock()
	defer mu.RUnlock()
	if _, ok := baseWriter.(zerolog.ConsoleWriter); !ok {
		t.Fatalf("expected console writer on terminal, got %T", baseWriter)
	}
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	if got := parseLevel("loud"); got != zerolog.InfoLevel {
		t.Fatalf("parseLevel(loud) = %s, want info", got)
	}
	if got := parseLevel("WARNING"); got != zerolog.WarnLevel {
		t.Fatalf("parseLevel(WARNING) = %s, want warn", got)
	}
}

func TestInitWritesToLogFile(t *testing.T) {
	t.Cleanup(resetLoggingState)
	path := filepath.Join(t.TempDir(), "logs", "superflow.log")

	Init(Config{Format: "json", FilePath: path})
	log.Info().Msg("hello file")
	Shutdown()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello file") {
		t.Fatalf("log file missing message: %q", string(data))
	}
}

func TestWithRequestIDGeneratesWhenEmpty(t *testing.T) {
	ctx, id := WithRequestID(context.Background(), "  ")
	if id == "" {
		t.Fatal("expected generated request id")
	}
	if RequestID(ctx) != id {
		t.Fatalf("RequestID = %q, want %q", RequestID(ctx), id)
	}

	ctx, id = WithRequestID(context.Background(), "req-123")
	if id != "req-123" || RequestID(ctx) != "req-123" {
		t.Fatalf("expected provided request id to be kept, got %q", id)
	}
}

func TestFromContextAddsRequestID(t *testing.T) {
	t.Cleanup(resetLoggingState)

	var buf bytes.Buffer
	mu.Lock()
	baseLogger = zerolog.New(&buf)
	mu.Unlock()

	ctx, _ := WithRequestID(context.Background(), "req-abc")
	FromContext(ctx).Info().Msg("with id")

	event := readJSONLine(t, &buf)
	if event["request_id"] != "req-abc" {
		t.Fatalf("request_id = %v, want req-abc", event["request_id"])
	}
}

func TestMiddlewareEchoesRequestID(t *testing.T) {
	var seen string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "from-client")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "from-client" {
		t.Fatalf("handler saw request id %q", seen)
	}
	if rec.Header().Get(RequestIDHeader) != "from-client" {
		t.Fatalf("response header = %q", rec.Header().Get(RequestIDHeader))
	}
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
}
