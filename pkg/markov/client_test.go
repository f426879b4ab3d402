package markov

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"markovchain/internal/util"
	"markovchain/pkg/content"
)

func TestGenerateReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/generate" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("unexpected content type: %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"start":"once upon","max_length":42}` {
			t.Errorf("unexpected body: %s", body)
		}
		_, _ = w.Write([]byte("generated text"))
	}))
	defer srv.Close()

	c := MustNew(srv.URL, WithHTTPClient(srv.Client()))
	payload := GeneratePayload{}.WithStart(content.MustNew("once upon")).WithMaxLength(42)
	text, err := c.Generate(context.Background(), payload)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if text != "generated text" {
		t.Fatalf("generate = %q, want %q", text, "generated text")
	}
}

func TestGenerateDoesNotParseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`"quoted"`))
	}))
	defer srv.Close()

	text, err := MustNew(srv.URL).Generate(context.Background(), GeneratePayload{})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if text != `"quoted"` {
		t.Fatalf("body should be returned verbatim, got %q", text)
	}
}

func TestSubmitInputAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/input" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"input":"qweasd123"}` {
			t.Errorf("unexpected body: %s", body)
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("server error"))
	}))
	defer srv.Close()

	c := MustNew(srv.URL)
	err := c.SubmitInput(context.Background(), InputPayload{Input: content.MustNew("qweasd123")})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("submit error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusInternalServerError || apiErr.Body != "server error" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if KindOf(err) != KindAPI {
		t.Fatalf("KindOf = %s, want api", KindOf(err))
	}
}

func TestSubmitInputSuccessIgnoresBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("whatever"))
	}))
	defer srv.Close()

	if err := MustNew(srv.URL).SubmitInput(context.Background(), InputPayload{Input: content.MustNew("x")}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
}

func TestTransportErrorWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := MustNew(addr, WithTimeout(5*time.Second))
	ctx := context.Background()

	err := c.SubmitInput(ctx, InputPayload{Input: content.MustNew("hello")})
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("submit error = %v, want *TransportError", err)
	}
	if transportErr.Op != "input" {
		t.Fatalf("unexpected op: %q", transportErr.Op)
	}

	_, err = c.Generate(ctx, GeneratePayload{})
	if KindOf(err) != KindTransport {
		t.Fatalf("generate error = %v, want transport kind", err)
	}
}

func TestCanceledContextIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := MustNew(srv.URL).Generate(ctx, GeneratePayload{})
	if KindOf(err) != KindTransport || !errors.Is(err, context.Canceled) {
		t.Fatalf("generate error = %v, want wrapped context.Canceled", err)
	}
}

func TestZeroValueInputRejectedBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := MustNew(srv.URL)
	if err := c.SubmitInput(context.Background(), InputPayload{}); !errors.Is(err, content.ErrEmpty) {
		t.Fatalf("submit error = %v, want ErrEmpty", err)
	}
	var zero content.String
	_, err := c.Generate(context.Background(), GeneratePayload{Start: &zero})
	if KindOf(err) != KindValidation {
		t.Fatalf("generate error = %v, want validation kind", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no requests, got %d", calls.Load())
	}
}

func TestEndpointJoin(t *testing.T) {
	cases := []struct {
		base         string
		wantInput    string
		wantGenerate string
	}{
		{"http://localhost:8080", "http://localhost:8080/input", "http://localhost:8080/generate"},
		{"http://localhost:8080/", "http://localhost:8080/input", "http://localhost:8080/generate"},
		{"https://example.com/api/v1", "https://example.com/api/v1/input", "https://example.com/api/v1/generate"},
		{"https://example.com/api/v1/", "https://example.com/api/v1/input", "https://example.com/api/v1/generate"},
	}
	for _, tc := range cases {
		c, err := New(tc.base)
		if err != nil {
			t.Fatalf("New(%q): %v", tc.base, err)
		}
		if c.InputURL() != tc.wantInput || c.GenerateURL() != tc.wantGenerate {
			t.Fatalf("New(%q) endpoints = %q, %q", tc.base, c.InputURL(), c.GenerateURL())
		}
	}
}

func TestNewRejectsInvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"", "   ", "localhost:8080", "ftp://example.com", "http://", "http://[::1"} {
		if _, err := New(raw); err == nil {
			t.Fatalf("New(%q) expected error", raw)
		}
	}
}

func TestMustNewPanicsOnInvalidBaseURL(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	MustNew("not a url")
}

type staticSigner struct {
	token    string
	audience string
}

func (s *staticSigner) Sign(audience string) (string, error) {
	s.audience = audience
	return s.token, nil
}

type failingSigner struct{}

func (failingSigner) Sign(string) (string, error) { return "", errors.New("no key") }

func TestRequestHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("unexpected authorization header: %q", got)
		}
		if got := r.Header.Get(util.RequestIDHeader); got != "req-9" {
			t.Errorf("unexpected request id: %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "markov-test/1.0" {
			t.Errorf("unexpected user agent: %q", got)
		}
	}))
	defer srv.Close()

	signer := &staticSigner{token: "tok-1"}
	c := MustNew(srv.URL, WithTokenSigner(signer, "markov"), WithUserAgent("markov-test/1.0"))
	ctx := util.ContextWithRequestID(context.Background(), "req-9")
	if err := c.SubmitInput(ctx, InputPayload{Input: content.MustNew("hi")}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if signer.audience != "markov" {
		t.Fatalf("signer audience = %q", signer.audience)
	}
}

func TestGeneratedRequestID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(util.RequestIDHeader) == "" {
			t.Errorf("missing request id header")
		}
	}))
	defer srv.Close()

	if _, err := MustNew(srv.URL).Generate(context.Background(), GeneratePayload{}); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
}

func TestSignerFailureStopsRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := MustNew(srv.URL, WithTokenSigner(failingSigner{}, "markov"))
	_, err := c.Generate(context.Background(), GeneratePayload{})
	if err == nil {
		t.Fatalf("expected signing error")
	}
	if kind := KindOf(err); kind != KindUnknown {
		t.Fatalf("signing failure kind = %s, want unknown", kind)
	}
	if calls.Load() != 0 {
		t.Fatalf("request sent despite signing failure")
	}
}

func TestClientConcurrentUse(t *testing.T) {
	var inputs atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/input":
			inputs.Add(1)
		case "/generate":
			body, _ := io.ReadAll(r.Body)
			_, _ = w.Write([]byte(strings.ToUpper(string(body))))
		}
	}))
	defer srv.Close()

	c := MustNew(srv.URL)
	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- c.SubmitInput(context.Background(), InputPayload{Input: content.MustNew("abc")})
		}()
		go func() {
			defer wg.Done()
			out, err := c.Generate(context.Background(), GeneratePayload{})
			if err == nil && out != `{"START":NULL,"MAX_LENGTH":NULL}` {
				err = errors.New("unexpected output " + out)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent call failed: %v", err)
		}
	}
	if inputs.Load() != 20 {
		t.Fatalf("inputs = %d, want 20", inputs.Load())
	}
}

func TestTimeoutAppliesRegardlessOfOptionOrder(t *testing.T) {
	shared := &http.Client{}
	for name, opts := range map[string][]Option{
		"timeout first": {WithTimeout(5 * time.Second), WithHTTPClient(shared)},
		"timeout last":  {WithHTTPClient(shared), WithTimeout(5 * time.Second)},
	} {
		c := MustNew("http://localhost:8080", opts...)
		if c.httpClient.Timeout != 5*time.Second {
			t.Fatalf("%s: timeout = %v, want 5s", name, c.httpClient.Timeout)
		}
		if c.httpClient == shared || shared.Timeout != 0 {
			t.Fatalf("%s: shared http.Client was mutated", name)
		}
	}
}
