package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClient returns canned responses in order and counts calls.
type fakeClient struct {
	responses []string
	errs      []error
	calls     atomic.Int32
	lastReq   Request
}

func (f *fakeClient) Complete(ctx context.Context, req Request) (string, error) {
	i := int(f.calls.Add(1)) - 1
	f.lastReq = req
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}```", `{"a":1}`},
		{"  plain  ", "plain"},
	}
	for _, tt := range tests {
		if got := StripFences(tt.in); got != tt.want {
			t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompleteJSON(t *testing.T) {
	c := &fakeClient{responses: []string{"```json\n{\"category\":\"INQUIRY\"}\n```"}}
	var out struct {
		Category string `json:"category"`
	}
	if err := CompleteJSON(context.Background(), c, Request{SchemaName: "x", Schema: map[string]any{}}, &out); err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if out.Category != "INQUIRY" {
		t.Errorf("Category = %q, want INQUIRY", out.Category)
	}
}

func TestCompleteJSON_Malformed(t *testing.T) {
	c := &fakeClient{responses: []string{"not json"}}
	var out map[string]any
	err := CompleteJSON(context.Background(), c, Request{SchemaName: "x"}, &out)
	if err == nil || !strings.Contains(err.Error(), "decoding x response") {
		t.Errorf("err = %v, want decoding error", err)
	}
}

func TestGenerateSchema(t *testing.T) {
	type sample struct {
		Category string `json:"category" jsonschema:"enum=A,enum=B"`
		Note     string `json:"note,omitempty"`
	}
	b, err := json.Marshal(GenerateSchema[sample]())
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"category"`, `"additionalProperties":false`, `"enum":["A","B"]`} {
		if !strings.Contains(s, want) {
			t.Errorf("schema %s missing %s", s, want)
		}
	}
	if strings.Contains(s, `"$ref"`) {
		t.Errorf("schema %s should be inlined", s)
	}
}

func TestWithRetry_RetriesTransientErrors(t *testing.T) {
	c := &fakeClient{
		errs:      []error{errors.New("connection reset"), errors.New("connection reset")},
		responses: []string{"", "", "ok"},
	}
	r := WithRetry(c, 3).(*retryClient)
	r.initial = time.Millisecond

	got, err := r.Complete(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want ok", got)
	}
	if n := c.calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestWithRetry_GivesUpAfterMaxTries(t *testing.T) {
	boom := errors.New("connection refused")
	c := &fakeClient{errs: []error{boom, boom, boom, boom}}
	r := WithRetry(c, 2).(*retryClient)
	r.initial = time.Millisecond

	_, err := r.Complete(context.Background(), Request{})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if n := c.calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestWithRetry_StopsOnPermanentError(t *testing.T) {
	c := &fakeClient{errs: []error{ErrEmptyResponse, ErrEmptyResponse}}
	r := WithRetry(c, 5).(*retryClient)
	r.initial = time.Millisecond

	_, err := r.Complete(context.Background(), Request{})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
	if n := c.calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestWithRetry_SingleTryIsPassthrough(t *testing.T) {
	c := &fakeClient{responses: []string{"x"}}
	if got := WithRetry(c, 1); got != Client(c) {
		t.Errorf("WithRetry(c, 1) should return c unchanged")
	}
}

func TestIsRetryable(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"empty", ErrEmptyResponse, false},
		{"network", errors.New("dial tcp: i/o timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(ctx, tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
