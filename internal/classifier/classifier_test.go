package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/letterdesk/internal/llm"
)

// mockLLM implements llm.Client for testing.
type mockLLM struct {
	response string
	err      error
	delay    time.Duration
	last     llm.Request
}

func (m *mockLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	m.last = req
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.response, m.err
}

var msk = time.FixedZone("MSK", 3*60*60)

// submitted is 2025-03-10 22:30 MSK, i.e. 19:30 UTC the same day.
var submitted = time.Date(2025, 3, 10, 19, 30, 0, 0, time.UTC)

func TestClassify_MortgageInquiry(t *testing.T) {
	m := &mockLLM{response: `{"category":"inquiry","specialization":"кредитование","deadline":""}`}
	c := New(m, msk, 10)

	got, err := c.Classify(context.Background(), "Прошу разъяснить ставку по ипотеке", submitted)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Category != Inquiry {
		t.Errorf("Category = %q, want INQUIRY", got.Category)
	}
	if got.Specialization != "Кредитование" {
		t.Errorf("Specialization = %q, want Кредитование", got.Specialization)
	}
	want := time.Date(2025, 3, 20, 23, 59, 59, 0, msk)
	if !got.Deadline.Equal(want) || got.DeadlineFromText {
		t.Errorf("Deadline = %v (fromText=%v), want %v", got.Deadline, got.DeadlineFromText, want)
	}
}

func TestClassify_RequestShape(t *testing.T) {
	m := &mockLLM{response: `{"category":"OTHER","specialization":"","deadline":""}`}
	New(m, msk, 10).Classify(context.Background(), "text", submitted)

	if m.last.SchemaName != llm.SchemaClassification || m.last.Schema == nil {
		t.Errorf("request not structured: %+v", m.last)
	}
	if m.last.Temperature == nil || *m.last.Temperature != 0.1 {
		t.Errorf("Temperature = %v, want 0.1", m.last.Temperature)
	}
	if m.last.Prompt != "text" {
		t.Errorf("Prompt = %q, want letter text", m.last.Prompt)
	}
	for _, want := range append([]string{"COMPLAINT", "SPAM"}, Specializations...) {
		if !strings.Contains(m.last.System, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestClassify_DeadlineFromText(t *testing.T) {
	m := &mockLLM{response: `{"category":"COMPLAINT","specialization":"Карты","deadline":"2025-03-14"}`}
	got, err := New(m, msk, 10).Classify(context.Background(), "Верните деньги до 14 марта", submitted)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := time.Date(2025, 3, 14, 23, 59, 59, 0, msk)
	if !got.Deadline.Equal(want) || !got.DeadlineFromText {
		t.Errorf("Deadline = %v (fromText=%v), want %v from text", got.Deadline, got.DeadlineFromText, want)
	}
}

func TestClassify_UnknownSpecializationNormalized(t *testing.T) {
	m := &mockLLM{response: `{"category":"ORDER","specialization":"Ипотека","deadline":"not a date"}`}
	got, err := New(m, msk, 10).Classify(context.Background(), "text", submitted)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Specialization != OtherSpecialization {
		t.Errorf("Specialization = %q, want %q", got.Specialization, OtherSpecialization)
	}
	if got.DeadlineFromText {
		t.Errorf("unparsable deadline should fall back to default")
	}
}

func TestClassify_Errors(t *testing.T) {
	tests := []struct {
		name string
		mock *mockLLM
		text string
	}{
		{"empty text", &mockLLM{response: `{"category":"OTHER"}`}, "   "},
		{"model error", &mockLLM{err: errors.New("connection refused")}, "text"},
		{"malformed json", &mockLLM{response: `category: OTHER`}, "text"},
		{"missing category", &mockLLM{response: `{"specialization":"Карты","deadline":""}`}, "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.mock, msk, 10).Classify(context.Background(), tt.text, submitted)
			var ce *ClassificationError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *ClassificationError", err)
			}
			if !IsClassificationError(err) {
				t.Errorf("IsClassificationError(%v) = false", err)
			}
		})
	}
}

func TestClassify_UnknownCategoryKeepsVerdict(t *testing.T) {
	mock := &mockLLM{response: `{"category":"QUESTION","specialization":"Кредитование","deadline":"2025-04-01"}`}
	got, err := New(mock, msk, 10).Classify(context.Background(), "text", submitted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Category != Other {
		t.Errorf("Category = %s, want OTHER", got.Category)
	}
	if got.Specialization != "Кредитование" {
		t.Errorf("Specialization = %q, want Кредитование", got.Specialization)
	}
	if !got.DeadlineFromText || got.Deadline.Format(dateLayout) != "2025-04-01" {
		t.Errorf("Deadline = %v (from text %v), want 2025-04-01", got.Deadline, got.DeadlineFromText)
	}
}

func TestClassify_WrapsCause(t *testing.T) {
	cause := errors.New("boom")
	_, err := New(&mockLLM{err: cause}, msk, 10).Classify(context.Background(), "text", submitted)
	if !errors.Is(err, cause) {
		t.Errorf("err = %v, want it to wrap %v", err, cause)
	}
}

func TestClassify_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(&mockLLM{delay: time.Second}, msk, 10).Classify(ctx, "text", submitted)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFallback(t *testing.T) {
	got := New(nil, msk, 10).Fallback(submitted)
	if got.Category != Other || got.Specialization != OtherSpecialization {
		t.Errorf("Fallback = %+v", got)
	}
	want := time.Date(2025, 3, 20, 23, 59, 59, 0, msk)
	if !got.Deadline.Equal(want) {
		t.Errorf("Deadline = %v, want %v", got.Deadline, want)
	}
}

func TestDefaultDeadline_UsesBankDate(t *testing.T) {
	// 22:30 UTC on March 10 is already March 11 in Moscow.
	late := time.Date(2025, 3, 10, 22, 30, 0, 0, time.UTC)
	got := New(nil, msk, 10).DefaultDeadline(late)
	want := time.Date(2025, 3, 21, 23, 59, 59, 0, msk)
	if !got.Equal(want) {
		t.Errorf("DefaultDeadline = %v, want %v", got, want)
	}
}

func TestNew_Defaults(t *testing.T) {
	c := New(nil, nil, 0)
	if c.defaultDays != DefaultDeadlineDays || c.loc != time.UTC {
		t.Errorf("defaults = %d, %v", c.defaultDays, c.loc)
	}
}

func TestParseCategory(t *testing.T) {
	if c, ok := ParseCategory(" spam "); !ok || c != Spam {
		t.Errorf("ParseCategory(spam) = %q, %v", c, ok)
	}
	if _, ok := ParseCategory("credit"); ok {
		t.Error("ParseCategory(credit) should be invalid")
	}
}
