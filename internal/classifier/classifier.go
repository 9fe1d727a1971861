// Package classifier assigns a category, a specialization and a reply
// deadline to a customer letter using the language model.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/letterdesk/internal/llm"
)

const (
	classifyTimeout = 30 * time.Second
	temperature     = 0.1
	dateLayout      = "2006-01-02"

	// DefaultDeadlineDays is the reply window when the letter names no date.
	DefaultDeadlineDays = 10
)

// Result is a classification verdict.
type Result struct {
	Category       Category  `json:"category"`
	Specialization string    `json:"specialization"`
	Deadline       time.Time `json:"deadline"`
	// DeadlineFromText is true when the deadline came from the letter rather than the default window.
	DeadlineFromText bool `json:"deadline_from_text"`
}

// ClassificationError reports that the model output could not be turned into
// a Result. Callers are expected to apply Fallback.
type ClassificationError struct {
	Reason string
	Err    error
}

func (e *ClassificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classification failed: %s: %v", e.Reason, e.Err)
	}
	return "classification failed: " + e.Reason
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// verdict is the structured output requested from the model.
type verdict struct {
	Category       string `json:"category" jsonschema:"enum=COMPLAINT,enum=INQUIRY,enum=ORDER,enum=SUPPORT,enum=SPAM,enum=OTHER"`
	Specialization string `json:"specialization"`
	Deadline       string `json:"deadline" jsonschema:"description=Reply deadline as YYYY-MM-DD or empty string"`
}

// Classifier turns letter text into a Result.
type Classifier struct {
	client      llm.Client
	loc         *time.Location
	defaultDays int
	schema      any
}

// New creates a Classifier. loc is the bank's civil time zone used to
// interpret dates; defaultDays <= 0 selects DefaultDeadlineDays.
func New(client llm.Client, loc *time.Location, defaultDays int) *Classifier {
	if loc == nil {
		loc = time.UTC
	}
	if defaultDays <= 0 {
		defaultDays = DefaultDeadlineDays
	}
	return &Classifier{
		client:      client,
		loc:         loc,
		defaultDays: defaultDays,
		schema:      llm.GenerateSchema[verdict](),
	}
}

// Classify asks the model for a verdict on text. now is the submission time
// used for the default deadline. Any failure is a *ClassificationError.
func (c *Classifier) Classify(ctx context.Context, text string, now time.Time) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, &ClassificationError{Reason: "empty letter"}
	}

	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	var v verdict
	err := llm.CompleteJSON(ctx, c.client, llm.Request{
		System:      SystemPrompt(),
		Prompt:      text,
		SchemaName:  llm.SchemaClassification,
		Schema:      c.schema,
		Temperature: llm.Temp(temperature),
		MaxTokens:   200,
	}, &v)
	if err != nil {
		return Result{}, &ClassificationError{Reason: "model call", Err: err}
	}

	if strings.TrimSpace(v.Category) == "" {
		return Result{}, &ClassificationError{Reason: "missing category"}
	}
	cat, ok := ParseCategory(v.Category)
	if !ok {
		// Not every compatible endpoint enforces the schema enum.
		slog.WarnContext(ctx, "unknown category from model, using OTHER", "category", v.Category)
		cat = Other
	}

	deadline, fromText := c.ParseDeadline(v.Deadline, now)
	return Result{
		Category:         cat,
		Specialization:   NormalizeSpecialization(v.Specialization),
		Deadline:         deadline,
		DeadlineFromText: fromText,
	}, nil
}

// Fallback is the verdict used when classification fails.
func (c *Classifier) Fallback(now time.Time) Result {
	return Result{
		Category:       Other,
		Specialization: OtherSpecialization,
		Deadline:       c.DefaultDeadline(now),
	}
}

// DefaultDeadline is the end of the day, in bank time, defaultDays after now.
func (c *Classifier) DefaultDeadline(now time.Time) time.Time {
	return endOfDay(now.In(c.loc).AddDate(0, 0, c.defaultDays))
}

// ParseDeadline interprets raw as a YYYY-MM-DD date at 23:59:59 bank time.
// An empty or unparsable value yields DefaultDeadline(now) and false.
func (c *Classifier) ParseDeadline(raw string, now time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return c.DefaultDeadline(now), false
	}
	d, err := time.ParseInLocation(dateLayout, raw, c.loc)
	if err != nil {
		return c.DefaultDeadline(now), false
	}
	return endOfDay(d), true
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}

// IsClassificationError reports whether err is a *ClassificationError.
func IsClassificationError(err error) bool {
	var ce *ClassificationError
	return errors.As(err, &ce)
}
