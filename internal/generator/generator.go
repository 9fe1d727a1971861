// Package generator writes reply drafts with the language model, both from
// scratch and as revisions requested by a specialist.
package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/letterdesk/internal/llm"
	"github.com/kalambet/letterdesk/internal/storage"
)

const (
	generateTimeout = 2 * time.Minute
	maxTokens       = 2000

	draftTemperature = 0.6
	editTemperature  = 0.7
)

// GenerationError reports a failed or empty generation. The letter must be
// left as it was so the specialist can retry.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return e.Op + " failed"
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Generator produces reply text.
type Generator struct {
	client llm.Client
}

func New(client llm.Client) *Generator {
	return &Generator{client: client}
}

// Generate answers letterText following instructions. It is the single model
// call behind first drafts, regenerations and chat edits.
func (g *Generator) Generate(ctx context.Context, letterText, instructions string) (string, error) {
	return g.generate(ctx, "generation", letterText, instructions, draftTemperature)
}

func (g *Generator) generate(ctx context.Context, op, prompt, system string, temp float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	out, err := g.client.Complete(ctx, llm.Request{
		System:      system,
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: llm.Temp(temp),
	})
	if err != nil {
		return "", &GenerationError{Op: op, Err: err}
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", &GenerationError{Op: op, Err: llm.ErrEmptyResponse}
	}
	return out, nil
}

// Draft writes a reply to l. assembled is the context block from the composer
// and may be empty.
func (g *Generator) Draft(ctx context.Context, l storage.Letter, assembled string) (string, error) {
	return g.Generate(ctx, l.Text, DraftInstructions(l.Category, l.Specialization, assembled))
}

// ChatEdit revises currentDraft according to request, given the original
// letter and the editing conversation so far.
func (g *Generator) ChatEdit(ctx context.Context, letterText, currentDraft string, chatLog []storage.ChatMessage, request string) (string, error) {
	if strings.TrimSpace(request) == "" {
		return "", &GenerationError{Op: "chat edit", Err: fmt.Errorf("empty request")}
	}
	prompt := EditPrompt(letterText, currentDraft, chatLog, request)
	return g.generate(ctx, "chat edit", prompt, editSystemPrompt, editTemperature)
}
