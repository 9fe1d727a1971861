// Package composer assembles the context block handed to the draft generator:
// prior correspondence, what the bank knows about the customer, and matching
// knowledge base excerpts.
package composer

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kalambet/letterdesk/internal/facts"
	"github.com/kalambet/letterdesk/internal/storage"
)

const (
	historyHeader   = "[История переписки]"
	factsHeader     = "[Сведения о клиенте]"
	knowledgeHeader = "[База знаний]"

	defaultMaxContextTokens = 4000
)

// Composer formats context sections. Dates are rendered in loc.
type Composer struct {
	loc *time.Location
	// MaxContextTokens bounds the assembled block. Oldest history goes first,
	// then knowledge text is cut. Facts are always kept.
	MaxContextTokens int
}

// New creates a Composer. A nil loc renders dates in UTC; maxContextTokens
// <= 0 selects the default budget of 4000.
func New(loc *time.Location, maxContextTokens int) *Composer {
	if loc == nil {
		loc = time.UTC
	}
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{loc: loc, MaxContextTokens: maxContextTokens}
}

// Assemble joins the history, facts and knowledge sections in that order.
// Empty inputs produce no section at all; all three empty yields "".
func (c *Composer) Assemble(history []storage.Letter, f facts.Facts, knowledge string) string {
	entries := sortedHistory(history)
	factsText := factsSection(f)
	knowledge = strings.TrimSpace(knowledge)

	out := c.join(entries, factsText, knowledge)
	for len(entries) > 0 && estimateTokens(out) > c.MaxContextTokens {
		entries = entries[1:]
		out = c.join(entries, factsText, knowledge)
	}
	if knowledge == "" || estimateTokens(out) <= c.MaxContextTokens {
		return out
	}

	rest := estimateTokens(c.join(entries, factsText, "")) + estimateTokens("\n\n"+knowledgeHeader+"\n")
	return c.join(entries, factsText, truncateTokens(knowledge, c.MaxContextTokens-rest))
}

func (c *Composer) join(history []storage.Letter, factsText, knowledge string) string {
	var sections []string
	if s := c.historySection(history); s != "" {
		sections = append(sections, s)
	}
	if factsText != "" {
		sections = append(sections, factsText)
	}
	if knowledge != "" {
		sections = append(sections, knowledgeHeader+"\n"+knowledge)
	}
	return strings.Join(sections, "\n\n")
}

// sortedHistory copies history ordered oldest first.
func sortedHistory(history []storage.Letter) []storage.Letter {
	sorted := make([]storage.Letter, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func (c *Composer) historySection(history []storage.Letter) string {
	if len(history) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(historyHeader)
	for i, l := range history {
		fmt.Fprintf(&sb, "\nПисьмо #%d (%s)\n", i+1, l.CreatedAt.In(c.loc).Format("2006-01-02"))
		sb.WriteString("Клиент: ")
		sb.WriteString(strings.TrimSpace(l.Text))
		if reply := strings.TrimSpace(l.FinalResponse); reply != "" {
			sb.WriteString("\nОтвет банка: ")
			sb.WriteString(reply)
		}
	}
	return sb.String()
}

func factsSection(f facts.Facts) string {
	if len(f) == 0 {
		return ""
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := []string{factsHeader}
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("- %s: %s", k, formatValue(f[k])))
	}
	return strings.Join(lines, "\n")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "да"
		}
		return "нет"
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// estimateTokens approximates the token count as four characters per token.
// It counts runes, not bytes.
func estimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// truncateTokens cuts s to about n tokens, preferring a line break.
func truncateTokens(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n*4 {
		return s
	}
	cut := string(runes[:n*4])
	if i := strings.LastIndexByte(cut, '\n'); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
