package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/letterdesk/internal/classifier"
	"github.com/kalambet/letterdesk/internal/llm"
	"github.com/kalambet/letterdesk/internal/stats"
	"github.com/kalambet/letterdesk/internal/storage"
)

// --- mocks ---

type mockKnowledge struct {
	text  string
	query string
}

func (m *mockKnowledge) Retrieve(query string) string {
	m.query = query
	return m.text
}

type mockLetters struct {
	letters map[int64]storage.Letter
	err     error
}

func (m *mockLetters) Get(_ context.Context, id int64) (storage.Letter, error) {
	if m.err != nil {
		return storage.Letter{}, m.err
	}
	l, ok := m.letters[id]
	if !ok {
		return storage.Letter{}, storage.ErrNotFound
	}
	return l, nil
}

type mockStats struct {
	overview stats.Overview
	err      error
}

func (m *mockStats) Overview(_ context.Context) (stats.Overview, error) {
	return m.overview, m.err
}

type brokenLLM struct{}

func (brokenLLM) Complete(context.Context, llm.Request) (string, error) {
	return "", errors.New("connection refused")
}

// --- helpers ---

var mcpNow = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func newTestMCPDeps() MCPDeps {
	return MCPDeps{
		Knowledge:  &mockKnowledge{text: "=== Ипотека ===\nСтавка от 6%."},
		Classifier: classifier.New(llm.NewMock(), time.UTC, 10),
		Letters: &mockLetters{letters: map[int64]storage.Letter{
			7: {ID: 7, Text: "Вопрос по вкладу", Status: storage.StatusResponseReady, Draft: "Черновик"},
		}},
		Stats: &mockStats{overview: stats.Overview{Total: 3, ByStatus: map[string]int{"PENDING": 3}}},
		Now:   func() time.Time { return mcpNow },
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_SearchKnowledge(t *testing.T) {
	deps := newTestMCPDeps()
	kb := deps.Knowledge.(*mockKnowledge)

	result, err := mcpSearchKnowledge(deps)(context.Background(), makeCallToolRequest("search_knowledge", map[string]interface{}{
		"query": "ставка по ипотеке",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), "Ставка от 6%") {
		t.Errorf("text = %q", toolText(t, result))
	}
	if kb.query != "ставка по ипотеке" {
		t.Errorf("query = %q", kb.query)
	}
}

func TestMCPTool_SearchKnowledge_Empty(t *testing.T) {
	deps := newTestMCPDeps()
	deps.Knowledge = &mockKnowledge{}

	result, _ := mcpSearchKnowledge(deps)(context.Background(), makeCallToolRequest("search_knowledge", map[string]interface{}{
		"query": "что угодно",
	}))
	if result.IsError || !strings.Contains(toolText(t, result), "No knowledge") {
		t.Errorf("result = %+v", result)
	}
}

func TestMCPTool_SearchKnowledge_MissingQuery(t *testing.T) {
	result, _ := mcpSearchKnowledge(newTestMCPDeps())(context.Background(), makeCallToolRequest("search_knowledge", map[string]interface{}{}))
	if !result.IsError {
		t.Fatal("expected tool error")
	}
}

func TestMCPTool_ClassifyText(t *testing.T) {
	result, err := mcpClassifyText(newTestMCPDeps())(context.Background(), makeCallToolRequest("classify_text", map[string]interface{}{
		"text": "Недоволен обслуживанием по кредиту, ответьте до 2025-03-15",
	}))
	if err != nil || result.IsError {
		t.Fatalf("classify: err=%v result=%+v", err, result)
	}
	var got struct {
		Category       string    `json:"category"`
		Specialization string    `json:"specialization"`
		Deadline       time.Time `json:"deadline"`
		Fallback       bool      `json:"fallback"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got.Category != "COMPLAINT" || got.Specialization != "Кредитование" || got.Fallback {
		t.Errorf("got %+v", got)
	}
	if got.Deadline.Format("2006-01-02") != "2025-03-15" {
		t.Errorf("deadline = %v", got.Deadline)
	}
}

func TestMCPTool_ClassifyText_FallsBack(t *testing.T) {
	deps := newTestMCPDeps()
	deps.Classifier = classifier.New(brokenLLM{}, time.UTC, 10)

	result, _ := mcpClassifyText(deps)(context.Background(), makeCallToolRequest("classify_text", map[string]interface{}{
		"text": "Здравствуйте",
	}))
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	text := toolText(t, result)
	if !strings.Contains(text, `"fallback":true`) || !strings.Contains(text, `"category":"OTHER"`) {
		t.Errorf("text = %s", text)
	}
}

func TestMCPTool_GetLetter(t *testing.T) {
	handler := mcpGetLetter(newTestMCPDeps())

	result, _ := handler(context.Background(), makeCallToolRequest("get_letter", map[string]interface{}{"id": 7}))
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	var l storage.Letter
	if err := json.Unmarshal([]byte(toolText(t, result)), &l); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if l.ID != 7 || l.Draft != "Черновик" {
		t.Errorf("letter = %+v", l)
	}

	result, _ = handler(context.Background(), makeCallToolRequest("get_letter", map[string]interface{}{"id": 8}))
	if !result.IsError || !strings.Contains(toolText(t, result), "not found") {
		t.Errorf("missing letter result = %+v", result)
	}

	result, _ = handler(context.Background(), makeCallToolRequest("get_letter", map[string]interface{}{}))
	if !result.IsError {
		t.Error("missing id should be a tool error")
	}
}

func TestMCPTool_GetStatistics(t *testing.T) {
	deps := newTestMCPDeps()
	result, _ := mcpGetStatistics(deps)(context.Background(), makeCallToolRequest("get_statistics", nil))
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), `"total_letters":3`) {
		t.Errorf("text = %s", toolText(t, result))
	}

	deps.Stats = &mockStats{err: errors.New("db down")}
	result, _ = mcpGetStatistics(deps)(context.Background(), makeCallToolRequest("get_statistics", nil))
	if !result.IsError {
		t.Error("expected tool error")
	}
}

func TestMCPResource_Specializations(t *testing.T) {
	contents, err := mcpResourceSpecializations()(context.Background(), makeReadResourceRequest("letterdesk://specializations"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var got struct {
		Specializations []string `json:"specializations"`
		Categories      []string `json:"categories"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(got.Specializations) != len(classifier.Specializations) || len(got.Categories) != len(classifier.Categories) {
		t.Errorf("got %+v", got)
	}
}

func TestNewMCPServer_RegistersEverything(t *testing.T) {
	s := NewMCPServer(newTestMCPDeps())
	if s == nil {
		t.Fatal("nil server")
	}
	tools := s.ListTools()
	for _, name := range []string{"search_knowledge", "classify_text", "get_letter", "get_statistics"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %s not registered", name)
		}
	}
}
