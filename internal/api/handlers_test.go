package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/letterdesk/internal/classifier"
	"github.com/kalambet/letterdesk/internal/composer"
	"github.com/kalambet/letterdesk/internal/facts"
	"github.com/kalambet/letterdesk/internal/generator"
	"github.com/kalambet/letterdesk/internal/knowledge"
	"github.com/kalambet/letterdesk/internal/letters"
	"github.com/kalambet/letterdesk/internal/llm"
	"github.com/kalambet/letterdesk/internal/routing"
	"github.com/kalambet/letterdesk/internal/session"
	"github.com/kalambet/letterdesk/internal/stats"
	"github.com/kalambet/letterdesk/internal/storage"
	"github.com/kalambet/letterdesk/internal/users"
)

const mortgageLetter = "Подскажите, какая ставка по ипотеке?"

// flakyLLM delegates to the offline mock and fails free-text generation while
// failDrafts is set.
type flakyLLM struct {
	mock       *llm.Mock
	failDrafts atomic.Bool
}

func (f *flakyLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	if !req.Structured() && f.failDrafts.Load() {
		return "", errors.New("upstream unavailable")
	}
	return f.mock.Complete(ctx, req)
}

type testApp struct {
	handler http.Handler
	store   *storage.Store
	llm     *flakyLLM
}

func setupAppHandler(t *testing.T) *testApp {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	kbDir := t.TempDir()
	os.WriteFile(filepath.Join(kbDir, "mortgage.txt"), []byte("Ставка по ипотеке от 6%."), 0o644)

	model := &flakyLLM{mock: llm.NewMock()}
	letterSvc := letters.NewService(letters.Deps{
		Store:      store,
		Classifier: classifier.New(model, time.UTC, 10),
		Extractor:  facts.NewExtractor(model),
		Facts:      facts.NewBook(store),
		Router:     routing.New(store),
		Retriever:  knowledge.NewRetriever(kbDir, nil, nil),
		Composer:   composer.New(time.UTC, 0),
		Generator:  generator.New(model),
	})

	handler := NewAppHandler(AppDeps{
		Letters:  letterSvc,
		Users:    users.NewService(store),
		Sessions: session.NewMemoryStore(time.Hour),
		Stats:    stats.NewService(store),
		DB:       store,
	})
	return &testApp{handler: handler, store: store, llm: model}
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(SessionHeader, token)
	}
	return req
}

func (a *testApp) do(t *testing.T, method, url, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, authReq(method, url, body, token))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

type apiError struct {
	Error struct {
		Message       string `json:"message"`
		Type          string `json:"type"`
		CurrentStatus string `json:"current_status"`
	} `json:"error"`
}

// signup registers a user and logs in, returning the session token.
func (a *testApp) signup(t *testing.T, email, role string, specs ...string) string {
	t.Helper()
	reg, _ := json.Marshal(map[string]any{
		"email":           email,
		"name":            "Тест",
		"password":        "secret1",
		"role":            role,
		"specializations": specs,
	})
	if rec := a.do(t, "POST", "/auth/register", string(reg), ""); rec.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", email, rec.Code, rec.Body.String())
	}
	rec := a.do(t, "POST", "/auth/login", fmt.Sprintf(`{"email":%q,"password":"secret1"}`, email), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", email, rec.Code, rec.Body.String())
	}
	return decode[loginResponse](t, rec).SessionID
}

func (a *testApp) createLetter(t *testing.T, token, text string) createLetterResponse {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"text": text})
	rec := a.do(t, "POST", "/letters", string(body), token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /letters: %d %s", rec.Code, rec.Body.String())
	}
	return decode[createLetterResponse](t, rec)
}

func TestHealth(t *testing.T) {
	app := setupAppHandler(t)
	rec := app.do(t, "GET", "/health", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}
}

func TestLetterLifecycle(t *testing.T) {
	app := setupAppHandler(t)
	customer := app.signup(t, "client@mail.ru", "customer")
	specialist := app.signup(t, "credit@bank.ru", "specialist", "Кредитование")

	created := app.createLetter(t, customer, mortgageLetter)
	if created.Category != "INQUIRY" || created.Specialization != "Кредитование" {
		t.Fatalf("classification = %s/%s", created.Category, created.Specialization)
	}
	if created.Status != storage.StatusInWork || created.SpecialistID == nil {
		t.Fatalf("letter should be routed, got %+v", created)
	}
	base := fmt.Sprintf("/letters/%d", created.ID)

	rec := app.do(t, "POST", base+"/process", "", specialist)
	if rec.Code != http.StatusOK {
		t.Fatalf("process: %d %s", rec.Code, rec.Body.String())
	}
	processed := decode[storage.Letter](t, rec)
	if processed.Status != storage.StatusResponseReady || processed.Draft == "" {
		t.Fatalf("after process: %+v", processed)
	}

	// The customer never sees the draft.
	rec = app.do(t, "GET", "/letters/mine", "", customer)
	if rec.Code != http.StatusOK {
		t.Fatalf("mine: %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "draft") || strings.Contains(rec.Body.String(), "Уважаемый") {
		t.Fatalf("customer view leaks the draft: %s", rec.Body.String())
	}
	mine := decode[struct {
		Letters []letters.CustomerView `json:"letters"`
	}](t, rec)
	if len(mine.Letters) != 1 || mine.Letters[0].Response != nil {
		t.Fatalf("mine = %+v", mine.Letters)
	}

	rec = app.do(t, "POST", base+"/chat", `{"message":"Добавь телефон горячей линии"}`, specialist)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat: %d %s", rec.Code, rec.Body.String())
	}
	chat := decode[chatResponse](t, rec)
	if !strings.Contains(chat.ImprovedResponse, "Добавь телефон горячей линии") || chat.UpdatedDraft != chat.ImprovedResponse {
		t.Fatalf("chat = %+v", chat)
	}

	rec = app.do(t, "GET", base+"/chat", "", specialist)
	history := decode[struct {
		Messages []storage.ChatMessage `json:"messages"`
	}](t, rec)
	if len(history.Messages) != 2 || history.Messages[0].Role != storage.ChatRoleSpecialist || history.Messages[1].Role != storage.ChatRoleAssistant {
		t.Fatalf("chat history = %+v", history.Messages)
	}

	rec = app.do(t, "POST", base+"/approve", "", specialist)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: %d %s", rec.Code, rec.Body.String())
	}

	rec = app.do(t, "GET", base, "", customer)
	view := decode[letters.CustomerView](t, rec)
	if view.Status != storage.StatusCompleted || view.Response == nil || *view.Response != chat.UpdatedDraft {
		t.Fatalf("completed view = %+v", view)
	}

	rec = app.do(t, "POST", base+"/process", "", specialist)
	if rec.Code != http.StatusConflict {
		t.Fatalf("process after approve: %d, want 409", rec.Code)
	}
	if got := decode[apiError](t, rec).Error.CurrentStatus; got != "COMPLETED" {
		t.Errorf("current_status = %q, want COMPLETED", got)
	}
}

func TestTakePendingLetter(t *testing.T) {
	app := setupAppHandler(t)
	customer := app.signup(t, "client@mail.ru", "customer")
	created := app.createLetter(t, customer, mortgageLetter)
	if created.Status != storage.StatusPending {
		t.Fatalf("no specialist registered yet, got %s", created.Status)
	}

	first := app.signup(t, "a@bank.ru", "specialist")
	second := app.signup(t, "b@bank.ru", "specialist")
	url := fmt.Sprintf("/letters/%d/take", created.ID)

	if rec := app.do(t, "POST", url, "", first); rec.Code != http.StatusOK {
		t.Fatalf("first take: %d %s", rec.Code, rec.Body.String())
	}
	rec := app.do(t, "POST", url, "", second)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second take: %d, want 409", rec.Code)
	}
	if got := decode[apiError](t, rec).Error.CurrentStatus; got != "IN_WORK" {
		t.Errorf("current_status = %q", got)
	}
	if rec := app.do(t, "GET", fmt.Sprintf("/letters/%d", created.ID), "", second); rec.Code != http.StatusForbidden {
		t.Errorf("other specialist open: %d, want 403", rec.Code)
	}
}

func TestUpdateResponseAndRegenerate(t *testing.T) {
	app := setupAppHandler(t)
	customer := app.signup(t, "client@mail.ru", "customer")
	specialist := app.signup(t, "credit@bank.ru", "specialist", "Кредитование")
	base := fmt.Sprintf("/letters/%d", app.createLetter(t, customer, mortgageLetter).ID)

	rec := app.do(t, "PUT", base+"/response", `{"response":"Ставка 6%."}`, specialist)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	if l := decode[storage.Letter](t, rec); l.Draft != "Ставка 6%." || l.Status != storage.StatusResponseReady {
		t.Fatalf("after update: %+v", l)
	}

	if rec := app.do(t, "PUT", base+"/response", `{"response":"  "}`, specialist); rec.Code != http.StatusBadRequest {
		t.Errorf("empty response: %d, want 400", rec.Code)
	}

	rec = app.do(t, "POST", base+"/regenerate", "", specialist)
	if rec.Code != http.StatusOK {
		t.Fatalf("regenerate: %d %s", rec.Code, rec.Body.String())
	}
	if l := decode[storage.Letter](t, rec); l.Draft == "Ставка 6%." {
		t.Error("regenerate should replace the draft")
	}
}

func TestGenerationFailure(t *testing.T) {
	app := setupAppHandler(t)
	customer := app.signup(t, "client@mail.ru", "customer")
	specialist := app.signup(t, "credit@bank.ru", "specialist", "Кредитование")
	created := app.createLetter(t, customer, mortgageLetter)

	app.llm.failDrafts.Store(true)
	rec := app.do(t, "POST", fmt.Sprintf("/letters/%d/process", created.ID), "", specialist)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("process: %d, want 502", rec.Code)
	}
	if decode[apiError](t, rec).Error.Type != "generation_error" {
		t.Errorf("body = %s", rec.Body.String())
	}

	l, err := app.store.GetLetter(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetLetter: %v", err)
	}
	if l.Status != storage.StatusInWork || l.Draft != "" {
		t.Errorf("failed generation changed the letter: %+v", l)
	}
}

func TestAuthErrors(t *testing.T) {
	app := setupAppHandler(t)
	customer := app.signup(t, "client@mail.ru", "customer")

	tests := []struct {
		name   string
		method string
		url    string
		body   string
		token  string
		want   int
	}{
		{"no session", "GET", "/letters/mine", "", "", http.StatusUnauthorized},
		{"unknown session", "GET", "/letters/mine", "", "nope", http.StatusUnauthorized},
		{"customer on queue", "GET", "/letters/all", "", customer, http.StatusForbidden},
		{"customer on take", "POST", "/letters/1/take", "", customer, http.StatusForbidden},
		{"customer on stats", "GET", "/stats", "", customer, http.StatusForbidden},
		{"wrong password", "POST", "/auth/login", `{"email":"client@mail.ru","password":"wrong!!"}`, "", http.StatusUnauthorized},
		{"unknown email", "POST", "/auth/login", `{"email":"ghost@mail.ru","password":"secret1"}`, "", http.StatusUnauthorized},
		{"duplicate email", "POST", "/auth/register", `{"email":"client@mail.ru","name":"X","password":"secret1"}`, "", http.StatusConflict},
		{"invalid email", "POST", "/auth/register", `{"email":"nope","name":"X","password":"secret1"}`, "", http.StatusBadRequest},
		{"short password", "POST", "/auth/register", `{"email":"x@mail.ru","name":"X","password":"123"}`, "", http.StatusBadRequest},
		{"malformed body", "POST", "/auth/register", `{`, "", http.StatusBadRequest},
		{"empty letter", "POST", "/letters", `{"text":"   "}`, customer, http.StatusBadRequest},
		{"bad letter id", "GET", "/letters/abc", "", customer, http.StatusBadRequest},
		{"missing letter", "GET", "/letters/42", "", customer, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(t, tt.method, tt.url, tt.body, tt.token)
			if rec.Code != tt.want {
				t.Fatalf("%s %s: %d, want %d (%s)", tt.method, tt.url, rec.Code, tt.want, rec.Body.String())
			}
			if decode[apiError](t, rec).Error.Type == "" {
				t.Errorf("error body missing type: %s", rec.Body.String())
			}
		})
	}
}

func TestLogout(t *testing.T) {
	app := setupAppHandler(t)
	token := app.signup(t, "client@mail.ru", "customer")

	if rec := app.do(t, "POST", "/auth/logout", "", token); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: %d", rec.Code)
	}
	if rec := app.do(t, "GET", "/letters/mine", "", token); rec.Code != http.StatusUnauthorized {
		t.Errorf("expired token: %d, want 401", rec.Code)
	}
}

func TestCustomerCannotReadOthersLetter(t *testing.T) {
	app := setupAppHandler(t)
	alice := app.signup(t, "alice@mail.ru", "customer")
	bob := app.signup(t, "bob@mail.ru", "customer")
	created := app.createLetter(t, alice, mortgageLetter)

	if rec := app.do(t, "GET", fmt.Sprintf("/letters/%d", created.ID), "", bob); rec.Code != http.StatusForbidden {
		t.Errorf("GET other letter: %d, want 403", rec.Code)
	}
}

func TestQueueAndStatistics(t *testing.T) {
	app := setupAppHandler(t)
	customer := app.signup(t, "client@mail.ru", "customer")
	credit := app.signup(t, "credit@bank.ru", "specialist", "Кредитование")
	cards := app.signup(t, "cards@bank.ru", "specialist", "Карты")

	app.createLetter(t, customer, mortgageLetter)
	app.createLetter(t, customer, "Не работает карта, верните деньги")
	app.createLetter(t, customer, "Хочу открыть вклад")

	queue := func(token string) []storage.Letter {
		rec := app.do(t, "GET", "/letters/all", "", token)
		if rec.Code != http.StatusOK {
			t.Fatalf("queue: %d %s", rec.Code, rec.Body.String())
		}
		return decode[struct {
			Letters []storage.Letter `json:"letters"`
		}](t, rec).Letters
	}
	if got := queue(credit); len(got) != 1 || got[0].Specialization != "Кредитование" {
		t.Errorf("credit queue = %+v", got)
	}
	if got := queue(cards); len(got) != 1 || got[0].Specialization != "Карты" {
		t.Errorf("cards queue = %+v", got)
	}

	rec := app.do(t, "GET", "/letters/all?limit=0", "", credit)
	if rec.Code != http.StatusOK {
		t.Fatalf("limit 0: %d", rec.Code)
	}

	rec = app.do(t, "GET", "/statistics/overview", "", credit)
	if rec.Code != http.StatusOK {
		t.Fatalf("overview: %d", rec.Code)
	}
	overview := decode[stats.Overview](t, rec)
	if overview.Total != 3 || overview.ByStatus["IN_WORK"] != 2 || overview.ByStatus["PENDING"] != 1 {
		t.Errorf("overview = %+v", overview)
	}

	rec = app.do(t, "GET", "/stats", "", credit)
	if s := decode[stats.Summary](t, rec); s.MineInProgress != 1 || s.TotalCompleted != 0 {
		t.Errorf("summary = %+v", s)
	}

	rec = app.do(t, "GET", "/statistics/specialists", "", credit)
	specs := decode[struct {
		Specialists []stats.SpecialistStats `json:"specialists"`
	}](t, rec)
	if len(specs.Specialists) != 2 {
		t.Errorf("specialists = %+v", specs.Specialists)
	}

	rec = app.do(t, "GET", "/statistics/categories", "", credit)
	cats := decode[struct {
		Categories []stats.CategoryStats `json:"categories"`
	}](t, rec)
	if len(cats.Categories) == 0 {
		t.Error("expected category rows")
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 100},
		{"limit=5", 5},
		{"limit=-1", 100},
		{"limit=abc", 100},
		{"limit=9999", 500},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/letters/all?"+tt.query, nil)
		if got := parseIntParam(r, "limit", defaultQueueLimit, maxQueueLimit); got != tt.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
