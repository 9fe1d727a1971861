// Package facts extracts durable facts about a customer (products held,
// channels used, city) from letter text and keeps them per customer.
package facts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/letterdesk/internal/llm"
)

const (
	extractionTimeout = 30 * time.Second
	temperature       = 0.1
)

// Kind is the declared value type of a fact key.
type Kind int

const (
	KindBool Kind = iota
	KindString
)

// Keys is the allow-list of fact keys the extractor keeps.
var Keys = map[string]Kind{
	"has_credit_card":    KindBool,
	"has_debit_card":     KindBool,
	"has_mortgage":       KindBool,
	"has_auto_loan":      KindBool,
	"has_consumer_loan":  KindBool,
	"has_deposit":        KindBool,
	"has_insurance":      KindBool,
	"uses_mobile_app":    KindBool,
	"is_business_client": KindBool,
	"is_salary_client":   KindBool,
	"preferred_contact":  KindString,
	"city":               KindString,
	"card_product":       KindString,
}

// Facts maps a fact key to a bool or a string value.
type Facts map[string]any

// ExtractionError reports that no facts could be read from the model output.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fact extraction failed: %s: %v", e.Reason, e.Err)
	}
	return "fact extraction failed: " + e.Reason
}

func (e *ExtractionError) Unwrap() error { return e.Err }

type factEntry struct {
	Key   string `json:"key" jsonschema:"enum=has_credit_card,enum=has_debit_card,enum=has_mortgage,enum=has_auto_loan,enum=has_consumer_loan,enum=has_deposit,enum=has_insurance,enum=uses_mobile_app,enum=is_business_client,enum=is_salary_client,enum=preferred_contact,enum=city,enum=card_product"`
	Value string `json:"value" jsonschema:"description=true or false for has_/uses_/is_ keys; free text otherwise"`
}

type extraction struct {
	Facts []factEntry `json:"facts"`
}

// Extractor asks the model for facts stated in a letter.
type Extractor struct {
	client llm.Client
	schema any
}

func NewExtractor(client llm.Client) *Extractor {
	return &Extractor{client: client, schema: llm.GenerateSchema[extraction]()}
}

// Extract returns the allow-listed facts found in text. On any failure it
// returns an empty Facts together with an *ExtractionError.
func (e *Extractor) Extract(ctx context.Context, text string) (Facts, error) {
	if strings.TrimSpace(text) == "" {
		return Facts{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()

	var out extraction
	err := llm.CompleteJSON(ctx, e.client, llm.Request{
		System:      systemPrompt,
		Prompt:      text,
		SchemaName:  llm.SchemaBusinessFacts,
		Schema:      e.schema,
		Temperature: llm.Temp(temperature),
		MaxTokens:   300,
	}, &out)
	if err != nil {
		return Facts{}, &ExtractionError{Reason: "model call", Err: err}
	}

	f := Facts{}
	for _, entry := range out.Facts {
		key := strings.TrimSpace(entry.Key)
		if v, ok := normalize(key, entry.Value); ok {
			f[key] = v
		}
	}
	return f, nil
}

// normalize converts raw to the declared kind of key. Unknown keys and values
// of the wrong kind are rejected.
func normalize(key, raw string) (any, bool) {
	kind, ok := Keys[key]
	if !ok {
		return nil, false
	}
	raw = strings.TrimSpace(raw)
	switch kind {
	case KindBool:
		switch strings.ToLower(raw) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		return nil, false
	case KindString:
		if raw == "" {
			return nil, false
		}
		return raw, true
	default:
		return nil, false
	}
}

const systemPrompt = `Ты - аналитик банка. Найди в письме клиента факты о нем самом и верни JSON вида {"facts":[{"key":"...","value":"..."}]}.

Допустимые ключи:
- has_credit_card, has_debit_card, has_mortgage, has_auto_loan, has_consumer_loan, has_deposit, has_insurance: есть ли у клиента продукт (значение "true" или "false")
- uses_mobile_app: пользуется ли мобильным приложением ("true" или "false")
- is_business_client: обращается ли как ИП или организация ("true" или "false")
- is_salary_client: получает ли зарплату на карту банка ("true" или "false")
- preferred_contact: предпочитаемый способ связи (телефон, email)
- city: город клиента
- card_product: название карточного продукта

Указывай только то, что прямо следует из текста. Если фактов нет, верни {"facts":[]}.`
