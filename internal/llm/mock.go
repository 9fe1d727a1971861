package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Mock is an offline provider that answers from keyword heuristics. It lets the
// service run end to end without network access or an API key.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

type mockRule struct {
	value    string
	keywords []string
}

var mockCategories = []mockRule{
	{"SPAM", []string{"вы выиграли", "перейдите по ссылке", "казино", "розыгрыш"}},
	{"COMPLAINT", []string{"жалоб", "недоволен", "недовольна", "возмущ", "претензи", "безобраз", "верните"}},
	{"SUPPORT", []string{"не работает", "ошибка", "не могу войти", "завис", "не приходит"}},
	{"ORDER", []string{"прошу оформить", "хочу оформить", "заказать", "прошу открыть", "хочу открыть", "выпустить"}},
	{"INQUIRY", []string{"?", "разъясн", "подскажите", "узнать", "какие условия", "какая ставка", "уточнить"}},
}

var mockSpecializations = []mockRule{
	{"Кредитование", []string{"ипотек", "кредит", "займ", "ссуд", "рефинанс"}},
	{"Карты", []string{"карт", "кэшбэк", "кешбэк", "cashback"}},
	{"Вклады и инвестиции", []string{"вклад", "депозит", "инвест", "облигац", "акци", "накопит"}},
	{"Страхование", []string{"страхов", "осаго", "каско", "полис"}},
	{"Дистанционное обслуживание", []string{"приложени", "онлайн", "интернет-банк", "смс", "пароль"}},
	{"Расчетно-кассовое обслуживание", []string{"расчетный счет", "расчётный счёт", "платеж", "платёж", "перевод", "эквайринг"}},
}

var mockFacts = []struct {
	key      string
	keywords []string
}{
	{"has_mortgage", []string{"моя ипотека", "по ипотеке", "ипотечн"}},
	{"has_credit_card", []string{"кредитная карта", "кредитной карт", "кредитк"}},
	{"has_debit_card", []string{"дебетов"}},
	{"has_auto_loan", []string{"автокредит"}},
	{"has_consumer_loan", []string{"потребительск"}},
	{"has_deposit", []string{"мой вклад", "вклад", "депозит"}},
	{"has_insurance", []string{"полис", "страховк"}},
	{"uses_mobile_app", []string{"приложени"}},
	{"is_business_client", []string{"ип ", "ооо", "для бизнеса", "расчетный счет"}},
	{"is_salary_client", []string{"зарплатн"}},
}

var (
	isoDate = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	ruDate  = regexp.MustCompile(`\b(\d{2})\.(\d{2})\.(\d{4})\b`)
)

func (m *Mock) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lower := strings.ToLower(req.Prompt)

	switch req.SchemaName {
	case SchemaClassification:
		out := map[string]any{
			"category":       matchRule(mockCategories, lower, "OTHER"),
			"specialization": matchRule(mockSpecializations, lower, "Прочее"),
			"deadline":       mockDeadline(req.Prompt),
		}
		return marshal(out)
	case SchemaBusinessFacts:
		facts := []map[string]string{}
		for _, f := range mockFacts {
			if containsAny(lower, f.keywords) {
				facts = append(facts, map[string]string{"key": f.key, "value": "true"})
			}
		}
		return marshal(map[string]any{"facts": facts})
	}

	if strings.Contains(strings.ToLower(req.System), "редактирован") {
		return mockEdit(req), nil
	}
	return mockDraft(matchRule(mockSpecializations, lower, "")), nil
}

func matchRule(rules []mockRule, text, fallback string) string {
	for _, r := range rules {
		if containsAny(text, r.keywords) {
			return r.value
		}
	}
	return fallback
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func mockDeadline(text string) string {
	if m := isoDate.FindStringSubmatch(text); m != nil {
		return m[0]
	}
	if m := ruDate.FindStringSubmatch(text); m != nil {
		return fmt.Sprintf("%s-%s-%s", m[3], m[2], m[1])
	}
	return ""
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func mockDraft(specialization string) string {
	topic := "по Вашему вопросу"
	if specialization != "" {
		topic = fmt.Sprintf("по направлению «%s»", specialization)
	}
	return "Уважаемый клиент!\n\n" +
		"Благодарим Вас за обращение в наш банк " + topic + ".\n\n" +
		"Мы внимательно изучили Ваше письмо. Специалист подготовит подробный ответ " +
		"и при необходимости свяжется с Вами для уточнения деталей.\n\n" +
		"С уважением,\nКоманда банка"
}

func mockEdit(req Request) string {
	request := ""
	for _, line := range strings.Split(req.Prompt, "\n") {
		if after, ok := strings.CutPrefix(strings.TrimSpace(line), "Сотрудник просит:"); ok {
			request = strings.TrimSpace(after)
			break
		}
	}
	draft := mockDraft("")
	if request == "" {
		return draft
	}
	return draft + "\n\nP.S. " + request
}
