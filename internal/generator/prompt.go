package generator

import (
	"fmt"
	"strings"

	"github.com/kalambet/letterdesk/internal/storage"
)

const draftPreamble = `Ты - специалист по деловой переписке крупного банка. Подготовь ответ клиенту на его письмо.`

const draftRequirements = `ТРЕБОВАНИЯ К ОТВЕТУ:
- Соблюдай корпоративный стиль банка
- Будь вежливым и профессиональным
- Включи конкретные действия и сроки
- Не обещай того, что не следует из сведений ниже
- Максимум 300 слов

Верни только текст ответа, без пояснений.`

// tones holds per-category tone guidance. Unknown categories get the OTHER entry.
var tones = map[string]string{
	"COMPLAINT": "Клиент недоволен. Признай проблему, извинись от имени банка, опиши шаги по ее решению и срок ответа.",
	"INQUIRY":   "Клиент задает вопрос. Ответь по существу, приведи условия и ссылки на продукты банка.",
	"ORDER":     "Клиент хочет оформить продукт или услугу. Опиши порядок оформления, необходимые документы и сроки.",
	"SUPPORT":   "Клиент столкнулся с технической проблемой. Дай пошаговую инструкцию и контакты поддержки.",
	"SPAM":      "Письмо похоже на рассылку. Ответь кратко и нейтрально.",
	"OTHER":     "Ответь вежливо и по существу, при необходимости уточни детали обращения.",
}

// DraftInstructions builds the system instructions for a first draft or a
// regeneration.
func DraftInstructions(category, specialization, assembled string) string {
	tone, ok := tones[strings.ToUpper(category)]
	if !ok {
		tone = tones["OTHER"]
	}

	var sb strings.Builder
	sb.WriteString(draftPreamble)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "ТИП ПИСЬМА: %s\n", category)
	if specialization != "" {
		fmt.Fprintf(&sb, "НАПРАВЛЕНИЕ: %s\n", specialization)
	}
	sb.WriteString("ТОН: ")
	sb.WriteString(tone)
	sb.WriteString("\n\n")
	if assembled != "" {
		sb.WriteString("КОНТЕКСТ:\n")
		sb.WriteString(assembled)
		sb.WriteString("\n\n")
	}
	sb.WriteString(draftRequirements)
	return sb.String()
}

const editSystemPrompt = `Ты - помощник для редактирования ответов банка.
Твоя задача - улучшать ответы на основе просьб сотрудника, сохраняя корпоративный стиль и юридическую корректность.`

// EditPrompt lays out the letter, the current draft and the editing history
// followed by the specialist's request.
func EditPrompt(letterText, currentDraft string, chatLog []storage.ChatMessage, request string) string {
	var sb strings.Builder
	sb.WriteString("Исходное письмо от клиента:\n")
	sb.WriteString(strings.TrimSpace(letterText))
	sb.WriteString("\n\nТекущий черновик ответа:\n")
	if d := strings.TrimSpace(currentDraft); d != "" {
		sb.WriteString(d)
	} else {
		sb.WriteString("Черновик еще не создан")
	}
	sb.WriteString("\n\nИстория редактирования:\n")
	if len(chatLog) == 0 {
		sb.WriteString("Истории пока нет")
	}
	for i, m := range chatLog {
		if i > 0 {
			sb.WriteString("\n")
		}
		speaker := "Ассистент"
		if m.Role == storage.ChatRoleSpecialist {
			speaker = "Сотрудник"
		}
		fmt.Fprintf(&sb, "%s: %s", speaker, m.Text)
	}
	fmt.Fprintf(&sb, "\n\nСотрудник просит: %s\n\n", strings.TrimSpace(request))
	sb.WriteString("Предложи улучшенную версию ответа, учитывая просьбу сотрудника.\n")
	sb.WriteString("Сохрани корпоративный стиль банка, юридическую корректность и вежливый тон.")
	return sb.String()
}
