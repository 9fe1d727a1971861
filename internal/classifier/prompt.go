package classifier

import (
	"fmt"
	"strings"
)

const systemPromptTemplate = `Ты - AI-классификатор входящих писем банка. Проанализируй письмо клиента и верни ТОЛЬКО один JSON-объект по заданной схеме, без пояснений и markdown.

Поле category - ровно одно значение из списка:
- COMPLAINT (жалоба)
- INQUIRY (запрос информации)
- ORDER (заказ продукта или услуги)
- SUPPORT (техническая поддержка)
- SPAM (спам)
- OTHER (другое)

Поле specialization - ровно одно направление банка из списка:
%s

Поле deadline - дата, к которой клиент просит ответить, в формате YYYY-MM-DD. Если срок в письме не указан, верни пустую строку.`

// SystemPrompt returns the fixed classification instruction.
func SystemPrompt() string {
	var sb strings.Builder
	for _, s := range Specializations {
		fmt.Fprintf(&sb, "- %s\n", s)
	}
	return fmt.Sprintf(systemPromptTemplate, strings.TrimRight(sb.String(), "\n"))
}
