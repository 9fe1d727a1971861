package knowledge

// Topic ties a knowledge document to the keywords that select it.
// Keywords are lower-case substrings (usually word stems).
type Topic struct {
	Name     string
	File     string
	Keywords []string
}

// DefaultTopics is the built-in keyword table. Order is significant: matched
// documents are emitted in table order.
var DefaultTopics = []Topic{
	{Name: "Общая информация", File: "general"},
	{Name: "Ипотека", File: "mortgage", Keywords: []string{
		"ипотек", "недвижимост", "квартир", "жиль", "материнский капитал", "молодая семья", "первоначальный взнос",
	}},
	{Name: "Автокредит", File: "auto_loans", Keywords: []string{
		"автокредит", "автомобил", "машин", "trade-in", "лизинг",
	}},
	{Name: "Потребительский кредит", File: "consumer_loans", Keywords: []string{
		"потребительск", "кредит наличными", "займ", "ссуд", "рефинансир", "досрочн",
	}},
	{Name: "Кредитные карты", File: "credit_cards", Keywords: []string{
		"кредитная карт", "кредитной карт", "кредитную карт", "кредитк", "льготный период", "грейс",
	}},
	{Name: "Дебетовые карты", File: "debit_cards", Keywords: []string{
		"дебетов", "карт", "снятие наличных", "банкомат",
	}},
	{Name: "Вклады", File: "deposits", Keywords: []string{
		"вклад", "депозит", "накопительн",
	}},
	{Name: "Страхование", File: "insurance", Keywords: []string{
		"страхов", "осаго", "каско", "полис",
	}},
	{Name: "Инвестиции", File: "investments", Keywords: []string{
		"инвестиц", "брокер", "пиф", "офз", "облигац", "акци",
	}},
	{Name: "Онлайн-банкинг", File: "online_banking", Keywords: []string{
		"онлайн", "интернет-банк", "мобильн", "приложени", "смс", "пароль",
	}},
	{Name: "Кэшбэк", File: "cashback", Keywords: []string{
		"кэшбэк", "кешбэк", "cashback", "бонус", "балл",
	}},
	{Name: "Счета", File: "accounts", Keywords: []string{
		"счет", "счёт", "реквизит",
	}},
}
