package classifier

import "strings"

// Category is the coarse letter type assigned by the classifier.
type Category string

const (
	Complaint Category = "COMPLAINT"
	Inquiry   Category = "INQUIRY"
	Order     Category = "ORDER"
	Support   Category = "SUPPORT"
	Spam      Category = "SPAM"
	Other     Category = "OTHER"
)

// Categories lists every category the classifier may return.
var Categories = []Category{Complaint, Inquiry, Order, Support, Spam, Other}

func (c Category) Valid() bool {
	switch c {
	case Complaint, Inquiry, Order, Support, Spam, Other:
		return true
	default:
		return false
	}
}

// ParseCategory normalizes case and whitespace and reports whether s names a known category.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	return c, c.Valid()
}

// OtherSpecialization is the catch-all specialization tag.
const OtherSpecialization = "Прочее"

// Specializations is the closed vocabulary of topic tags shared by letters and specialists.
var Specializations = []string{
	"Кредитование",
	"Карты",
	"Вклады и инвестиции",
	"Страхование",
	"Дистанционное обслуживание",
	"Расчетно-кассовое обслуживание",
	OtherSpecialization,
}

// NormalizeSpecialization maps s onto the vocabulary, ignoring case and
// surrounding whitespace. Unknown or empty values become OtherSpecialization.
func NormalizeSpecialization(s string) string {
	s = strings.TrimSpace(s)
	for _, tag := range Specializations {
		if strings.EqualFold(tag, s) {
			return tag
		}
	}
	return OtherSpecialization
}
