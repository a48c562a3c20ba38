package classifier

import "strings"

// Category labels assigned to messages
const (
	CategoryFinance   = "finance"
	CategoryMeetings  = "meetings"
	CategoryImportant = "important"
	CategoryMarketing = "marketing"
	CategoryGeneral   = "general"
)

// Confidence is fixed: this is a coarse keyword tier, not a scored
// classifier.
const Confidence = 0.8

// rule is one keyword-containment rule. Rules are evaluated in order and
// the first match wins, so "invoice" beats "meeting" when both appear.
type rule struct {
	category string
	keywords []string
}

var rules = []rule{
	{CategoryFinance, []string{
		"invoice", "payment", "receipt", "bank", "salary", "billing",
		"transaction", "refund", "tax",
	}},
	{CategoryMeetings, []string{
		"meeting", "schedule", "calendar", "appointment", "zoom",
		"conference call", "invite",
	}},
	{CategoryImportant, []string{
		"urgent", "important", "action required", "asap", "deadline",
	}},
	{CategoryMarketing, []string{
		"unsubscribe", "newsletter", "discount", "limited time",
		"special offer", "promotion", "sale",
	}},
}

// Classify assigns a category to a message body. Deterministic, no side
// effects; unmatched bodies fall back to the general category.
func Classify(body string) string {
	lower := strings.ToLower(body)
	for _, r := range rules {
		for _, keyword := range r.keywords {
			if strings.Contains(lower, keyword) {
				return r.category
			}
		}
	}
	return CategoryGeneral
}

// Categories returns every label Classify can produce, in rule order
func Categories() []string {
	out := make([]string, 0, len(rules)+1)
	for _, r := range rules {
		out = append(out, r.category)
	}
	return append(out, CategoryGeneral)
}
