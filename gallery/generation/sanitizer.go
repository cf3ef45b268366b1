package generation

import (
	"regexp"
	"strings"
)

// clauseTail extends a qualifier to the end of its clause when the clause is
// closed by a comma or colon before the sentence ends. Without such a
// delimiter only the qualifier itself is removed.
const clauseTail = `(?:[^\n。！？!?.，,：:]*[，,：:][ \t]*)?`

// provenanceQualifiers are leading phrases that reveal where an answer came
// from. Order matters: earlier rules run first.
var provenanceQualifiers = []string{
	`作為(?:一個?)?\s*AI(?:\s*(?:語言)?模型|助理)?`,
	`根據(?:本張|這張)?圖片`,
	`從(?:這張)?圖片中?(?:可以|能)?看(?:到|出)`,
	`根據(?:提供的)?文字(?:內容)?`,
	`依(?:據|照)提示`,
	`綜合(?:以上|上述)(?:資訊|內容)`,
	`就(?:我|我們)所(?:知|見)`,
	`基於(?:題示|提供的?(?:資訊|內容|文字|圖片)?)`,
	`\bas an ai(?: language model| assistant)?\b`,
	`\baccording to the (?:provided )?(?:image|picture|photo|text|description)\b`,
	`\bbased on the (?:provided )?(?:image|picture|photo|text|description|information)\b`,
}

// Replacement is a literal phrase rewrite.
type Replacement struct {
	From string
	To   string
}

// phraseReplacements soften stock phrases instead of deleting them.
var phraseReplacements = []Replacement{
	{"總結來說，", ""},
	{"總而言之，", ""},
	{"整體來看，", ""},
	{"整體而言，", ""},
	{"一般而言，", "一般來說，"},
	{"通常而言，", "通常來說，"},
	{"我推測", "看起來"},
	{"我認為", "看來"},
	{"我猜測", "或許"},
	{"可以看出", "看來"},
	{"可以推斷", "多半"},
	{"看起來像是", "看起來是"},
}

var (
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	trailingBlanks = regexp.MustCompile(`[ \t]+\n`)
)

// Sanitizer removes or rewrites phrases that reveal how an answer was
// produced.
type Sanitizer struct {
	removals     []*regexp.Regexp
	replacements []Replacement
}

// NewSanitizer compiles the built-in rule set.
func NewSanitizer() *Sanitizer {
	removals := make([]*regexp.Regexp, 0, len(provenanceQualifiers))
	for _, q := range provenanceQualifiers {
		removals = append(removals, regexp.MustCompile(`(?i)[ \t]*`+q+clauseTail))
	}
	return &Sanitizer{
		removals:     removals,
		replacements: phraseReplacements,
	}
}

// Sanitize applies the rules until the text stops changing, so sanitizing an
// already sanitized string is a no-op. Empty input is returned unchanged.
// Every pass that changes the text either shortens it or consumes a phrase no
// rule produces, so the loop terminates.
func (s *Sanitizer) Sanitize(text string) string {
	if text == "" {
		return text
	}
	for {
		next := s.pass(text)
		if next == text {
			break
		}
		text = next
	}
	return text
}

func (s *Sanitizer) pass(text string) string {
	for _, re := range s.removals {
		text = re.ReplaceAllString(text, "")
	}
	for _, r := range s.replacements {
		text = strings.ReplaceAll(text, r.From, r.To)
	}
	text = excessNewlines.ReplaceAllString(text, "\n\n")
	text = trailingBlanks.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}
