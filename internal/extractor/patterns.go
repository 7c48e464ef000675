package extractor

import (
	"regexp"
	"sort"
	"strings"
)

var (
	emailRe  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	upiRe    = regexp.MustCompile(`\b[A-Za-z0-9.\-_]{2,}@[A-Za-z]{2,}\b`)
	urlRe    = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"']+`)
	upiURIRe = regexp.MustCompile(`(?i)\bupi://pay[^\s<>"']*`)
	ifscRe   = regexp.MustCompile(`(?i)\b[A-Z]{4}0[A-Z0-9]{6}\b`)
	digitsRe = regexp.MustCompile(`\+?\d(?:[ \-]?\d)*`)
)

const urlTrailing = `.,;:!?)]}'"`

const (
	defaultBaseConfidence       = 0.6
	defaultReinforcedConfidence = 0.9
)

var defaultFraudKeywords = []string{
	"urgent", "urgently", "immediately", "right now", "today", "within 24 hours",
	"verify", "verification", "blocked", "suspended", "deactivated", "expire", "expired",
	"otp", "one time password", "kyc", "pan card", "aadhaar",
	"refund", "processing fee", "penalty", "fine", "legal action", "arrest",
	"lottery", "prize", "reward", "cashback", "winner", "congratulations",
	"customer care", "last chance", "act now",
}

var defaultContextWords = map[Kind][]string{
	KindUPI:         {"upi", "pay", "payment", "gpay", "google pay", "phonepe", "paytm", "bhim", "send", "transfer", "collect"},
	KindBankAccount: {"account", "a/c", "acc", "bank", "beneficiary", "deposit", "transfer", "neft", "imps", "rtgs"},
	KindIFSC:        {"ifsc", "branch", "bank", "neft", "imps", "rtgs"},
	KindURL:         {"link", "click", "open", "visit", "login", "verify", "website", "site", "form", "portal"},
	KindPhone:       {"call", "whatsapp", "contact", "number", "helpline", "phone", "mobile", "sms"},
	KindEmail:       {"email", "e-mail", "mail", "contact", "write"},
}

// DefaultConfig returns the built-in vocabularies and confidence levels.
func DefaultConfig() Config {
	ctx := make(map[Kind][]string, len(defaultContextWords))
	for k, words := range defaultContextWords {
		ctx[k] = append([]string(nil), words...)
	}
	return Config{
		BaseConfidence:       defaultBaseConfidence,
		ReinforcedConfidence: defaultReinforcedConfidence,
		FraudKeywords:        append([]string(nil), defaultFraudKeywords...),
		ContextWords:         ctx,
	}
}

// WordsPattern compiles a case-insensitive alternation that only matches whole words.
// Longer phrases are tried first so "one time password" wins over "password".
// It returns nil when no usable word is given.
func WordsPattern(words []string) *regexp.Regexp {
	var quoted []string
	for _, w := range words {
		w = strings.TrimSpace(strings.ToLower(w))
		if w == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(w))
	}
	if len(quoted) == 0 {
		return nil
	}
	sort.SliceStable(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}
