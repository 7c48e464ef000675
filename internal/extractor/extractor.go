package extractor

import (
	"net/url"
	"regexp"
	"strings"
)

// Extractor scans scammer turns for payment handles, bank details, links,
// contact channels and fraud vocabulary. It holds only compiled patterns and is
// safe for concurrent use.
type Extractor struct {
	cfg       Config
	keywordRe *regexp.Regexp
	contextRe map[Kind]*regexp.Regexp
}

func New(cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.BaseConfidence <= 0 || cfg.BaseConfidence > 1 {
		cfg.BaseConfidence = def.BaseConfidence
	}
	if cfg.ReinforcedConfidence <= 0 || cfg.ReinforcedConfidence > 1 {
		cfg.ReinforcedConfidence = def.ReinforcedConfidence
	}
	if cfg.ReinforcedConfidence < cfg.BaseConfidence {
		cfg.ReinforcedConfidence = cfg.BaseConfidence
	}
	if len(cfg.FraudKeywords) == 0 {
		cfg.FraudKeywords = def.FraudKeywords
	}
	if cfg.ContextWords == nil {
		cfg.ContextWords = def.ContextWords
	}

	e := &Extractor{
		cfg:       cfg,
		keywordRe: WordsPattern(cfg.FraudKeywords),
		contextRe: make(map[Kind]*regexp.Regexp, len(cfg.ContextWords)),
	}
	for kind, words := range cfg.ContextWords {
		if re := WordsPattern(words); re != nil {
			e.contextRe[kind] = re
		}
	}
	return e
}

// Extract returns the signals found in a single turn.
func (e *Extractor) Extract(text string, turnIndex int) []Signal {
	return e.ExtractAdjacent(text, "", turnIndex)
}

// ExtractAdjacent returns the signals found in text. Context words in either
// text or adjacent (typically the previous scammer turn) raise a structural
// match to reinforced confidence. Malformed input yields no signals.
func (e *Extractor) ExtractAdjacent(text, adjacent string, turnIndex int) []Signal {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	c := collector{turn: turnIndex, seen: make(map[Key]int)}
	scope := text + "\n" + adjacent

	// links, deep links and emails claim their spans so the looser patterns
	// below do not re-read them. Handles inside upi:// links are still read.
	var links, deep, emails []span

	for _, loc := range urlRe.FindAllStringIndex(text, -1) {
		raw := strings.TrimRight(text[loc[0]:loc[1]], urlTrailing)
		if v := normalizeURL(raw); v != "" {
			c.add(KindURL, v, e.confidence(KindURL, scope))
			links = append(links, span{loc[0], loc[0] + len(raw)})
		}
	}
	for _, loc := range upiURIRe.FindAllStringIndex(text, -1) {
		raw := strings.TrimRight(text[loc[0]:loc[1]], urlTrailing)
		c.add(KindURL, raw, e.confidence(KindURL, scope))
		deep = append(deep, span{loc[0], loc[0] + len(raw)})
	}

	for _, loc := range emailRe.FindAllStringIndex(text, -1) {
		if overlaps(links, loc) || overlaps(deep, loc) {
			continue
		}
		c.add(KindEmail, strings.ToLower(text[loc[0]:loc[1]]), e.confidence(KindEmail, scope))
		emails = append(emails, span{loc[0], loc[1]})
	}

	for _, loc := range upiRe.FindAllStringIndex(text, -1) {
		if overlaps(links, loc) || overlaps(emails, loc) {
			continue
		}
		c.add(KindUPI, strings.ToLower(text[loc[0]:loc[1]]), e.confidence(KindUPI, scope))
	}

	for _, loc := range ifscRe.FindAllStringIndex(text, -1) {
		if overlaps(links, loc) || overlaps(deep, loc) || overlaps(emails, loc) {
			continue
		}
		c.add(KindIFSC, strings.ToUpper(text[loc[0]:loc[1]]), e.confidence(KindIFSC, scope))
	}

	for _, loc := range digitsRe.FindAllStringIndex(text, -1) {
		if overlaps(links, loc) || overlaps(deep, loc) || !standalone(text, loc) {
			continue
		}
		digits := stripSeparators(text[loc[0]:loc[1]])
		if phone, ok := normalizePhone(digits); ok && !e.bankContextOnly(scope) {
			c.add(KindPhone, phone, e.confidence(KindPhone, scope))
			continue
		}
		if n := len(digits); n >= 9 && n <= 18 && digits[0] != '+' {
			c.add(KindBankAccount, digits, e.confidence(KindBankAccount, scope))
		}
	}

	if e.keywordRe != nil {
		hits := uniqueLower(e.keywordRe.FindAllString(text, -1))
		conf := e.cfg.BaseConfidence
		if len(hits) >= 2 || len(uniqueLower(e.keywordRe.FindAllString(adjacent, -1))) > 0 {
			conf = e.cfg.ReinforcedConfidence
		}
		for _, kw := range hits {
			c.add(KindKeyword, kw, conf)
		}
	}

	return c.out
}

// confidence returns the reinforced level when a context word for kind occurs in scope.
func (e *Extractor) confidence(kind Kind, scope string) float64 {
	if re, ok := e.contextRe[kind]; ok && re.MatchString(scope) {
		return e.cfg.ReinforcedConfidence
	}
	return e.cfg.BaseConfidence
}

// bankContextOnly reports whether a phone-shaped digit run should be read as an
// account number: bank vocabulary is present and phone vocabulary is not.
func (e *Extractor) bankContextOnly(scope string) bool {
	bank, ok := e.contextRe[KindBankAccount]
	if !ok || !bank.MatchString(scope) {
		return false
	}
	phone, ok := e.contextRe[KindPhone]
	return !ok || !phone.MatchString(scope)
}

type span struct{ start, end int }

func overlaps(taken []span, loc []int) bool {
	for _, s := range taken {
		if loc[0] < s.end && s.start < loc[1] {
			return true
		}
	}
	return false
}

type collector struct {
	turn int
	out  []Signal
	seen map[Key]int
}

func (c *collector) add(kind Kind, value string, conf float64) {
	if value == "" {
		return
	}
	k := Key{Kind: kind, Value: value}
	if i, ok := c.seen[k]; ok {
		if conf > c.out[i].Confidence {
			c.out[i].Confidence = conf
		}
		return
	}
	c.seen[k] = len(c.out)
	c.out = append(c.out, Signal{Kind: kind, Value: value, Confidence: conf, SourceTurn: c.turn})
}

// standalone reports whether the digit run at loc is not glued to letters,
// which filters out digits embedded in handles and codes.
func standalone(text string, loc []int) bool {
	if loc[0] > 0 && isAlnum(text[loc[0]-1]) {
		return false
	}
	if loc[1] < len(text) && (isAlnum(text[loc[1]]) || text[loc[1]] == '@') {
		return false
	}
	return true
}

func isAlnum(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b == '_'
}

func stripSeparators(s string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(s)
}

// normalizePhone maps Indian mobile numbers with or without a country or
// trunk prefix onto +91XXXXXXXXXX. Other numbers are only read as phones when
// written in E.164 form with a leading +.
func normalizePhone(digits string) (string, bool) {
	d := strings.TrimPrefix(digits, "+")
	if d != digits && !strings.HasPrefix(d, "91") {
		if len(d) < 8 || len(d) > 15 || d[0] == '0' {
			return "", false
		}
		return "+" + d, true
	}
	switch {
	case len(d) == 12 && strings.HasPrefix(d, "91"):
		d = d[2:]
	case len(d) == 11 && d[0] == '0':
		d = d[1:]
	case len(d) == 10:
	default:
		return "", false
	}
	if d[0] < '6' || d[0] > '9' {
		return "", false
	}
	return "+91" + d, true
}

func normalizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	candidate := raw
	if strings.HasPrefix(strings.ToLower(candidate), "www.") {
		candidate = "http://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

func uniqueLower(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.ToLower(s)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
