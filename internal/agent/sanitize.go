package agent

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/MikeSquared-Agency/lure/internal/extractor"
)

// ErrUnsafeReply marks generated text the persona filter refused.
var ErrUnsafeReply = errors.New("reply rejected by persona filter")

const maxReplyRunes = 240

var (
	// revealing words would tell the other side that they have been spotted,
	// threaten them, or expose that the replies are automated.
	revealingRe = extractor.WordsPattern([]string{
		"scam", "scams", "scammer", "scammers", "scamming", "fraud", "fraudster", "fraudulent",
		"fake", "phishing", "police", "cyber cell", "cyber crime", "cybercrime", "complaint",
		"report you", "reporting you", "jail", "arrest", "caught", "nice try", "honeypot",
		"bot", "chatbot", "ai", "artificial intelligence", "language model", "automated",
		"assistant", "as an", "i cannot", "i can't help",
	})
	longDigitsRe  = regexp.MustCompile(`\d(?:[\s\-]?\d){3,}`)
	speakerRe     = regexp.MustCompile(`(?i)^\s*(?:rahul|agent|assistant|me|reply|response)\s*:\s*`)
	surroundQuote = "\"'`“”‘’"
)

// Sanitize applies the persona filter to generated text. It returns the
// cleaned single-question reply or an error wrapping ErrUnsafeReply.
func Sanitize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = speakerRe.ReplaceAllString(s, "")
	s = strings.Trim(s, surroundQuote+" ")
	s = strings.Join(strings.Fields(s), " ")

	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrUnsafeReply)
	}
	if revealingRe.MatchString(s) {
		return "", fmt.Errorf("%w: reveals detection", ErrUnsafeReply)
	}
	if longDigitsRe.MatchString(s) {
		return "", fmt.Errorf("%w: contains a number", ErrUnsafeReply)
	}

	q := strings.IndexByte(s, '?')
	if q < 0 {
		return "", fmt.Errorf("%w: no question", ErrUnsafeReply)
	}
	s = strings.TrimSpace(s[:q+1])

	if utf8.RuneCountInString(s) > maxReplyRunes {
		return "", fmt.Errorf("%w: too long", ErrUnsafeReply)
	}
	return s, nil
}
