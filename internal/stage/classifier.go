package stage

import (
	"regexp"
	"strings"

	"github.com/MikeSquared-Agency/lure/internal/extractor"
)

// Assessment is the classifier's reading of one scammer turn.
type Assessment struct {
	Stage   Stage
	Score   float64
	Ending  bool
	Tactics []Tactic
}

// Classifier assigns stages and scam-likelihood scores. It is safe for
// concurrent use.
type Classifier struct {
	rules Rules

	socialRe  *regexp.Regexp
	imperRe   *regexp.Regexp
	urgencyRe *regexp.Regexp
	rewardRe  *regexp.Regexp
	paymentRe *regexp.Regexp
	qrRe      *regexp.Regexp
	otpRe     *regexp.Regexp
	bankRe    *regexp.Regexp
	byeRe     *regexp.Regexp
}

func NewClassifier(rules Rules) *Classifier {
	rules = rules.withDefaults()
	return &Classifier{
		rules:     rules,
		socialRe:  extractor.WordsPattern(rules.SocialEngineering),
		imperRe:   extractor.WordsPattern(rules.Impersonation),
		urgencyRe: extractor.WordsPattern(rules.Urgency),
		rewardRe:  extractor.WordsPattern(rules.RewardLure),
		paymentRe: extractor.WordsPattern(rules.PaymentRequest),
		qrRe:      extractor.WordsPattern(rules.QRCollect),
		otpRe:     extractor.WordsPattern(rules.OtpRequest),
		bankRe:    extractor.WordsPattern(rules.BankDetailRequest),
		byeRe:     extractor.WordsPattern(rules.Farewell),
	}
}

func (c *Classifier) Threshold() float64 {
	return c.rules.ScamThreshold
}

// Assess classifies one scammer turn. signals are the ones extracted from
// text; prior holds the texts of earlier scammer turns, oldest first. The
// returned stage is never Concluded; conclusion is decided by the caller.
func (c *Classifier) Assess(text string, signals []extractor.Signal, prior []string) Assessment {
	var a Assessment

	has := make(map[extractor.Kind]bool, len(signals))
	for _, s := range signals {
		has[s.Kind] = true
	}

	hits := map[string]bool{}
	match := func(re *regexp.Regexp) bool {
		if re == nil {
			return false
		}
		found := re.FindAllString(text, -1)
		for _, f := range found {
			hits[strings.ToLower(f)] = true
		}
		return len(found) > 0
	}

	social := match(c.socialRe)
	imper := match(c.imperRe)
	urgent := match(c.urgencyRe)
	reward := match(c.rewardRe)
	payment := match(c.paymentRe)
	qr := match(c.qrRe)
	otp := match(c.otpRe)
	bank := match(c.bankRe)

	tag := func(ok bool, t Tactic) {
		if ok {
			a.Tactics = append(a.Tactics, t)
		}
	}
	tag(urgent, TacticUrgency)
	tag(reward, TacticRewardLure)
	tag(imper, TacticImpersonation)
	tag(payment || has[extractor.KindUPI], TacticPaymentIntent)
	tag(qr, TacticQRCollect)
	tag(otp, TacticOTPRequest)
	tag(has[extractor.KindURL], TacticPhishingLink)
	tag(bank, TacticBankDetailsAsk)

	switch {
	case bank:
		a.Stage = BankDetailRequest
	case otp:
		a.Stage = OtpRequest
	case payment || qr || has[extractor.KindUPI] || has[extractor.KindBankAccount] || has[extractor.KindIFSC]:
		a.Stage = PaymentRequest
	case social || imper || urgent || reward || has[extractor.KindURL] || has[extractor.KindKeyword]:
		a.Stage = SocialEngineering
	default:
		a.Stage = Recon
	}

	score := float64(len(hits)) * keywordWeight
	for _, k := range []extractor.Kind{extractor.KindURL, extractor.KindUPI} {
		if has[k] {
			score += indicatorWeight(k)
		}
	}
	if has[extractor.KindBankAccount] || has[extractor.KindIFSC] {
		score += indicatorWeight(extractor.KindBankAccount)
	}
	if otp {
		score += otpWeight
	}
	score += stageBoost(a.Stage, reward)
	score += c.historyBoost(prior)
	a.Score = clamp(score)

	// a farewell phrase inside a turn that still pushes for money, codes,
	// bank details or a link is pressure, not a goodbye
	pushing := payment || qr || otp || bank ||
		has[extractor.KindUPI] || has[extractor.KindURL] ||
		has[extractor.KindBankAccount] || has[extractor.KindIFSC]
	a.Ending = !pushing && c.isEnding(text)
	return a
}

// Detected reports whether a session should be flagged as a scam after a
// turn assessed as a. Past Recon always counts; the score threshold only
// applies to the first scammer turn.
func (c *Classifier) Detected(next Stage, a Assessment, firstTurn bool) bool {
	if next > Recon {
		return true
	}
	return firstTurn && a.Score >= c.rules.ScamThreshold
}

// historyBoost rewards repeated scam vocabulary across earlier turns.
func (c *Classifier) historyBoost(prior []string) float64 {
	n := 0
	for _, p := range prior {
		if c.anyVocabulary(p) {
			n++
		}
	}
	boost := float64(n) * historyWeight
	if boost > historyCap {
		return historyCap
	}
	return boost
}

func (c *Classifier) anyVocabulary(text string) bool {
	for _, re := range []*regexp.Regexp{c.socialRe, c.imperRe, c.urgencyRe, c.rewardRe, c.paymentRe, c.qrRe, c.otpRe, c.bankRe} {
		if re != nil && re.MatchString(text) {
			return true
		}
	}
	return false
}

// isEnding reports an explicit farewell or refusal, or a message with no
// words at all.
func (c *Classifier) isEnding(text string) bool {
	if strings.TrimFunc(text, func(r rune) bool {
		return !isWordRune(r)
	}) == "" {
		return true
	}
	return c.byeRe != nil && c.byeRe.MatchString(text)
}

func isWordRune(r rune) bool {
	return r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r > 0x7f && r != 0x2026 && r != 0xfffd
}
