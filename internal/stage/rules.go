package stage

// Tactic labels a manipulation technique observed in scammer turns.
type Tactic string

const (
	TacticUrgency        Tactic = "urgency"
	TacticRewardLure     Tactic = "reward_lure"
	TacticImpersonation  Tactic = "impersonation"
	TacticPaymentIntent  Tactic = "payment_intent"
	TacticQRCollect      Tactic = "qr_collect"
	TacticOTPRequest     Tactic = "otp_request"
	TacticPhishingLink   Tactic = "phishing_link"
	TacticBankDetailsAsk Tactic = "bank_details_request"
)

// Rules is the classifier vocabulary. Every list is matched on whole words,
// case-insensitively.
type Rules struct {
	SocialEngineering []string `yaml:"social_engineering"`
	Impersonation     []string `yaml:"impersonation"`
	Urgency           []string `yaml:"urgency"`
	RewardLure        []string `yaml:"reward_lure"`
	PaymentRequest    []string `yaml:"payment_request"`
	QRCollect         []string `yaml:"qr_collect"`
	OtpRequest        []string `yaml:"otp_request"`
	BankDetailRequest []string `yaml:"bank_detail_request"`
	Farewell          []string `yaml:"farewell"`
	// ScamThreshold is the first-turn scam-likelihood score at or above which
	// a session is flagged even while still in Recon.
	ScamThreshold float64 `yaml:"scam_threshold"`
}

const defaultScamThreshold = 0.5

func DefaultRules() Rules {
	return Rules{
		SocialEngineering: []string{
			"kyc", "verify", "verification", "update", "suspended", "blocked", "block",
			"limited", "deactivated", "security", "expire", "expired", "pan card", "aadhaar",
			"aapka account", "blocked hai", "legal action", "penalty", "arrest",
		},
		Impersonation: []string{
			"customer care", "support team", "bank officer", "rbi", "police", "cyber cell",
			"head office", "manager",
		},
		Urgency: []string{
			"urgent", "urgently", "immediately", "turant", "asap", "today", "within 1 hour",
			"within 24 hours", "right now", "last chance", "act now",
		},
		RewardLure: []string{
			"win", "won", "lottery", "prize", "cashback", "reward", "congratulations", "gift",
		},
		PaymentRequest: []string{
			"pay", "payment", "send money", "transfer", "refund", "processing fee", "charge",
			"fee", "upi", "request money", "deposit", "rs", "inr", "rupees",
		},
		QRCollect: []string{"scan", "qr", "qr code", "collect request"},
		OtpRequest: []string{
			"otp", "one time password", "share otp", "send otp", "verification code", "pin",
		},
		BankDetailRequest: []string{
			"account number", "bank details", "ifsc", "beneficiary", "a/c no", "card number",
			"cvv", "debit card", "net banking", "netbanking",
		},
		Farewell: []string{
			"bye", "goodbye", "good bye", "not interested", "stop messaging", "don't message",
			"do not message", "don't contact", "forget it", "leave it", "wrong number",
			"never mind", "i quit", "waste of time",
		},
		ScamThreshold: defaultScamThreshold,
	}
}

func (r Rules) withDefaults() Rules {
	def := DefaultRules()
	fill := func(dst *[]string, src []string) {
		if len(*dst) == 0 {
			*dst = src
		}
	}
	fill(&r.SocialEngineering, def.SocialEngineering)
	fill(&r.Impersonation, def.Impersonation)
	fill(&r.Urgency, def.Urgency)
	fill(&r.RewardLure, def.RewardLure)
	fill(&r.PaymentRequest, def.PaymentRequest)
	fill(&r.QRCollect, def.QRCollect)
	fill(&r.OtpRequest, def.OtpRequest)
	fill(&r.BankDetailRequest, def.BankDetailRequest)
	fill(&r.Farewell, def.Farewell)
	if r.ScamThreshold <= 0 || r.ScamThreshold > 1 {
		r.ScamThreshold = def.ScamThreshold
	}
	return r
}
