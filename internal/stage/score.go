package stage

import "github.com/MikeSquared-Agency/lure/internal/extractor"

const (
	keywordWeight = 0.10
	otpWeight     = 0.55
	historyWeight = 0.08
	historyCap    = 0.32
)

// indicatorWeight returns the score increment for a structural signal.
func indicatorWeight(kind extractor.Kind) float64 {
	switch kind {
	case extractor.KindURL:
		return 0.45
	case extractor.KindUPI:
		return 0.40
	case extractor.KindBankAccount, extractor.KindIFSC:
		return 0.45
	default:
		return 0
	}
}

// stageBoost helps multi-turn escalation. Reward lures score slightly above
// plain social engineering.
func stageBoost(s Stage, reward bool) float64 {
	switch s {
	case SocialEngineering:
		if reward {
			return 0.25
		}
		return 0.20
	case PaymentRequest:
		return 0.30
	case OtpRequest:
		return 0.35
	case BankDetailRequest:
		return 0.30
	default:
		return 0
	}
}

func clamp(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
