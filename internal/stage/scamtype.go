package stage

import "github.com/MikeSquared-Agency/lure/internal/extractor"

// ScamType names the kind of fraud a session is running.
type ScamType string

const (
	ScamPhishing ScamType = "PHISHING"
	ScamOTP      ScamType = "OTP_FRAUD"
	ScamUPI      ScamType = "UPI_FRAUD"
	ScamBank     ScamType = "BANK_FRAUD"
	ScamGeneric  ScamType = "GENERIC_SCAM"
)

// TypeOf picks the scam type from what a session has shown so far. has
// reports whether the ledger holds a signal of a kind. The strongest indicator
// wins: a link over an OTP ask over a UPI handle over bank details. Sessions
// not flagged as scams have no type.
func TypeOf(tactics []Tactic, has func(extractor.Kind) bool, detected bool) ScamType {
	seen := func(t Tactic) bool {
		for _, have := range tactics {
			if have == t {
				return true
			}
		}
		return false
	}

	switch {
	case has(extractor.KindURL):
		return ScamPhishing
	case seen(TacticOTPRequest):
		return ScamOTP
	case has(extractor.KindUPI):
		return ScamUPI
	case has(extractor.KindBankAccount) || has(extractor.KindIFSC):
		return ScamBank
	case detected:
		return ScamGeneric
	default:
		return ""
	}
}
