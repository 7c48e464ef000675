package agent

import (
	"github.com/MikeSquared-Agency/lure/internal/extractor"
	"github.com/MikeSquared-Agency/lure/internal/ledger"
	"github.com/MikeSquared-Agency/lure/internal/stage"
)

// Goal is the single missing detail a reply probes for.
type Goal string

const (
	GoalClarifyIdentity   Goal = "clarify_identity"
	GoalPaymentHandle     Goal = "payment_handle"
	GoalTransactionDetail Goal = "transaction_detail"
	GoalCollectRequest    Goal = "collect_request"
	GoalOTPStall          Goal = "otp_stall"
	GoalBankAccount       Goal = "bank_account"
	GoalIFSC              Goal = "ifsc"
	GoalVerificationLink  Goal = "verification_link"
	GoalContactChannel    Goal = "contact_channel"
	GoalKeepAlive         Goal = "keep_alive"
)

// maxAsks bounds how often one goal is pursued before the policy moves on.
const maxAsks = 2

// GoalState is what goal selection looks at.
type GoalState struct {
	Stage  stage.Stage
	Ledger *ledger.Ledger
	// AsksOTP is set when the incoming message asks the agent for an OTP.
	AsksOTP bool
	// QRSeen is set once the scammer has pushed a QR code or collect request.
	QRSeen bool
	// Asked counts earlier replies per goal.
	Asked func(Goal) int
}

type rule struct {
	goal     Goal
	eligible func(GoalState) bool
}

// rules are checked in priority order.
var rules = []rule{
	{GoalClarifyIdentity, func(s GoalState) bool {
		return s.Stage == stage.Recon
	}},
	{GoalPaymentHandle, func(s GoalState) bool {
		return (s.Stage == stage.SocialEngineering || s.Stage == stage.PaymentRequest) && !s.Ledger.Has(extractor.KindUPI)
	}},
	{GoalTransactionDetail, func(s GoalState) bool {
		return s.Stage == stage.PaymentRequest
	}},
	{GoalCollectRequest, func(s GoalState) bool {
		return s.Stage == stage.PaymentRequest && s.QRSeen && s.Ledger.Has(extractor.KindUPI)
	}},
	{GoalOTPStall, func(s GoalState) bool {
		return s.Stage == stage.OtpRequest
	}},
	{GoalBankAccount, func(s GoalState) bool {
		return s.Stage == stage.BankDetailRequest && !s.Ledger.Has(extractor.KindBankAccount)
	}},
	{GoalIFSC, func(s GoalState) bool {
		return s.Stage == stage.BankDetailRequest && s.Ledger.Has(extractor.KindBankAccount) && !s.Ledger.Has(extractor.KindIFSC)
	}},
	{GoalVerificationLink, func(s GoalState) bool {
		return s.Stage == stage.SocialEngineering && !s.Ledger.Has(extractor.KindURL)
	}},
	{GoalContactChannel, func(s GoalState) bool {
		return !s.Ledger.Has(extractor.KindPhone) && !s.Ledger.Has(extractor.KindEmail)
	}},
}

// SelectGoal returns the highest-priority eligible goal. A direct request for
// an OTP is always answered with a stall, and GoalKeepAlive is the fallback
// when nothing else applies.
func SelectGoal(s GoalState) Goal {
	if s.AsksOTP {
		return GoalOTPStall
	}
	asked := s.Asked
	if asked == nil {
		asked = func(Goal) int { return 0 }
	}
	for _, r := range rules {
		if !r.eligible(s) {
			continue
		}
		if asked(r.goal) >= maxAsks {
			continue
		}
		return r.goal
	}
	return GoalKeepAlive
}
