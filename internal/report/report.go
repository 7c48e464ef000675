package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/lure/internal/extractor"
	"github.com/MikeSquared-Agency/lure/internal/session"
	"github.com/MikeSquared-Agency/lure/internal/stage"
)

// Intelligence groups unique ledger values by kind, in first-seen order.
// Slices are never nil so every key is present in the JSON.
type Intelligence struct {
	BankAccounts       []string `json:"bankAccounts"`
	UPIIDs             []string `json:"upiIds"`
	IFSCCodes          []string `json:"ifscCodes"`
	PhishingLinks      []string `json:"phishingLinks"`
	PhoneNumbers       []string `json:"phoneNumbers"`
	EmailIDs           []string `json:"emailIds"`
	SuspiciousKeywords []string `json:"suspiciousKeywords"`
}

// Report is the final summary sent to the evaluator.
type Report struct {
	SessionID              string       `json:"sessionId"`
	ScamDetected           bool         `json:"scamDetected"`
	TotalMessagesExchanged int          `json:"totalMessagesExchanged"`
	ExtractedIntelligence  Intelligence `json:"extractedIntelligence"`
	AgentNotes             string       `json:"agentNotes"`
}

// Build derives a report from session state.
func Build(s *session.Session) Report {
	l := s.Ledger
	return Report{
		SessionID:              s.ID,
		ScamDetected:           s.ScamDetected,
		TotalMessagesExchanged: s.TurnCount,
		ExtractedIntelligence: Intelligence{
			BankAccounts:       l.Values(extractor.KindBankAccount),
			UPIIDs:             l.Values(extractor.KindUPI),
			IFSCCodes:          l.Values(extractor.KindIFSC),
			PhishingLinks:      l.Values(extractor.KindURL),
			PhoneNumbers:       l.Values(extractor.KindPhone),
			EmailIDs:           l.Values(extractor.KindEmail),
			SuspiciousKeywords: l.Values(extractor.KindKeyword),
		},
		AgentNotes: Notes(s),
	}
}

// Finalize returns the session's report bytes, producing and caching them on
// the first call. Later calls return the cached bytes unchanged even if the
// session has moved on, so the report is summarized exactly once.
func Finalize(s *session.Session) ([]byte, error) {
	if s.Report != nil {
		return s.Report, nil
	}
	data, err := json.Marshal(Build(s))
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	s.Report = data
	return data, nil
}

// Decode parses cached report bytes.
func Decode(data []byte) (Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}

var tacticNotes = map[stage.Tactic]string{
	stage.TacticUrgency:        "urgency pressure",
	stage.TacticRewardLure:     "reward or prize lure",
	stage.TacticImpersonation:  "impersonation of bank or support staff",
	stage.TacticPaymentIntent:  "payment request",
	stage.TacticQRCollect:      "QR code or collect request",
	stage.TacticOTPRequest:     "OTP request",
	stage.TacticPhishingLink:   "phishing link",
	stage.TacticBankDetailsAsk: "request for bank or card details",
}

// Notes is a short, deterministic summary of what happened in the session.
func Notes(s *session.Session) string {
	var parts []string

	if len(s.Tactics) > 0 {
		names := make([]string, 0, len(s.Tactics))
		for _, t := range s.Tactics {
			if n, ok := tacticNotes[t]; ok {
				names = append(names, n)
			} else {
				names = append(names, string(t))
			}
		}
		parts = append(parts, "Tactics observed: "+strings.Join(names, ", ")+".")
	} else {
		parts = append(parts, "No clear scam tactics observed.")
	}

	if s.ScamType != "" {
		parts = append(parts, fmt.Sprintf("Scam type: %s (confidence %.2f).", s.ScamType, s.Confidence))
	}
	parts = append(parts, fmt.Sprintf("Furthest stage: %s.", furthest(s)))

	var got []string
	for _, k := range []extractor.Kind{extractor.KindUPI, extractor.KindBankAccount, extractor.KindIFSC, extractor.KindURL, extractor.KindPhone, extractor.KindEmail} {
		if n := len(s.Ledger.Values(k)); n > 0 {
			got = append(got, fmt.Sprintf("%d %s", n, kindLabel(k)))
		}
	}
	if len(got) > 0 {
		parts = append(parts, "Extracted "+strings.Join(got, ", ")+".")
	}

	if s.ConclusionReason != "" {
		parts = append(parts, "Ended: "+strings.ReplaceAll(s.ConclusionReason, "_", " ")+".")
	}
	return strings.Join(parts, " ")
}

// furthest returns the last stage reached before conclusion.
func furthest(s *session.Session) stage.Stage {
	st := stage.Recon
	for _, tr := range s.Transitions {
		if tr.To != stage.Concluded {
			st = stage.Max(st, tr.To)
		}
	}
	if s.Stage != stage.Concluded {
		st = stage.Max(st, s.Stage)
	}
	return st
}

func kindLabel(k extractor.Kind) string {
	switch k {
	case extractor.KindUPI:
		return "UPI ID(s)"
	case extractor.KindBankAccount:
		return "bank account(s)"
	case extractor.KindIFSC:
		return "IFSC code(s)"
	case extractor.KindURL:
		return "link(s)"
	case extractor.KindPhone:
		return "phone number(s)"
	case extractor.KindEmail:
		return "email(s)"
	default:
		return string(k)
	}
}
