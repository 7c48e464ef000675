package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/lure/internal/extractor"
	"github.com/MikeSquared-Agency/lure/internal/session"
	"github.com/MikeSquared-Agency/lure/internal/stage"
)

func concludedSession() *session.Session {
	s := session.New("sess-42", time.Now())
	s.Append(session.SenderScammer, "urgent, pay to test@okicici", 1)
	s.Append(session.SenderAgent, "Which UPI?", 2)
	s.Append(session.SenderScammer, "or call 9876543210, bye", 3)
	s.Ledger.Merge([]extractor.Signal{
		{Kind: extractor.KindUPI, Value: "test@okicici", Confidence: 0.9, SourceTurn: 0},
		{Kind: extractor.KindKeyword, Value: "urgent", Confidence: 0.6, SourceTurn: 0},
		{Kind: extractor.KindPhone, Value: "+919876543210", Confidence: 0.9, SourceTurn: 2},
	})
	s.ScamDetected = true
	s.Confidence = 0.85
	s.ScamType = stage.ScamUPI
	s.Advance(stage.PaymentRequest, 0)
	s.AddTactics([]stage.Tactic{stage.TacticUrgency, stage.TacticPaymentIntent})
	s.Conclude("scammer_ended", 2)
	return s
}

func TestBuild(t *testing.T) {
	r := Build(concludedSession())

	if r.SessionID != "sess-42" || !r.ScamDetected || r.TotalMessagesExchanged != 3 {
		t.Errorf("unexpected header: %+v", r)
	}
	if len(r.ExtractedIntelligence.UPIIDs) != 1 || r.ExtractedIntelligence.UPIIDs[0] != "test@okicici" {
		t.Errorf("unexpected upi ids: %v", r.ExtractedIntelligence.UPIIDs)
	}
	if r.ExtractedIntelligence.BankAccounts == nil {
		t.Error("empty groups must be empty slices, not nil")
	}
	for _, want := range []string{"urgency pressure", "payment request", "PAYMENT_REQUEST", "1 UPI ID(s)", "scammer ended", "Scam type: UPI_FRAUD (confidence 0.85)."} {
		if !strings.Contains(r.AgentNotes, want) {
			t.Errorf("notes %q missing %q", r.AgentNotes, want)
		}
	}
}

func TestReportJSONShape(t *testing.T) {
	data, err := json.Marshal(Build(session.New("empty", time.Now())))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"sessionId", "scamDetected", "totalMessagesExchanged", "extractedIntelligence", "agentNotes"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
	if !bytes.Contains(raw["extractedIntelligence"], []byte(`"upiIds":[]`)) {
		t.Errorf("expected empty arrays, got %s", raw["extractedIntelligence"])
	}
}

func TestFinalize_Idempotent(t *testing.T) {
	s := concludedSession()

	first, err := Finalize(s)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	// later turns and signals must not change the finalized report
	s.Append(session.SenderScammer, "hello? new upi other@ybl", 4)
	s.Ledger.Observe(extractor.Signal{Kind: extractor.KindUPI, Value: "other@ybl", Confidence: 0.9, SourceTurn: 3})

	second, err := Finalize(s)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("reports differ:\n%s\n%s", first, second)
	}

	// surviving a persistence round trip
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	var back session.Session
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}
	third, err := Finalize(&back)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !bytes.Equal(first, third) {
		t.Errorf("report changed across round trip:\n%s\n%s", first, third)
	}

	r, err := Decode(third)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if r.TotalMessagesExchanged != 3 {
		t.Errorf("expected cached count 3, got %d", r.TotalMessagesExchanged)
	}
}

func TestNotes_NoTactics(t *testing.T) {
	s := session.New("quiet", time.Now())
	got := Notes(s)
	if !strings.HasPrefix(got, "No clear scam tactics observed.") || !strings.Contains(got, "RECON") {
		t.Errorf("unexpected notes %q", got)
	}
	if strings.Contains(got, "Scam type") {
		t.Errorf("untyped session should not name a scam type: %q", got)
	}
}
