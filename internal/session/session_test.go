package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/lure/internal/extractor"
	"github.com/MikeSquared-Agency/lure/internal/ledger"
	"github.com/MikeSquared-Agency/lure/internal/stage"
)

func TestParseSender(t *testing.T) {
	tests := []struct {
		in   string
		want Sender
		ok   bool
	}{
		{"scammer", SenderScammer, true},
		{"agent", SenderAgent, true},
		{"user", SenderAgent, true},
		{"bot", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseSender(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseSender(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSession_ConcludedRefusesAgentTurns(t *testing.T) {
	s := New("s1", time.Now())
	s.Append(SenderScammer, "hi", 1)
	require.True(t, s.Conclude("max_turns", 0))
	assert.False(t, s.Conclude("again", 0), "conclude is sticky")
	assert.Equal(t, "max_turns", s.ConclusionReason)
	assert.Equal(t, stage.Concluded, s.Stage)

	_, err := s.Append(SenderAgent, "reply", 2)
	assert.ErrorIs(t, err, ErrConcluded)

	turn, err := s.Append(SenderScammer, "still here?", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, turn.Index)
	assert.Equal(t, 2, s.TurnCount)
}

func TestSession_AdvanceRecordsTransitions(t *testing.T) {
	s := New("s1", time.Now())

	assert.True(t, s.Advance(stage.PaymentRequest, 0))
	assert.False(t, s.Advance(stage.SocialEngineering, 1))
	assert.True(t, s.Advance(stage.OtpRequest, 2))

	require.Len(t, s.Transitions, 2)
	assert.Equal(t, stage.Transition{From: stage.Recon, To: stage.PaymentRequest, Turn: 0}, s.Transitions[0])
	assert.Equal(t, stage.OtpRequest, s.Stage)
	for _, tr := range s.Transitions {
		assert.True(t, tr.To > tr.From, "transition %s -> %s", tr.From, tr.To)
	}
}

func TestSession_AddTacticsUnique(t *testing.T) {
	s := New("s1", time.Now())
	s.AddTactics([]stage.Tactic{stage.TacticUrgency, stage.TacticRewardLure})
	s.AddTactics([]stage.Tactic{stage.TacticUrgency, stage.TacticOTPRequest})

	assert.Equal(t, []stage.Tactic{stage.TacticUrgency, stage.TacticRewardLure, stage.TacticOTPRequest}, s.Tactics)
}

func TestSession_JSONRoundTrip(t *testing.T) {
	s := New("s1", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	s.Append(SenderScammer, "pay to test@okicici", 1700000000000)
	s.Ledger.Observe(extractor.Signal{Kind: extractor.KindUPI, Value: "test@okicici", Confidence: 0.9})
	s.Advance(stage.PaymentRequest, 0)
	s.Report = []byte(`{"sessionId":"s1"}`)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var back Session
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, stage.PaymentRequest, back.Stage)
	assert.Equal(t, s.History, back.History)
	assert.Equal(t, s.Ledger.Signals(), back.Ledger.Signals())
	assert.Equal(t, s.Report, back.Report)
}

func TestSession_CloneIsDeep(t *testing.T) {
	s := New("s1", time.Now())
	s.Append(SenderScammer, "hi", 1)
	s.Report = []byte("{}")

	c := s.Clone()
	c.Append(SenderAgent, "hello?", 2)
	c.Ledger.Observe(extractor.Signal{Kind: extractor.KindEmail, Value: "a@b.com"})
	c.Report[0] = '['

	assert.Equal(t, 1, s.TurnCount)
	assert.Equal(t, 0, s.Ledger.Len())
	assert.Equal(t, "{}", string(s.Report))
}

func TestReplay_MatchesIncrementalFold(t *testing.T) {
	ext := extractor.New(extractor.DefaultConfig())
	s := New("s1", time.Now())
	texts := []struct {
		sender Sender
		text   string
	}{
		{SenderScammer, "Your account is blocked. Send payment on UPI"},
		{SenderAgent, "Which UPI id should I use?"},
		{SenderScammer, "fraud.desk@ybl"},
		{SenderAgent, "Okay, anything else?"},
		{SenderScammer, "also call 9876543210 or pay fraud.desk@ybl"},
	}

	incremental := ledger.New()
	for _, tt := range texts {
		turn, err := s.Append(tt.sender, tt.text, 0)
		require.NoError(t, err)
		incremental.Merge(TurnSignals(ext, s.History, turn.Index))
	}

	replayed := Replay(ext, s.History)
	assert.Equal(t, incremental.Signals(), replayed.Signals())

	upi, ok := replayed.Get(extractor.KindUPI, "fraud.desk@ybl")
	require.True(t, ok)
	assert.Equal(t, 2, upi.SourceTurn, "earliest turn is kept")
	assert.Equal(t, 0.9, upi.Confidence, "adjacent payment context reinforces")
}
