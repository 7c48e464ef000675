package session

import (
	"errors"
	"time"

	"github.com/MikeSquared-Agency/lure/internal/ledger"
	"github.com/MikeSquared-Agency/lure/internal/stage"
)

var ErrConcluded = errors.New("session concluded")

type Sender string

const (
	SenderScammer Sender = "scammer"
	SenderAgent   Sender = "agent"
)

// ParseSender maps an inbound sender label onto a Sender. "user" is the
// label some callers use for the honeypot side of the conversation.
func ParseSender(s string) (Sender, bool) {
	switch s {
	case "scammer":
		return SenderScammer, true
	case "agent", "user":
		return SenderAgent, true
	default:
		return "", false
	}
}

// Turn is one message in a conversation. Turns are never modified after
// being appended.
type Turn struct {
	Sender    Sender `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // epoch millis
	Index     int    `json:"turnIndex"`
}

// DeliveryStatus tracks the final report callback.
type DeliveryStatus string

const (
	DeliveryNone      DeliveryStatus = ""
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliverySkipped   DeliveryStatus = "skipped"
)

// Settled reports whether no further delivery work is expected.
func (d DeliveryStatus) Settled() bool {
	return d == DeliveryDelivered || d == DeliveryFailed || d == DeliverySkipped
}

type Session struct {
	ID           string         `json:"sessionId"`
	Stage        stage.Stage    `json:"stage"`
	TurnCount    int            `json:"turnCount"`
	History      []Turn         `json:"history"`
	Ledger       *ledger.Ledger `json:"ledger"`
	ScamDetected bool           `json:"scamDetected"`
	// Confidence is the highest scam-likelihood score of any scammer turn.
	Confidence       float64            `json:"confidenceScore"`
	ScamType         stage.ScamType     `json:"scamType,omitempty"`
	Concluded        bool               `json:"concluded"`
	ConclusionReason string             `json:"conclusionReason,omitempty"`
	Tactics          []stage.Tactic     `json:"tactics,omitempty"`
	Transitions      []stage.Transition `json:"transitions,omitempty"`
	// Goals lists the probing goal behind each agent reply, in order.
	Goals []string `json:"goals,omitempty"`
	// Report holds the exact bytes produced at finalization.
	Report           []byte         `json:"report,omitempty"`
	Delivery         DeliveryStatus `json:"delivery,omitempty"`
	DeliveryAttempts int            `json:"deliveryAttempts,omitempty"`
	// Version counts committed mutations; zero means never stored.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func New(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Stage:     stage.Recon,
		Ledger:    ledger.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsNew reports whether the session has never been committed to a store.
func (s *Session) IsNew() bool {
	return s.Version == 0
}

// Append adds a turn to the history. Agent turns are refused once the
// session has concluded; scammer turns are always kept for audit.
func (s *Session) Append(sender Sender, text string, ts int64) (Turn, error) {
	if s.Concluded && sender == SenderAgent {
		return Turn{}, ErrConcluded
	}
	t := Turn{Sender: sender, Text: text, Timestamp: ts, Index: len(s.History)}
	s.History = append(s.History, t)
	s.TurnCount = len(s.History)
	return t, nil
}

// Advance moves the stage forward to at least to and reports whether it
// changed. It never moves the stage backwards.
func (s *Session) Advance(to stage.Stage, turn int) bool {
	next := stage.Max(s.Stage, to)
	if next == s.Stage {
		return false
	}
	s.Transitions = append(s.Transitions, stage.Transition{From: s.Stage, To: next, Turn: turn})
	s.Stage = next
	return true
}

// Conclude marks the session terminal. It returns false when the session had
// already concluded.
func (s *Session) Conclude(reason string, turn int) bool {
	if s.Concluded {
		return false
	}
	s.Advance(stage.Concluded, turn)
	s.Concluded = true
	s.ConclusionReason = reason
	return true
}

func (s *Session) AddTactics(tactics []stage.Tactic) {
	for _, t := range tactics {
		if !s.HasTactic(t) {
			s.Tactics = append(s.Tactics, t)
		}
	}
}

// HasTactic reports whether t has been observed in any scammer turn.
func (s *Session) HasTactic(t stage.Tactic) bool {
	for _, have := range s.Tactics {
		if have == t {
			return true
		}
	}
	return false
}

// GoalCount returns how many replies have pursued goal.
func (s *Session) GoalCount(goal string) int {
	n := 0
	for _, g := range s.Goals {
		if g == goal {
			n++
		}
	}
	return n
}

// ScammerTexts returns the text of every scammer turn before index end.
func (s *Session) ScammerTexts(end int) []string {
	var out []string
	for _, t := range s.History {
		if t.Index >= end {
			break
		}
		if t.Sender == SenderScammer {
			out = append(out, t.Text)
		}
	}
	return out
}

// Recent returns the last n turns.
func (s *Session) Recent(n int) []Turn {
	if n <= 0 || n >= len(s.History) {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

func (s *Session) Clone() *Session {
	c := *s
	c.History = append([]Turn(nil), s.History...)
	c.Ledger = s.Ledger.Clone()
	c.Tactics = append([]stage.Tactic(nil), s.Tactics...)
	c.Transitions = append([]stage.Transition(nil), s.Transitions...)
	c.Goals = append([]string(nil), s.Goals...)
	if s.Report != nil {
		c.Report = append([]byte(nil), s.Report...)
	}
	return &c
}
