package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/lure/internal/agent"
	"github.com/MikeSquared-Agency/lure/internal/dispatch"
	"github.com/MikeSquared-Agency/lure/internal/extractor"
	"github.com/MikeSquared-Agency/lure/internal/hermes"
	"github.com/MikeSquared-Agency/lure/internal/metrics"
	"github.com/MikeSquared-Agency/lure/internal/report"
	"github.com/MikeSquared-Agency/lure/internal/session"
	"github.com/MikeSquared-Agency/lure/internal/stage"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotConcluded = errors.New("session not concluded")
)

// Conclusion reasons.
const (
	ReasonScammerEnded = "scammer_ended"
	ReasonMaxTurns     = "max_turns"
	ReasonTerminated   = "terminated"
)

// Enqueuer accepts final reports for background delivery.
type Enqueuer interface {
	Enqueue(sessionID string, report []byte) error
}

type Config struct {
	MaxTurns int
}

// Incoming is one inbound scammer message. History is only used to seed a
// session that has never been seen.
type Incoming struct {
	SessionID string
	Text      string
	Timestamp int64
	History   []session.Turn
}

// Engine runs the reply path: extraction, ledger update, stage
// classification and the agent reply, all under the session's lock.
type Engine struct {
	store      session.Store
	extractor  *extractor.Extractor
	classifier *stage.Classifier
	agent      *agent.Agent
	queue      Enqueuer
	cfg        Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	events     hermes.Publisher
	now        func() time.Time
}

func New(store session.Store, ext *extractor.Extractor, cls *stage.Classifier, ag *agent.Agent, q Enqueuer, cfg Config, logger *slog.Logger) *Engine {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 20
	}
	return &Engine{
		store:      store,
		extractor:  ext,
		classifier: cls,
		agent:      ag,
		queue:      q,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

func (e *Engine) SetMetrics(m *metrics.Metrics) { e.metrics = m }

func (e *Engine) SetEvents(p hermes.Publisher) { e.events = p }

// outcome collects what a committed mutation must announce once the lock is
// released.
type outcome struct {
	transitions  []stage.Transition
	concluded    bool
	reason       string
	turnCount    int
	scamDetected bool
	report       []byte
}

// HandleTurn records a scammer message and returns the agent's reply. A
// concluded session keeps the message for audit and replies with "".
// Generation problems never surface here; only input and store errors do.
func (e *Engine) HandleTurn(ctx context.Context, in Incoming) (string, error) {
	if strings.TrimSpace(in.SessionID) == "" {
		return "", fmt.Errorf("%w: sessionId is required", ErrInvalidInput)
	}
	if in.Timestamp <= 0 {
		in.Timestamp = e.now().UnixMilli()
	}

	var (
		reply string
		out   outcome
	)
	err := e.store.WithLock(ctx, in.SessionID, func(s *session.Session) error {
		reply, out = "", outcome{}
		seen := len(s.Transitions)

		if s.IsNew() && len(in.History) > 0 {
			e.seed(s, in.History)
		}

		if s.Concluded {
			if _, err := s.Append(session.SenderScammer, in.Text, in.Timestamp); err != nil {
				return fmt.Errorf("append turn: %w", err)
			}
			e.metrics.Turn(string(session.SenderScammer))
			return nil
		}

		t, err := s.Append(session.SenderScammer, in.Text, in.Timestamp)
		if err != nil {
			return fmt.Errorf("append turn: %w", err)
		}
		e.metrics.Turn(string(session.SenderScammer))
		a := e.ingest(s, t)

		switch {
		case a.Ending:
			e.conclude(s, ReasonScammerEnded, t.Index, &out)
		case s.TurnCount >= e.cfg.MaxTurns:
			e.conclude(s, ReasonMaxTurns, t.Index, &out)
		default:
			r := e.agent.Respond(ctx, s, agent.Incoming{Turn: t, AsksOTP: hasTactic(a.Tactics, stage.TacticOTPRequest)})
			at, err := s.Append(session.SenderAgent, r.Text, e.now().UnixMilli())
			if err != nil {
				return fmt.Errorf("append reply: %w", err)
			}
			e.metrics.Turn(string(session.SenderAgent))
			s.Goals = append(s.Goals, string(r.Goal))
			reply = r.Text
			if s.TurnCount >= e.cfg.MaxTurns {
				e.conclude(s, ReasonMaxTurns, at.Index, &out)
			}
		}

		out.transitions = append(out.transitions, s.Transitions[seen:]...)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("handle turn: %w", err)
	}

	e.announce(in.SessionID, out)
	return reply, nil
}

// seed loads prior turns for a session seen for the first time, replaying
// extraction and classification over the scammer turns.
func (e *Engine) seed(s *session.Session, history []session.Turn) {
	for _, h := range history {
		if strings.TrimSpace(h.Text) == "" {
			continue
		}
		t, err := s.Append(h.Sender, h.Text, h.Timestamp)
		if err != nil {
			continue
		}
		if t.Sender == session.SenderScammer {
			e.ingest(s, t)
		}
	}
	e.logger.Info("seeded session from history", "session_id", s.ID, "turns", s.TurnCount, "stage", s.Stage.String())
}

// ingest applies one scammer turn to the ledger, stage and scam flag.
func (e *Engine) ingest(s *session.Session, t session.Turn) stage.Assessment {
	sigs := session.TurnSignals(e.extractor, s.History, t.Index)
	s.Ledger.Merge(sigs)
	counts := make(map[extractor.Kind]int)
	for _, sig := range sigs {
		counts[sig.Kind]++
	}
	for k, n := range counts {
		e.metrics.Signals(string(k), n)
	}

	prior := s.ScammerTexts(t.Index)
	a := e.classifier.Assess(t.Text, sigs, prior)
	s.Advance(a.Stage, t.Index)
	if !s.ScamDetected && e.classifier.Detected(s.Stage, a, len(prior) == 0) {
		s.ScamDetected = true
	}
	s.AddTactics(a.Tactics)
	if a.Score > s.Confidence {
		s.Confidence = a.Score
	}
	s.ScamType = stage.TypeOf(s.Tactics, s.Ledger.Has, s.ScamDetected)
	return a
}

// conclude marks the session terminal and finalizes its report. The report is
// handed to the dispatcher only after the mutation commits.
func (e *Engine) conclude(s *session.Session, reason string, turn int, out *outcome) {
	if !s.Conclude(reason, turn) {
		return
	}
	data, err := report.Finalize(s)
	if err != nil {
		e.logger.Error("failed to finalize report", "session_id", s.ID, "error", err)
		return
	}
	s.Delivery = session.DeliveryPending
	out.concluded = true
	out.reason = reason
	out.turnCount = s.TurnCount
	out.scamDetected = s.ScamDetected
	out.report = data
}

func (e *Engine) announce(id string, out outcome) {
	for _, tr := range out.transitions {
		e.metrics.StageTransition(tr.To.String())
		e.publish(hermes.SubjectStage, hermes.StageEvent{SessionID: id, From: tr.From.String(), To: tr.To.String(), Turn: tr.Turn})
	}
	if !out.concluded {
		return
	}

	e.metrics.Concluded(out.reason)
	e.publish(hermes.SubjectConcluded, hermes.ConcludedEvent{
		SessionID:    id,
		Reason:       out.reason,
		TurnCount:    out.turnCount,
		ScamDetected: out.scamDetected,
	})

	if err := e.queue.Enqueue(id, out.report); err != nil {
		e.logger.Warn("report not queued", "session_id", id, "error", err)
		return
	}
	e.logger.Info("session concluded, report queued", "session_id", id, "reason", out.reason)
}

func (e *Engine) publish(subject string, ev any) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(subject, ev); err != nil {
		e.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

// Terminate concludes a session on external request. Terminating an already
// concluded session is a no-op.
func (e *Engine) Terminate(ctx context.Context, id, reason string) error {
	if reason == "" {
		reason = ReasonTerminated
	}
	var out outcome
	err := e.store.WithLock(ctx, id, func(s *session.Session) error {
		out = outcome{}
		if s.IsNew() {
			return session.ErrNotFound
		}
		seen := len(s.Transitions)
		e.conclude(s, reason, max(s.TurnCount-1, 0), &out)
		out.transitions = append(out.transitions, s.Transitions[seen:]...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("terminate session: %w", err)
	}
	e.announce(id, out)
	return nil
}

// Session returns a snapshot of the session.
func (e *Engine) Session(ctx context.Context, id string) (*session.Session, error) {
	return e.store.Get(ctx, id)
}

// Report returns the finalized report bytes of a concluded session.
func (e *Engine) Report(ctx context.Context, id string) ([]byte, error) {
	s, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Concluded || s.Report == nil {
		return nil, ErrNotConcluded
	}
	return s.Report, nil
}

// RecordOutcome stores the settled delivery status on the session.
func (e *Engine) RecordOutcome(ctx context.Context, o dispatch.Outcome) error {
	err := e.store.WithLock(ctx, o.SessionID, func(s *session.Session) error {
		if s.IsNew() {
			return session.ErrNotFound
		}
		s.Delivery = session.DeliveryStatus(o.Status)
		s.DeliveryAttempts = o.Attempts
		return nil
	})
	if err != nil {
		return fmt.Errorf("record delivery outcome: %w", err)
	}
	return nil
}

// Sweep drops settled sessions idle for longer than ttl, when the store
// supports it.
func (e *Engine) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	sw, ok := e.store.(session.Sweeper)
	if !ok {
		return 0, nil
	}
	n, err := sw.Sweep(ctx, e.now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return n, nil
}

func hasTactic(ts []stage.Tactic, want stage.Tactic) bool {
	for _, t := range ts {
		if t == want {
			return true
		}
	}
	return false
}
