package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/lure/internal/metrics"
	"github.com/MikeSquared-Agency/lure/internal/session"
	"github.com/MikeSquared-Agency/lure/internal/stage"
)

var (
	ErrGenerationTimeout = errors.New("generation timed out")
	ErrGeneration        = errors.New("generation failed")
)

// Generator produces reply text for a prompt. Its output is untrusted.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Source says where a reply came from.
type Source string

const (
	SourceLLM      Source = "llm"
	SourceFallback Source = "fallback"
)

type Reply struct {
	Text   string
	Goal   Goal
	Source Source
}

// Incoming is the scammer turn being answered.
type Incoming struct {
	Turn    session.Turn
	AsksOTP bool
}

type Config struct {
	Timeout       time.Duration
	HistoryWindow int
}

// Agent is the reply policy: goal selection, prompting, filtering and the
// canned fallback.
type Agent struct {
	gen     Generator
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New returns an Agent. A nil gen makes every reply a canned one.
func New(gen Generator, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Agent {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 4 * time.Second
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 6
	}
	return &Agent{gen: gen, cfg: cfg, logger: logger, metrics: m}
}

// Respond returns the reply to in. It never fails: generation errors,
// timeouts and filtered output all fall back to a canned question.
func (a *Agent) Respond(ctx context.Context, s *session.Session, in Incoming) Reply {
	goal := SelectGoal(GoalState{
		Stage:   s.Stage,
		Ledger:  s.Ledger,
		AsksOTP: in.AsksOTP,
		QRSeen:  s.HasTactic(stage.TacticQRCollect),
		Asked:   func(g Goal) int { return s.GoalCount(string(g)) },
	})

	reply := Reply{Goal: goal, Source: SourceFallback, Text: Fallback(goal, s.TurnCount)}
	if a.gen == nil {
		a.metrics.Reply(string(reply.Source), string(goal))
		return reply
	}

	prompt := BuildPrompt(s.Stage, s.Recent(a.cfg.HistoryWindow), goal)
	start := time.Now()
	raw, err := a.generate(ctx, prompt)
	a.metrics.Generation(time.Since(start))
	if err == nil {
		var text string
		if text, err = Sanitize(raw); err == nil {
			reply.Text = text
			reply.Source = SourceLLM
		}
	}
	if err != nil {
		a.logger.Warn("using fallback reply",
			"session_id", s.ID,
			"goal", goal,
			"stage", s.Stage.String(),
			"error", err,
		)
	}

	a.metrics.Reply(string(reply.Source), string(goal))
	return reply
}

// generate calls the generator bounded by the configured timeout. The call
// runs in its own goroutine so a generator that ignores its context cannot
// hold the request past the deadline.
func (a *Agent) generate(ctx context.Context, p Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		text, err := a.gen.Generate(ctx, p)
		ch <- result{text, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return "", ErrGenerationTimeout
			}
			return "", fmt.Errorf("%w: %v", ErrGeneration, r.err)
		}
		return r.text, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrGenerationTimeout
		}
		return "", fmt.Errorf("%w: %v", ErrGeneration, ctx.Err())
	}
}
