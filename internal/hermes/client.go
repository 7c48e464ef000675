package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects carrying session lifecycle events and commands.
const (
	SubjectStage          = "lure.session.stage"
	SubjectConcluded      = "lure.session.concluded"
	SubjectDelivered      = "lure.report.delivered"
	SubjectDeliveryFailed = "lure.report.failed"
	SubjectTerminate      = "lure.session.terminate"
)

// StageEvent is published when a session advances to a later stage.
type StageEvent struct {
	SessionID string `json:"session_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Turn      int    `json:"turn"`
}

// ConcludedEvent is published once per session when it concludes.
type ConcludedEvent struct {
	SessionID    string `json:"session_id"`
	Reason       string `json:"reason"`
	TurnCount    int    `json:"turn_count"`
	ScamDetected bool   `json:"scam_detected"`
}

// DeliveryEvent reports the final outcome of a report callback.
type DeliveryEvent struct {
	SessionID string `json:"session_id"`
	Outcome   string `json:"outcome"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error,omitempty"`
}

// TerminateCommand asks for a session to be concluded from outside.
type TerminateCommand struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

// Publisher is the publishing half of Client.
type Publisher interface {
	Publish(subject string, data any) error
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("lure"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

// OnTerminate delivers decoded termination commands to handler. Malformed
// commands are logged and dropped.
func (c *Client) OnTerminate(handler func(TerminateCommand)) error {
	return c.Subscribe(SubjectTerminate, func(_ string, data []byte) {
		cmd, err := DecodeTerminate(data)
		if err != nil {
			c.logger.Warn("dropping terminate command", "error", err)
			return
		}
		handler(cmd)
	})
}

// DecodeTerminate parses a termination command payload.
func DecodeTerminate(data []byte) (TerminateCommand, error) {
	var cmd TerminateCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return TerminateCommand{}, fmt.Errorf("decode terminate command: %w", err)
	}
	if cmd.SessionID == "" {
		return TerminateCommand{}, fmt.Errorf("decode terminate command: missing session_id")
	}
	return cmd, nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
