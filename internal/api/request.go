package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/lure/internal/engine"
	"github.com/MikeSquared-Agency/lure/internal/session"
)

type honeypotRequest struct {
	SessionID           string         `json:"sessionId"`
	Message             *inboundTurn   `json:"message"`
	ConversationHistory []inboundTurn  `json:"conversationHistory"`
	History             []inboundTurn  `json:"history"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

type inboundTurn struct {
	Sender    string    `json:"sender"`
	Text      *string   `json:"text"`
	Timestamp timestamp `json:"timestamp"`
}

// timestamp accepts epoch millis as a number or numeric string, or an
// RFC 3339 string. Zero means absent.
type timestamp int64

func (t *timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = 0
		return nil
	}
	if b[0] != '"' {
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		*t = timestamp(int64(f))
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*t = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*t = timestamp(n)
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("timestamp %q: want epoch millis or RFC 3339", s)
	}
	*t = timestamp(parsed.UnixMilli())
	return nil
}

// incoming validates the request and maps it onto an engine turn.
func (r honeypotRequest) incoming() (engine.Incoming, error) {
	if strings.TrimSpace(r.SessionID) == "" {
		return engine.Incoming{}, errors.New("sessionId is required")
	}
	if r.Message == nil {
		return engine.Incoming{}, errors.New("message is required")
	}
	if r.Message.Text == nil {
		return engine.Incoming{}, errors.New("message.text is required")
	}
	if r.Message.Sender != "" && r.Message.Sender != string(session.SenderScammer) {
		return engine.Incoming{}, fmt.Errorf("message.sender must be %q", session.SenderScammer)
	}

	history := r.ConversationHistory
	if len(history) == 0 {
		history = r.History
	}
	turns := make([]session.Turn, 0, len(history))
	for i, h := range history {
		sender, ok := session.ParseSender(h.Sender)
		if !ok {
			return engine.Incoming{}, fmt.Errorf("conversationHistory[%d].sender %q is not recognised", i, h.Sender)
		}
		if h.Text == nil {
			return engine.Incoming{}, fmt.Errorf("conversationHistory[%d].text is required", i)
		}
		turns = append(turns, session.Turn{Sender: sender, Text: *h.Text, Timestamp: int64(h.Timestamp)})
	}

	return engine.Incoming{
		SessionID: r.SessionID,
		Text:      *r.Message.Text,
		Timestamp: int64(r.Message.Timestamp),
		History:   turns,
	}, nil
}
