//go:build integration

package hermes

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

func skipWithoutNATS(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	return url
}

func TestIntegration_TerminateRoundTrip(t *testing.T) {
	natsURL := skipWithoutNATS(t)
	ctx := context.Background()
	logger := slog.Default()

	client, err := NewClient(ctx, natsURL, os.Getenv("NATS_TOKEN"), logger)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	received := make(chan TerminateCommand, 1)
	if err := client.OnTerminate(func(cmd TerminateCommand) { received <- cmd }); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Give subscription time to propagate
	time.Sleep(100 * time.Millisecond)

	err = client.Publish(SubjectTerminate, TerminateCommand{SessionID: "integration-1", Reason: "test"})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case cmd := <-received:
		if cmd.SessionID != "integration-1" || cmd.Reason != "test" {
			t.Errorf("unexpected command %+v", cmd)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}
