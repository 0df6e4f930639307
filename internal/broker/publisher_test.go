package broker

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/battleship-go/internal/model"
	"github.com/mcoot/battleship-go/internal/testutil"
)

func sampleRecord() model.MatchRecord {
	return model.MatchRecord{
		ID:         "11111111-2222-4333-8444-555555555555",
		Player1:    "alice",
		Player2:    "bob",
		Winner:     "bob",
		Loser:      "alice",
		Duration:   95*time.Second + 400*time.Millisecond,
		FinishedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Forfeit:    true,
	}
}

func TestNewMatchFinished(t *testing.T) {
	data, err := json.Marshal(NewMatchFinished(sampleRecord()))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"id": "11111111-2222-4333-8444-555555555555",
		"player1": "alice",
		"player2": "bob",
		"winner": "bob",
		"loser": "alice",
		"duration_seconds": 95,
		"finished_at": "2024-01-01T12:00:00Z",
		"forfeit": true
	}`, string(data))
}

// TestPublishMatch runs against a real JetStream-enabled server when
// NATS_URL is set, e.g. nats-server -js.
func TestPublishMatch(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}

	cfg := DefaultConfig()
	cfg.URL = url
	cfg.StreamName = "BATTLESHIP_MATCHES_TEST"
	cfg.Subject = "battleship.test.matches.finished"

	pub, err := New(cfg, testutil.NopLogger())
	require.NoError(t, err)
	defer func() { _ = pub.Close() }()

	sub, err := pub.js.SubscribeSync(cfg.Subject, nats.DeliverNew())
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	rec := sampleRecord()
	rec.ID = model.MatchID("test-" + time.Now().UTC().Format(time.RFC3339Nano))
	require.NoError(t, pub.PublishMatch(context.Background(), rec))

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)

	var got MatchFinished
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, string(rec.ID), got.ID)
	assert.Equal(t, "bob", got.Winner)
}
