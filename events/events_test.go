package events_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/zkiotchain/zkiot/events"
	"github.com/zkiotchain/zkiot/testing/assert"
	"github.com/zkiotchain/zkiot/testing/require"
)

func TestTopicNames_RoundTrip(t *testing.T) {
	for _, topic := range events.Topics() {
		name := topic.String()
		require.NotEqual(t, "UNKNOWN", name, "topic %d has no wire name", topic)
		parsed, err := events.ParseTopic(name)
		require.NoError(t, err)
		assert.Equal(t, topic, parsed)
	}
}

func TestParseTopic_Unknown(t *testing.T) {
	_, err := events.ParseTopic("NOT_A_TOPIC")
	assert.ErrorContains(t, "unknown event topic", err)
}

func TestEvent_WireShape(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ev := &events.Event{
		ID:   7,
		Type: events.BatchCreated,
		Data: &events.BatchCreatedData{BatchID: 3, MerkleRoot: "0xabc1", LeafCount: 12},
		At:   at,
	}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded struct {
		ID      uint64 `json:"event_id"`
		Kind    string `json:"kind"`
		Payload struct {
			BatchID    uint64 `json:"batch_id"`
			MerkleRoot string `json:"merkle_root"`
			LeafCount  int    `json:"leaf_count"`
		} `json:"payload"`
		At time.Time `json:"at"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, uint64(7), decoded.ID)
	assert.Equal(t, "BATCH_CREATED", decoded.Kind)
	assert.Equal(t, uint64(3), decoded.Payload.BatchID)
	assert.Equal(t, "0xabc1", decoded.Payload.MerkleRoot)
	assert.Equal(t, 12, decoded.Payload.LeafCount)
	assert.Equal(t, true, decoded.At.Equal(at))
}
