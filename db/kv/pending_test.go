package kv

import (
	"context"
	"testing"

	"github.com/zkiotchain/zkiot/encoding/bytesutil"
	"github.com/zkiotchain/zkiot/testing/assert"
	"github.com/zkiotchain/zkiot/testing/require"
	"github.com/zkiotchain/zkiot/types"
	bolt "go.etcd.io/bbolt"
)

func TestAppendPending_AssignsDenseSequence(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	for i, deviceID := range []string{"sensor-a", "sensor-b", "sensor-a"} {
		stored, err := s.AppendPending(ctx, &types.PendingDatum{
			DeviceID:    deviceID,
			Payload:     []byte(`{"reading":21.5}`),
			SubmittedAt: uint64(1700000000 + i),
			LeafHash:    [32]byte{byte(i + 1)},
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), stored.Seq)
	}

	count, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestPendingOrdered_SkipsAttached(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	var first *types.PendingDatum
	for i := 0; i < 3; i++ {
		stored, err := s.AppendPending(ctx, &types.PendingDatum{
			DeviceID:    "sensor-a",
			Payload:     []byte(`{}`),
			SubmittedAt: uint64(1700000000 + i),
			LeafHash:    [32]byte{byte(i + 1)},
		})
		require.NoError(t, err)
		if first == nil {
			first = stored
		}
	}

	// Attach the first datum to a batch directly so the filter has
	// something to skip.
	batchID := uint64(9)
	first.BatchID = &batchID
	enc, err := encode(first)
	require.NoError(t, err)
	require.NoError(t, s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingDataBucket).Put(bytesutil.Uint64ToBytesBigEndian(first.Seq), enc)
	}))

	pending, err := s.PendingOrdered(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, len(pending))
	assert.Equal(t, uint64(2), pending[0].Seq)
	assert.Equal(t, uint64(3), pending[1].Seq)

	count, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAppendPending_RejectsUnkeyed(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	_, err := s.AppendPending(ctx, nil)
	require.ErrorContains(t, "unkeyed pending datum", err)

	_, err = s.AppendPending(ctx, &types.PendingDatum{Payload: []byte(`{}`)})
	require.ErrorContains(t, "unkeyed pending datum", err)
}
