package kv

import (
	"context"
	"io/ioutil"
	"path"
	"testing"
	"time"

	"github.com/zkiotchain/zkiot/testing/require"
	"github.com/zkiotchain/zkiot/types"
	bolt "go.etcd.io/bbolt"
)

func TestStore_Backup(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveDevice(ctx, &types.Device{
		DeviceID:         "sensor-1",
		PublicCommitment: [32]byte{1},
		RegisteredAt:     1700000000,
		Active:           true,
	}))

	backupOutputDir := t.TempDir()
	require.NoError(t, db.Backup(ctx, backupOutputDir, false))

	files, err := ioutil.ReadDir(backupOutputDir)
	require.NoError(t, err)
	require.Equal(t, 1, len(files))
	require.Equal(t, "zkiot_store_at_batch_0000000.backup", files[0].Name())

	backedDB, err := bolt.Open(
		path.Join(backupOutputDir, files[0].Name()),
		0600,
		&bolt.Options{Timeout: 1 * time.Second},
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, backedDB.Close())
	})
	require.NoError(t, backedDB.View(func(tx *bolt.Tx) error {
		if tx.Bucket(devicesBucket) == nil {
			return bolt.ErrBucketNotFound
		}
		return nil
	}))
}
