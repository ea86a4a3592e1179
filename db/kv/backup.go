package kv

import (
	"context"
	"fmt"
	"path"

	"github.com/zkiotchain/zkiot/io/file"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

const backupsDirectoryName = "backups"

// Backup the database to the datadir backup directory, or to outputDir when
// one is provided. Example for a store whose latest batch is 345:
// $DATADIR/backups/zkiot_store_at_batch_0000345.backup
func (s *Store) Backup(ctx context.Context, outputDir string, permissionOverride bool) error {
	ctx, span := trace.StartSpan(ctx, "zkiotDB.Backup")
	defer span.End()

	var backupsDir string
	var err error
	if outputDir != "" {
		backupsDir, err = file.ExpandPath(outputDir)
		if err != nil {
			return err
		}
	} else {
		backupsDir = path.Join(s.databasePath, backupsDirectoryName)
	}
	latest, err := s.LatestBatchID(ctx)
	if err != nil {
		return err
	}
	if err := file.HandleBackupDir(backupsDir, permissionOverride); err != nil {
		return err
	}
	backupPath := path.Join(backupsDir, fmt.Sprintf("zkiot_store_at_batch_%07d.backup", latest))
	log.WithField("backup", backupPath).Info("Writing backup database")

	return s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(backupPath, file.ReadWritePermissions)
	})
}
