// Package kv implements the coordinator's persistence contract on top of
// BoltDB as the underlying key-value store.
package kv

import (
	"context"
	"os"
	"path"
	"time"

	"github.com/dustin/go-humanize"
	prombolt "github.com/prysmaticlabs/prombbolt"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var log = logrus.WithField("prefix", "db")

// DatabaseFileName is the name of the coordinator's database file.
const DatabaseFileName = "zkiot.db"

// DatabaseDirName is the directory under the datadir holding the store.
const DatabaseDirName = "zkiotdata"

const boltAllocSize = 8 * 1024 * 1024

// Store defines an implementation of the persistence interface using
// BoltDB as the underlying kv-store.
type Store struct {
	db           *bolt.DB
	databasePath string
}

// NewKVStore initializes a new bolt kv-store at the directory path
// specified, creates the buckets based on the schema, and stores an open
// connection db object as a property of the Store struct.
func NewKVStore(_ context.Context, dirPath string) (*Store, error) {
	if err := os.MkdirAll(dirPath, 0700); err != nil {
		return nil, err
	}
	datafile := path.Join(dirPath, DatabaseFileName)
	boltDB, err := bolt.Open(datafile, 0600, &bolt.Options{
		Timeout:         1 * time.Second,
		InitialMmapSize: 10e6,
	})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, errors.New("cannot obtain database lock, database may be in use by another process")
		}
		return nil, err
	}
	boltDB.AllocSize = boltAllocSize

	kv := &Store{
		db:           boltDB,
		databasePath: dirPath,
	}
	if err := kv.db.Update(func(tx *bolt.Tx) error {
		return createBuckets(
			tx,
			devicesBucket,
			pendingDataBucket,
			batchesBucket,
			batchLeavesBucket,
			batchRootIndexBucket,
			proposalsBucket,
			signersBucket,
			chainMetadataBucket,
		)
	}); err != nil {
		return nil, err
	}
	if err := prometheus.Register(createBoltCollector(kv.db)); err != nil {
		log.WithError(err).Debug("Could not register bolt metrics collector")
	}

	if info, err := os.Stat(datafile); err == nil {
		log.WithFields(logrus.Fields{
			"path": datafile,
			"size": humanize.Bytes(uint64(info.Size())),
		}).Info("Opened persistent store")
	}
	return kv, nil
}

// ClearDB removes the previously stored database in the data directory.
func (s *Store) ClearDB() error {
	if _, err := os.Stat(s.databasePath); os.IsNotExist(err) {
		return nil
	}
	prometheus.Unregister(createBoltCollector(s.db))
	return os.Remove(path.Join(s.databasePath, DatabaseFileName))
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	prometheus.Unregister(createBoltCollector(s.db))
	return s.db.Close()
}

// DatabasePath at which this database writes files.
func (s *Store) DatabasePath() string {
	return s.databasePath
}

func (s *Store) view(fn func(tx *bolt.Tx) error) error {
	return s.db.View(fn)
}

func (s *Store) update(fn func(tx *bolt.Tx) error) error {
	return s.db.Update(fn)
}

func createBuckets(tx *bolt.Tx, buckets ...[]byte) error {
	for _, bucket := range buckets {
		if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
			return err
		}
	}
	return nil
}

// createBoltCollector returns a prometheus collector specifically
// configured for boltdb.
func createBoltCollector(db *bolt.DB) prometheus.Collector {
	return prombolt.New("boltDB", db)
}
