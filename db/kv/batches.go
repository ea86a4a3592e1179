package kv

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/encoding/bytesutil"
	"github.com/zkiotchain/zkiot/types"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// CreateBatchWithLeaves allocates the next dense batch id, attaches every
// referenced pending datum, and commits the batch atomically. Inside the
// transaction the record passes through the preparing state, has its
// leaves attached, then flips to ready; a crash leaves either nothing or
// an authoritative batch.
func (s *Store) CreateBatchWithLeaves(ctx context.Context, batch *types.MerkleBatch, datumSeqs []uint64) (*types.MerkleBatch, error) {
	_, span := trace.StartSpan(ctx, "zkiotDB.CreateBatchWithLeaves")
	defer span.End()

	if batch == nil {
		return nil, errors.New("nil batch")
	}
	if len(datumSeqs) == 0 {
		return nil, apierror.New(apierror.Validation, apierror.CodeNoPending, "batch requires at least one leaf")
	}
	if batch.LeafCount != uint64(len(datumSeqs)) {
		return nil, errors.Errorf("leaf count %d does not match %d attached records", batch.LeafCount, len(datumSeqs))
	}

	stored := batch.Copy()
	if stored.Anchors == nil {
		stored.Anchors = make(map[string]*types.Anchor)
	}
	err := s.update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(chainMetadataBucket)
		var latest uint64
		if v := meta.Get(latestBatchIDKey); v != nil {
			latest = bytesutil.BytesToUint64BigEndian(v)
		}
		stored.BatchID = latest + 1
		batchKey := bytesutil.Uint64ToBytesBigEndian(stored.BatchID)

		stored.State = types.BatchPreparing
		preparing, err := encode(stored)
		if err != nil {
			return err
		}
		batches := tx.Bucket(batchesBucket)
		if err := batches.Put(batchKey, preparing); err != nil {
			return err
		}

		pendingBkt := tx.Bucket(pendingDataBucket)
		leaves := tx.Bucket(batchLeavesBucket)
		for i, seq := range datumSeqs {
			datum, err := pendingDatumBySeq(tx, seq)
			if err != nil {
				return err
			}
			if datum.BatchID != nil {
				return apierror.Newf(apierror.PersistConflict, apierror.CodeCASConflict,
					"datum %d already attached to batch %d", seq, *datum.BatchID)
			}
			datum.BatchID = &stored.BatchID
			enc, err := encode(datum)
			if err != nil {
				return err
			}
			if err := pendingBkt.Put(bytesutil.Uint64ToBytesBigEndian(seq), enc); err != nil {
				return err
			}
			leafKey := append(batchKey, bytesutil.Uint64ToBytesBigEndian(uint64(i))...)
			if err := leaves.Put(leafKey, bytesutil.Uint64ToBytesBigEndian(seq)); err != nil {
				return err
			}
		}

		stored.State = types.BatchReady
		ready, err := encode(stored)
		if err != nil {
			return err
		}
		if err := batches.Put(batchKey, ready); err != nil {
			return err
		}
		if err := tx.Bucket(batchRootIndexBucket).Put(stored.Root[:], batchKey); err != nil {
			return err
		}
		return meta.Put(latestBatchIDKey, batchKey)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Batch retrieves a batch by id.
func (s *Store) Batch(ctx context.Context, batchID uint64) (*types.MerkleBatch, error) {
	_, span := trace.StartSpan(ctx, "zkiotDB.Batch")
	defer span.End()

	batch := &types.MerkleBatch{}
	err := s.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(batchesBucket).Get(bytesutil.Uint64ToBytesBigEndian(batchID))
		if enc == nil {
			return apierror.Newf(apierror.NotFound, apierror.CodeBatchNotFound, "no batch with id %d", batchID)
		}
		return decode(enc, batch)
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// BatchByRoot retrieves a batch by its Merkle root.
func (s *Store) BatchByRoot(ctx context.Context, root [32]byte) (*types.MerkleBatch, error) {
	_, span := trace.StartSpan(ctx, "zkiotDB.BatchByRoot")
	defer span.End()

	batch := &types.MerkleBatch{}
	err := s.view(func(tx *bolt.Tx) error {
		batchKey := tx.Bucket(batchRootIndexBucket).Get(root[:])
		if batchKey == nil {
			return apierror.Newf(apierror.NotFound, apierror.CodeBatchNotFound, "no batch with root %#x", root)
		}
		enc := tx.Bucket(batchesBucket).Get(batchKey)
		if enc == nil {
			return apierror.Newf(apierror.NotFound, apierror.CodeBatchNotFound, "dangling root index entry %#x", root)
		}
		return decode(enc, batch)
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// Batches returns every batch in id order.
func (s *Store) Batches(ctx context.Context) ([]*types.MerkleBatch, error) {
	_, span := trace.StartSpan(ctx, "zkiotDB.Batches")
	defer span.End()

	var batches []*types.MerkleBatch
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(batchesBucket).ForEach(func(_, enc []byte) error {
			batch := &types.MerkleBatch{}
			if err := decode(enc, batch); err != nil {
				return err
			}
			batches = append(batches, batch)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return batches, nil
}

// LatestBatchID returns the most recently allocated batch id, or zero
// when no batch exists.
func (s *Store) LatestBatchID(ctx context.Context) (uint64, error) {
	_, span := trace.StartSpan(ctx, "zkiotDB.LatestBatchID")
	defer span.End()

	var latest uint64
	err := s.view(func(tx *bolt.Tx) error {
		if v := tx.Bucket(chainMetadataBucket).Get(latestBatchIDKey); v != nil {
			latest = bytesutil.BytesToUint64BigEndian(v)
		}
		return nil
	})
	return latest, err
}

// BatchLeaves returns the batch's records in leaf order.
func (s *Store) BatchLeaves(ctx context.Context, batchID uint64) ([]*types.PendingDatum, error) {
	_, span := trace.StartSpan(ctx, "zkiotDB.BatchLeaves")
	defer span.End()

	var data []*types.PendingDatum
	err := s.view(func(tx *bolt.Tx) error {
		if tx.Bucket(batchesBucket).Get(bytesutil.Uint64ToBytesBigEndian(batchID)) == nil {
			return apierror.Newf(apierror.NotFound, apierror.CodeBatchNotFound, "no batch with id %d", batchID)
		}
		prefix := bytesutil.Uint64ToBytesBigEndian(batchID)
		c := tx.Bucket(batchLeavesBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			datum, err := pendingDatumBySeq(tx, bytesutil.BytesToUint64BigEndian(v))
			if err != nil {
				return err
			}
			data = append(data, datum)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// UpdateAnchor records one chain's anchor outcome on the batch.
func (s *Store) UpdateAnchor(ctx context.Context, batchID uint64, chain string, anchor *types.Anchor) error {
	_, span := trace.StartSpan(ctx, "zkiotDB.UpdateAnchor")
	defer span.End()

	if chain == "" || anchor == nil {
		return errors.New("chain name and anchor record required")
	}
	return s.update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(batchesBucket)
		key := bytesutil.Uint64ToBytesBigEndian(batchID)
		enc := bkt.Get(key)
		if enc == nil {
			return apierror.Newf(apierror.NotFound, apierror.CodeBatchNotFound, "no batch with id %d", batchID)
		}
		batch := &types.MerkleBatch{}
		if err := decode(enc, batch); err != nil {
			return err
		}
		if batch.Anchors == nil {
			batch.Anchors = make(map[string]*types.Anchor)
		}
		a := *anchor
		batch.Anchors[chain] = &a
		updated, err := encode(batch)
		if err != nil {
			return err
		}
		return bkt.Put(key, updated)
	})
}

// PruneInterruptedBatches removes batches stuck in the preparing state,
// detaches their records, and rolls the id watermark back so density
// holds. Returns the number of batches pruned.
func (s *Store) PruneInterruptedBatches(ctx context.Context) (int, error) {
	_, span := trace.StartSpan(ctx, "zkiotDB.PruneInterruptedBatches")
	defer span.End()

	pruned := 0
	err := s.update(func(tx *bolt.Tx) error {
		batches := tx.Bucket(batchesBucket)
		leaves := tx.Bucket(batchLeavesBucket)
		pendingBkt := tx.Bucket(pendingDataBucket)
		rootIndex := tx.Bucket(batchRootIndexBucket)

		var latestReady uint64
		var stale [][]byte
		if err := batches.ForEach(func(k, enc []byte) error {
			batch := &types.MerkleBatch{}
			if err := decode(enc, batch); err != nil {
				return err
			}
			if batch.State == types.BatchReady {
				if batch.BatchID > latestReady {
					latestReady = batch.BatchID
				}
				return nil
			}
			stale = append(stale, append([]byte(nil), k...))
			if err := rootIndex.Delete(batch.Root[:]); err != nil {
				return err
			}
			return nil
		}); err != nil {
			return err
		}

		for _, key := range stale {
			id := bytesutil.BytesToUint64BigEndian(key)
			c := leaves.Cursor()
			for k, v := c.Seek(key); k != nil && bytes.HasPrefix(k, key); k, v = c.Next() {
				datum, err := pendingDatumBySeq(tx, bytesutil.BytesToUint64BigEndian(v))
				if err != nil {
					return err
				}
				if datum.BatchID != nil && *datum.BatchID == id {
					datum.BatchID = nil
					enc, err := encode(datum)
					if err != nil {
						return err
					}
					if err := pendingBkt.Put(v, enc); err != nil {
						return err
					}
				}
				if err := c.Delete(); err != nil {
					return err
				}
			}
			if err := batches.Delete(key); err != nil {
				return err
			}
			pruned++
		}

		if pruned > 0 {
			return tx.Bucket(chainMetadataBucket).Put(latestBatchIDKey, bytesutil.Uint64ToBytesBigEndian(latestReady))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		log.WithField("count", pruned).Warn("Discarded interrupted batch records")
	}
	return pruned, nil
}
