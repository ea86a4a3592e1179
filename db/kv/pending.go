package kv

import (
	"context"

	"github.com/pkg/errors"
	"github.com/zkiotchain/zkiot/encoding/bytesutil"
	"github.com/zkiotchain/zkiot/types"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// AppendPending stores a telemetry record, assigning the next insertion
// sequence. The sequence establishes submission order for batch assembly.
func (s *Store) AppendPending(ctx context.Context, datum *types.PendingDatum) (*types.PendingDatum, error) {
	_, span := trace.StartSpan(ctx, "zkiotDB.AppendPending")
	defer span.End()

	if datum == nil || datum.DeviceID == "" {
		return nil, errors.New("nil or unkeyed pending datum")
	}
	stored := *datum
	err := s.update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(pendingDataBucket)
		stored.Seq = 1
		if last, _ := bkt.Cursor().Last(); last != nil {
			stored.Seq = bytesutil.BytesToUint64BigEndian(last) + 1
		}
		enc, err := encode(&stored)
		if err != nil {
			return err
		}
		return bkt.Put(bytesutil.Uint64ToBytesBigEndian(stored.Seq), enc)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// PendingOrdered returns every record not yet attached to a batch, in
// insertion order.
func (s *Store) PendingOrdered(ctx context.Context) ([]*types.PendingDatum, error) {
	_, span := trace.StartSpan(ctx, "zkiotDB.PendingOrdered")
	defer span.End()

	var pending []*types.PendingDatum
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingDataBucket).ForEach(func(_, enc []byte) error {
			datum := &types.PendingDatum{}
			if err := decode(enc, datum); err != nil {
				return err
			}
			if datum.BatchID == nil {
				pending = append(pending, datum)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// PendingCount returns the number of unattached records.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	_, span := trace.StartSpan(ctx, "zkiotDB.PendingCount")
	defer span.End()

	count := 0
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingDataBucket).ForEach(func(_, enc []byte) error {
			datum := &types.PendingDatum{}
			if err := decode(enc, datum); err != nil {
				return err
			}
			if datum.BatchID == nil {
				count++
			}
			return nil
		})
	})
	return count, err
}

func pendingDatumBySeq(tx *bolt.Tx, seq uint64) (*types.PendingDatum, error) {
	enc := tx.Bucket(pendingDataBucket).Get(bytesutil.Uint64ToBytesBigEndian(seq))
	if enc == nil {
		return nil, errors.Errorf("no pending datum with sequence %d", seq)
	}
	datum := &types.PendingDatum{}
	if err := decode(enc, datum); err != nil {
		return nil, err
	}
	return datum, nil
}
