package kv

import (
	"context"

	"github.com/pkg/errors"
	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/types"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// SaveSigner persists a new multi-sig signer.
func (s *Store) SaveSigner(ctx context.Context, signer *types.Signer) error {
	_, span := trace.StartSpan(ctx, "zkiotDB.SaveSigner")
	defer span.End()

	if signer == nil || signer.SignerID == "" {
		return errors.New("nil or unkeyed signer")
	}
	enc, err := encode(signer)
	if err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(signersBucket)
		if bkt.Get([]byte(signer.SignerID)) != nil {
			return apierror.Newf(apierror.ConflictState, apierror.CodeSignerExists, "signer %s already exists", signer.SignerID)
		}
		return bkt.Put([]byte(signer.SignerID), enc)
	})
}

// DeactivateSigner soft-removes a signer, preserving its audit trail.
func (s *Store) DeactivateSigner(ctx context.Context, signerID string) error {
	_, span := trace.StartSpan(ctx, "zkiotDB.DeactivateSigner")
	defer span.End()

	return s.update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(signersBucket)
		enc := bkt.Get([]byte(signerID))
		if enc == nil {
			return apierror.Newf(apierror.NotFound, apierror.CodeUnknownSigner, "no signer with id %s", signerID)
		}
		signer := &types.Signer{}
		if err := decode(enc, signer); err != nil {
			return err
		}
		signer.Active = false
		updated, err := encode(signer)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(signerID), updated)
	})
}

// Signers returns every signer, active or not.
func (s *Store) Signers(ctx context.Context) ([]*types.Signer, error) {
	_, span := trace.StartSpan(ctx, "zkiotDB.Signers")
	defer span.End()

	return s.listSigners(false)
}

// ActiveSigners returns only signers still eligible to vote.
func (s *Store) ActiveSigners(ctx context.Context) ([]*types.Signer, error) {
	_, span := trace.StartSpan(ctx, "zkiotDB.ActiveSigners")
	defer span.End()

	return s.listSigners(true)
}

func (s *Store) listSigners(activeOnly bool) ([]*types.Signer, error) {
	var signers []*types.Signer
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(signersBucket).ForEach(func(_, enc []byte) error {
			signer := &types.Signer{}
			if err := decode(enc, signer); err != nil {
				return err
			}
			if activeOnly && !signer.Active {
				return nil
			}
			signers = append(signers, signer)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return signers, nil
}
