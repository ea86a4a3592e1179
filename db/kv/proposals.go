package kv

import (
	"context"

	"github.com/pkg/errors"
	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/types"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// SaveProposal persists a newly created proposal.
func (s *Store) SaveProposal(ctx context.Context, proposal *types.Proposal) error {
	_, span := trace.StartSpan(ctx, "zkiotDB.SaveProposal")
	defer span.End()

	if proposal == nil || proposal.ID == "" {
		return errors.New("nil or unkeyed proposal")
	}
	enc, err := encode(proposal)
	if err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(proposalsBucket)
		if bkt.Get([]byte(proposal.ID)) != nil {
			return apierror.Newf(apierror.PersistConflict, apierror.CodeCASConflict, "proposal %s already exists", proposal.ID)
		}
		return bkt.Put([]byte(proposal.ID), enc)
	})
}

// Proposal retrieves a proposal by id.
func (s *Store) Proposal(ctx context.Context, proposalID string) (*types.Proposal, error) {
	_, span := trace.StartSpan(ctx, "zkiotDB.Proposal")
	defer span.End()

	proposal := &types.Proposal{}
	err := s.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(proposalsBucket).Get([]byte(proposalID))
		if enc == nil {
			return apierror.Newf(apierror.NotFound, apierror.CodeProposalNotFound, "no proposal with id %s", proposalID)
		}
		return decode(enc, proposal)
	})
	if err != nil {
		return nil, err
	}
	return proposal, nil
}

// Proposals returns every proposal.
func (s *Store) Proposals(ctx context.Context) ([]*types.Proposal, error) {
	_, span := trace.StartSpan(ctx, "zkiotDB.Proposals")
	defer span.End()

	var proposals []*types.Proposal
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(proposalsBucket).ForEach(func(_, enc []byte) error {
			proposal := &types.Proposal{}
			if err := decode(enc, proposal); err != nil {
				return err
			}
			proposals = append(proposals, proposal)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return proposals, nil
}

// UpdateProposalCAS applies mutate to the proposal only if its state
// still matches expected, inside a single transaction. A state mismatch
// returns a CAS conflict the FSM retries against a fresh read.
func (s *Store) UpdateProposalCAS(ctx context.Context, proposalID string, expected types.ProposalState, mutate func(*types.Proposal) error) (*types.Proposal, error) {
	_, span := trace.StartSpan(ctx, "zkiotDB.UpdateProposalCAS")
	defer span.End()

	proposal := &types.Proposal{}
	err := s.update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(proposalsBucket)
		enc := bkt.Get([]byte(proposalID))
		if enc == nil {
			return apierror.Newf(apierror.NotFound, apierror.CodeProposalNotFound, "no proposal with id %s", proposalID)
		}
		if err := decode(enc, proposal); err != nil {
			return err
		}
		if proposal.State != expected {
			return apierror.Newf(apierror.PersistConflict, apierror.CodeCASConflict,
				"proposal %s is %s, expected %s", proposalID, proposal.State, expected)
		}
		if err := mutate(proposal); err != nil {
			return err
		}
		updated, err := encode(proposal)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(proposalID), updated)
	})
	if err != nil {
		return nil, err
	}
	return proposal, nil
}
