package kv

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/testing/assert"
	"github.com/zkiotchain/zkiot/testing/require"
	"github.com/zkiotchain/zkiot/types"
)

func pendingProposal(id string) *types.Proposal {
	return &types.Proposal{
		ID:                id,
		Kind:              types.ProposalRegisterDevice,
		Payload:           []byte(`{"device_id":"sensor-a"}`),
		Proposer:          "signer-1",
		RequiredApprovals: 2,
		State:             types.ProposalPending,
		CreatedAt:         1700000000,
		ExpiresAt:         1700604800,
	}
}

func TestSaveProposal_RoundTrip(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	proposal := pendingProposal("prop-1")
	require.NoError(t, s.SaveProposal(ctx, proposal))

	got, err := s.Proposal(ctx, "prop-1")
	require.NoError(t, err)
	require.DeepEqual(t, proposal, got)

	err = s.SaveProposal(ctx, pendingProposal("prop-1"))
	require.ErrorContains(t, "already exists", err)
	assert.Equal(t, apierror.CodeCASConflict, apierror.CodeOf(err))
	assert.Equal(t, true, apierror.IsKind(err, apierror.PersistConflict))

	require.ErrorContains(t, "unkeyed proposal", s.SaveProposal(ctx, &types.Proposal{}))
}

func TestProposal_NotFound(t *testing.T) {
	s := setupDB(t)

	_, err := s.Proposal(context.Background(), "missing")
	assert.Equal(t, apierror.CodeProposalNotFound, apierror.CodeOf(err))
	assert.Equal(t, true, apierror.IsKind(err, apierror.NotFound))
}

func TestProposals_ListsAll(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	require.NoError(t, s.SaveProposal(ctx, pendingProposal("prop-1")))
	require.NoError(t, s.SaveProposal(ctx, pendingProposal("prop-2")))

	proposals, err := s.Proposals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, len(proposals))
}

func TestUpdateProposalCAS_AppliesWhenStateMatches(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()
	require.NoError(t, s.SaveProposal(ctx, pendingProposal("prop-1")))

	updated, err := s.UpdateProposalCAS(ctx, "prop-1", types.ProposalPending, func(p *types.Proposal) error {
		p.Approvals = append(p.Approvals, "signer-2")
		p.State = types.ProposalApproved
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.ProposalApproved, updated.State)
	require.Equal(t, 1, len(updated.Approvals))

	got, err := s.Proposal(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, types.ProposalApproved, got.State)
}

func TestUpdateProposalCAS_StateMismatch(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()
	require.NoError(t, s.SaveProposal(ctx, pendingProposal("prop-1")))

	_, err := s.UpdateProposalCAS(ctx, "prop-1", types.ProposalApproved, func(p *types.Proposal) error {
		p.State = types.ProposalExecuted
		return nil
	})
	require.ErrorContains(t, "is PENDING, expected APPROVED", err)
	assert.Equal(t, apierror.CodeCASConflict, apierror.CodeOf(err))
	assert.Equal(t, true, apierror.IsKind(err, apierror.PersistConflict))

	got, err := s.Proposal(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, types.ProposalPending, got.State)
}

func TestUpdateProposalCAS_MutateErrorRollsBack(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()
	require.NoError(t, s.SaveProposal(ctx, pendingProposal("prop-1")))

	_, err := s.UpdateProposalCAS(ctx, "prop-1", types.ProposalPending, func(p *types.Proposal) error {
		p.State = types.ProposalApproved
		return errors.New("handler refused")
	})
	require.ErrorContains(t, "handler refused", err)

	got, err := s.Proposal(ctx, "prop-1")
	require.NoError(t, err)
	assert.Equal(t, types.ProposalPending, got.State)
	assert.Equal(t, 0, len(got.Approvals))
}

func TestUpdateProposalCAS_NotFound(t *testing.T) {
	s := setupDB(t)

	_, err := s.UpdateProposalCAS(context.Background(), "missing", types.ProposalPending, func(p *types.Proposal) error {
		return nil
	})
	assert.Equal(t, apierror.CodeProposalNotFound, apierror.CodeOf(err))
}
