package kv

import (
	"context"
	"testing"

	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/testing/assert"
	"github.com/zkiotchain/zkiot/testing/require"
	"github.com/zkiotchain/zkiot/types"
)

func TestSaveSigner_RoundTrip(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	signer := &types.Signer{
		SignerID:  "signer-1",
		PublicKey: []byte{0x04, 0x11, 0x22},
		AddedAt:   1700000000,
		Active:    true,
	}
	require.NoError(t, s.SaveSigner(ctx, signer))

	signers, err := s.Signers(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, len(signers))
	require.DeepEqual(t, signer, signers[0])

	err = s.SaveSigner(ctx, signer)
	require.ErrorContains(t, "already exists", err)
	assert.Equal(t, apierror.CodeSignerExists, apierror.CodeOf(err))
	assert.Equal(t, true, apierror.IsKind(err, apierror.ConflictState))

	require.ErrorContains(t, "unkeyed signer", s.SaveSigner(ctx, &types.Signer{}))
}

func TestDeactivateSigner_SoftRemoval(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	for _, id := range []string{"signer-1", "signer-2"} {
		require.NoError(t, s.SaveSigner(ctx, &types.Signer{SignerID: id, Active: true}))
	}
	require.NoError(t, s.DeactivateSigner(ctx, "signer-1"))

	all, err := s.Signers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, len(all))

	active, err := s.ActiveSigners(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, len(active))
	assert.Equal(t, "signer-2", active[0].SignerID)

	err = s.DeactivateSigner(ctx, "missing")
	assert.Equal(t, apierror.CodeUnknownSigner, apierror.CodeOf(err))
	assert.Equal(t, true, apierror.IsKind(err, apierror.NotFound))
}
