// Package iface defines the database contract the coordinator's
// subsystems program against, so the bolt implementation stays swappable
// in tests.
package iface

import (
	"context"
	"io"

	"github.com/zkiotchain/zkiot/types"
)

// ReadOnlyDatabase defines read access to stored entities.
type ReadOnlyDatabase interface {
	// Device related methods. Commitment also reports whether the device
	// is active, matching what proof verification needs in one read.
	Device(ctx context.Context, deviceID string) (*types.Device, error)
	Devices(ctx context.Context) ([]*types.Device, error)
	HasDevice(ctx context.Context, deviceID string) (bool, error)
	Commitment(ctx context.Context, deviceID string) ([32]byte, bool, error)
	// Pending data related methods.
	PendingOrdered(ctx context.Context) ([]*types.PendingDatum, error)
	PendingCount(ctx context.Context) (int, error)
	// Batch related methods.
	Batch(ctx context.Context, batchID uint64) (*types.MerkleBatch, error)
	BatchByRoot(ctx context.Context, root [32]byte) (*types.MerkleBatch, error)
	Batches(ctx context.Context) ([]*types.MerkleBatch, error)
	LatestBatchID(ctx context.Context) (uint64, error)
	BatchLeaves(ctx context.Context, batchID uint64) ([]*types.PendingDatum, error)
	// Proposal related methods.
	Proposal(ctx context.Context, proposalID string) (*types.Proposal, error)
	Proposals(ctx context.Context) ([]*types.Proposal, error)
	// Signer related methods.
	Signers(ctx context.Context) ([]*types.Signer, error)
	ActiveSigners(ctx context.Context) ([]*types.Signer, error)
}

// Database defines the full persistence contract. Every write that backs
// an FSM or batch transition runs compare-and-set inside a single store
// transaction.
type Database interface {
	ReadOnlyDatabase
	io.Closer
	// Device related methods.
	SaveDevice(ctx context.Context, device *types.Device) error
	SetDeviceActive(ctx context.Context, deviceID string, active bool) error
	RecordAuthentication(ctx context.Context, deviceID string, at uint64) error
	BumpDeviceSubmissions(ctx context.Context, deviceID string) (uint64, error)
	// Pending data related methods. AppendPending assigns the insertion
	// sequence and returns the stored record.
	AppendPending(ctx context.Context, datum *types.PendingDatum) (*types.PendingDatum, error)
	// Batch related methods. CreateBatchWithLeaves allocates the next
	// dense batch ID, attaches every datum, and commits atomically.
	CreateBatchWithLeaves(ctx context.Context, batch *types.MerkleBatch, datumSeqs []uint64) (*types.MerkleBatch, error)
	UpdateAnchor(ctx context.Context, batchID uint64, chain string, anchor *types.Anchor) error
	PruneInterruptedBatches(ctx context.Context) (int, error)
	// Proposal related methods.
	SaveProposal(ctx context.Context, proposal *types.Proposal) error
	UpdateProposalCAS(ctx context.Context, proposalID string, expected types.ProposalState, mutate func(*types.Proposal) error) (*types.Proposal, error)
	// Signer related methods.
	SaveSigner(ctx context.Context, signer *types.Signer) error
	DeactivateSigner(ctx context.Context, signerID string) error
	// Maintenance.
	DatabasePath() string
	ClearDB() error
	Backup(ctx context.Context, outputDir string, permissionOverride bool) error
}
