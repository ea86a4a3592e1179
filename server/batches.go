package server

import (
	"context"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/zkiotchain/zkiot/anchor"
	"github.com/zkiotchain/zkiot/types"
	"go.opencensus.io/trace"
	"golang.org/x/exp/slices"
)

// TriggerAnchor assembles every pending record into a batch and anchors
// it on the active network.
func (s *Service) TriggerAnchor(ctx context.Context, req *TriggerAnchorRequest) (*anchor.Result, error) {
	ctx, span := trace.StartSpan(ctx, "server.TriggerAnchor")
	defer span.End()
	requestsTotal.WithLabelValues("TriggerAnchor").Inc()

	if err := s.validate(req); err != nil {
		return nil, s.fail("TriggerAnchor", err)
	}
	result, err := s.cfg.Anchor.AnchorPending(ctx, nil, req.Metadata)
	if err != nil {
		return nil, s.fail("TriggerAnchor", err)
	}
	return result, nil
}

// VerifyInclusion rebuilds the proof for one leaf and checks it against
// the stored batch root.
func (s *Service) VerifyInclusion(ctx context.Context, req *VerifyInclusionRequest) (*VerifyInclusionResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.VerifyInclusion")
	defer span.End()
	requestsTotal.WithLabelValues("VerifyInclusion").Inc()

	if err := s.validate(req); err != nil {
		return nil, s.fail("VerifyInclusion", err)
	}
	leaf, err := decodeHash32("data_hash", req.LeafHash)
	if err != nil {
		return nil, s.fail("VerifyInclusion", err)
	}
	batch, err := s.cfg.Store.Batch(ctx, req.BatchID)
	if err != nil {
		return nil, s.fail("VerifyInclusion", err)
	}
	steps, index, err := s.cfg.Anchor.InclusionProof(ctx, req.BatchID, leaf)
	if err != nil {
		return nil, s.fail("VerifyInclusion", err)
	}
	valid, err := s.cfg.Anchor.VerifyInclusion(ctx, req.BatchID, leaf, steps)
	if err != nil {
		return nil, s.fail("VerifyInclusion", err)
	}
	resp := &VerifyInclusionResponse{
		Valid:      valid,
		BatchID:    req.BatchID,
		LeafHash:   hexutil.Encode(leaf[:]),
		LeafIndex:  index,
		MerkleRoot: hexutil.Encode(batch.Root[:]),
		Proof:      make([]*ProofStepResponse, 0, len(steps)),
	}
	for _, step := range steps {
		resp.Proof = append(resp.Proof, &ProofStepResponse{Sibling: hexutil.Encode(step.Sibling[:]), Right: step.Right})
	}
	return resp, nil
}

// GetBatch returns one batch with its anchor records.
func (s *Service) GetBatch(ctx context.Context, batchID uint64) (*BatchResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.GetBatch")
	defer span.End()
	requestsTotal.WithLabelValues("GetBatch").Inc()

	batch, err := s.cfg.Store.Batch(ctx, batchID)
	if err != nil {
		return nil, s.fail("GetBatch", err)
	}
	return batchResponse(batch), nil
}

// ListBatches returns every batch, newest first.
func (s *Service) ListBatches(ctx context.Context) ([]*BatchResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.ListBatches")
	defer span.End()
	requestsTotal.WithLabelValues("ListBatches").Inc()

	batches, err := s.cfg.Store.Batches(ctx)
	if err != nil {
		return nil, s.fail("ListBatches", err)
	}
	slices.SortFunc(batches, func(a, b *types.MerkleBatch) bool {
		return a.BatchID > b.BatchID
	})
	resp := make([]*BatchResponse, 0, len(batches))
	for _, batch := range batches {
		resp = append(resp, batchResponse(batch))
	}
	return resp, nil
}

func batchResponse(b *types.MerkleBatch) *BatchResponse {
	resp := &BatchResponse{
		BatchID:   b.BatchID,
		LeafCount: b.LeafCount,
		Root:      hexutil.Encode(b.Root[:]),
		CreatedAt: b.CreatedAt,
		Metadata:  b.Metadata,
		State:     string(b.State),
		Anchors:   make(map[string]*types.Anchor, len(b.Anchors)),
	}
	for chain, rec := range b.Anchors {
		c := *rec
		resp.Anchors[chain] = &c
	}
	return resp
}
