package anchor

import (
	"context"

	"github.com/pkg/errors"
	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/container/trie"
	"go.opencensus.io/trace"
)

// InclusionProof locates the leaf inside the batch and returns its
// sibling path plus the leaf index.
func (s *Service) InclusionProof(ctx context.Context, batchID uint64, leafHash [32]byte) ([]trie.ProofStep, int, error) {
	ctx, span := trace.StartSpan(ctx, "anchor.InclusionProof")
	defer span.End()

	tree, leaves, err := s.treeFor(ctx, batchID)
	if err != nil {
		return nil, 0, err
	}
	index := -1
	for i, leaf := range leaves {
		if leaf == leafHash {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, 0, apierror.Newf(apierror.NotFound, "LEAF_NOT_FOUND",
			"leaf %#x is not part of batch %d", leafHash, batchID)
	}
	steps, err := tree.InclusionProof(index)
	if err != nil {
		return nil, 0, err
	}
	return steps, index, nil
}

// VerifyInclusion recomputes the path and compares it to the stored
// batch root.
func (s *Service) VerifyInclusion(ctx context.Context, batchID uint64, leafHash [32]byte, steps []trie.ProofStep) (bool, error) {
	ctx, span := trace.StartSpan(ctx, "anchor.VerifyInclusion")
	defer span.End()

	batch, err := s.cfg.Store.Batch(ctx, batchID)
	if err != nil {
		return false, err
	}
	return trie.VerifyInclusionProof(leafHash, steps, batch.Root), nil
}

// VerifyAgainstChain checks that the stored batch root is the one the
// anchor contract recorded on the target network.
func (s *Service) VerifyAgainstChain(ctx context.Context, batchID uint64, target string) (bool, error) {
	ctx, span := trace.StartSpan(ctx, "anchor.VerifyAgainstChain")
	defer span.End()

	batch, err := s.cfg.Store.Batch(ctx, batchID)
	if err != nil {
		return false, err
	}
	return s.cfg.Dispatcher.IsRootAnchored(ctx, target, batch.Root)
}

// treeFor returns the batch tree, rebuilding it from stored leaves on a
// cache miss. The rebuilt root is checked against the stored batch root
// so a corrupted leaf set can never serve proofs.
func (s *Service) treeFor(ctx context.Context, batchID uint64) (*trie.MerkleTree, [][32]byte, error) {
	if cached, ok := s.trees.Get(batchID); ok {
		tree := cached.(*trie.MerkleTree)
		treeCacheHits.Inc()
		return tree, tree.Leaves(), nil
	}
	treeCacheMisses.Inc()

	batch, err := s.cfg.Store.Batch(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.cfg.Store.BatchLeaves(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	leaves := make([][32]byte, len(data))
	for i, datum := range data {
		leaves[i] = datum.LeafHash
	}
	tree, err := trie.GenerateTreeFromLeaves(leaves)
	if err != nil {
		return nil, nil, err
	}
	if tree.Root() != batch.Root {
		return nil, nil, errors.Errorf("rebuilt root %#x does not match stored root %#x for batch %d",
			tree.Root(), batch.Root, batchID)
	}
	s.trees.Set(batchID, tree, 1)
	return tree, leaves, nil
}
