// Package trie implements the binary hash tree built over each telemetry
// batch. Leaves and internal nodes are domain separated ("LEAF"/"NODE")
// and a level with an odd node count duplicates its last node, so the same
// root is obtained whether or not the caller pads the sequence to a power
// of two.
package trie

import (
	"github.com/pkg/errors"
	"github.com/zkiotchain/zkiot/encoding/tuple"
)

// ErrEmptyLeaves is returned when a tree is requested over zero leaves.
var ErrEmptyLeaves = errors.New("no leaves provided to generate merkle tree")

// ProofStep is one level of an inclusion proof, bottom-up. Right reports
// whether the sibling sits on the right of the node being walked.
type ProofStep struct {
	Sibling [32]byte
	Right   bool
}

// MerkleTree keeps every layer so inclusion proofs can be served without
// rebuilding. Layers are stored after odd-level duplication; leafCount
// preserves the original sequence length.
type MerkleTree struct {
	layers    [][][32]byte
	leafCount int
}

// LeafHash computes the leaf digest of a canonical payload.
func LeafHash(canonicalPayload []byte) [32]byte {
	return tuple.New().Str("LEAF").Bytes(canonicalPayload).Hash()
}

// NodeHash combines two child digests into their parent.
func NodeHash(left, right [32]byte) [32]byte {
	return tuple.New().Str("NODE").Bytes32(left).Bytes32(right).Hash()
}

// GenerateTreeFromLeaves constructs the tree over already-hashed leaves in
// their given order. A single leaf is its own root.
func GenerateTreeFromLeaves(leaves [][32]byte) (*MerkleTree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyLeaves
	}
	base := make([][32]byte, len(leaves))
	copy(base, leaves)

	layers := [][][32]byte{base}
	current := base
	for len(current) > 1 {
		if len(current)%2 == 1 {
			current = append(current, current[len(current)-1])
			layers[len(layers)-1] = current
		}
		next := make([][32]byte, 0, len(current)/2)
		for i := 0; i < len(current); i += 2 {
			next = append(next, NodeHash(current[i], current[i+1]))
		}
		layers = append(layers, next)
		current = next
	}
	return &MerkleTree{layers: layers, leafCount: len(leaves)}, nil
}

// Root returns the tree root.
func (m *MerkleTree) Root() [32]byte {
	return m.layers[len(m.layers)-1][0]
}

// NumOfLeaves returns the original leaf count, excluding duplication
// padding.
func (m *MerkleTree) NumOfLeaves() int {
	return m.leafCount
}

// Leaves returns the original leaf sequence.
func (m *MerkleTree) Leaves() [][32]byte {
	out := make([][32]byte, m.leafCount)
	copy(out, m.layers[0][:m.leafCount])
	return out
}

// InclusionProof computes the sibling path for the leaf at index,
// bottom-up.
func (m *MerkleTree) InclusionProof(index int) ([]ProofStep, error) {
	if index < 0 {
		return nil, errors.Errorf("merkle index is negative: %d", index)
	}
	if index >= m.leafCount {
		return nil, errors.Errorf("merkle index out of range in tree, max range: %d, received: %d", m.leafCount, index)
	}
	proof := make([]ProofStep, 0, len(m.layers)-1)
	current := index
	for i := 0; i < len(m.layers)-1; i++ {
		// Layers below the root are stored after duplication, so the
		// sibling index always exists.
		layer := m.layers[i]
		proof = append(proof, ProofStep{
			Sibling: layer[current^1],
			Right:   current%2 == 0,
		})
		current /= 2
	}
	return proof, nil
}

// VerifyInclusionProof rehashes a leaf up the given path and compares the
// result to root.
func VerifyInclusionProof(leaf [32]byte, proof []ProofStep, root [32]byte) bool {
	node := leaf
	for _, step := range proof {
		if step.Right {
			node = NodeHash(node, step.Sibling)
		} else {
			node = NodeHash(step.Sibling, node)
		}
	}
	return node == root
}

// Copy performs a deep copy of the tree.
func (m *MerkleTree) Copy() *MerkleTree {
	layers := make([][][32]byte, len(m.layers))
	for i, layer := range m.layers {
		layers[i] = make([][32]byte, len(layer))
		copy(layers[i], layer)
	}
	return &MerkleTree{layers: layers, leafCount: m.leafCount}
}
