// Package anchorcontract wraps the MerkleAnchor contract ABI: calldata
// packing for the anchoring transaction and decoding of its event logs.
package anchorcontract

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/pkg/errors"
	"github.com/zkiotchain/zkiot/crypto/hash"
)

// MerkleAnchorABI is the ABI of the anchoring contract deployed on every
// target network.
const MerkleAnchorABI = `[{"anonymous":false,"inputs":[{"indexed":false,"name":"merkleRoot","type":"bytes32"},{"indexed":false,"name":"batchId","type":"uint256"},{"indexed":false,"name":"batchSize","type":"uint256"},{"indexed":false,"name":"timestamp","type":"uint256"}],"name":"MerkleRootAnchored","type":"event"},{"inputs":[{"name":"merkleRoot","type":"bytes32"},{"name":"batchSize","type":"uint256"},{"name":"metadata","type":"string"}],"name":"anchorMerkleRoot","outputs":[{"name":"batchId","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},{"inputs":[{"name":"merkleRoot","type":"bytes32"}],"name":"isRootAnchored","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"}]`

// AnchoredEventSignature is the topic hash of MerkleRootAnchored logs.
var AnchoredEventSignature = hash.Hash([]byte("MerkleRootAnchored(bytes32,uint256,uint256,uint256)"))

// PackAnchorMerkleRoot builds the calldata anchoring root with its leaf
// count and metadata string.
func PackAnchorMerkleRoot(root [32]byte, batchSize uint64, metadata string) ([]byte, error) {
	contractAbi, err := abi.JSON(strings.NewReader(MerkleAnchorABI))
	if err != nil {
		return nil, errors.Wrap(err, "unable to generate contract abi")
	}
	data, err := contractAbi.Pack("anchorMerkleRoot", root, new(big.Int).SetUint64(batchSize), metadata)
	if err != nil {
		return nil, errors.Wrap(err, "unable to pack anchorMerkleRoot args")
	}
	return data, nil
}

// PackIsRootAnchored builds the calldata querying whether root has been
// anchored on the contract.
func PackIsRootAnchored(root [32]byte) ([]byte, error) {
	contractAbi, err := abi.JSON(strings.NewReader(MerkleAnchorABI))
	if err != nil {
		return nil, errors.Wrap(err, "unable to generate contract abi")
	}
	data, err := contractAbi.Pack("isRootAnchored", root)
	if err != nil {
		return nil, errors.Wrap(err, "unable to pack isRootAnchored args")
	}
	return data, nil
}

// UnpackIsRootAnchored decodes the return data of an isRootAnchored call.
func UnpackIsRootAnchored(data []byte) (bool, error) {
	contractAbi, err := abi.JSON(strings.NewReader(MerkleAnchorABI))
	if err != nil {
		return false, errors.Wrap(err, "unable to generate contract abi")
	}
	vals, err := contractAbi.Unpack("isRootAnchored", data)
	if err != nil {
		return false, errors.Wrap(err, "unable to unpack isRootAnchored return")
	}
	if len(vals) != 1 {
		return false, errors.Errorf("expected 1 return value, got %d", len(vals))
	}
	anchored, ok := vals[0].(bool)
	if !ok {
		return false, errors.Errorf("unexpected return type %T", vals[0])
	}
	return anchored, nil
}

// UnpackAnchoredLogData unpacks the data of a MerkleRootAnchored log.
func UnpackAnchoredLogData(data []byte) (root [32]byte, batchID, batchSize, timestamp *big.Int, err error) {
	contractAbi, err := abi.JSON(strings.NewReader(MerkleAnchorABI))
	if err != nil {
		return [32]byte{}, nil, nil, nil, errors.Wrap(err, "unable to generate contract abi")
	}
	vals, err := contractAbi.Unpack("MerkleRootAnchored", data)
	if err != nil {
		return [32]byte{}, nil, nil, nil, errors.Wrap(err, "unable to unpack log")
	}
	if len(vals) != 4 {
		return [32]byte{}, nil, nil, nil, errors.Errorf("expected 4 log values, got %d", len(vals))
	}
	root, rootOk := vals[0].([32]byte)
	batchID, idOk := vals[1].(*big.Int)
	batchSize, sizeOk := vals[2].(*big.Int)
	timestamp, tsOk := vals[3].(*big.Int)
	if !rootOk || !idOk || !sizeOk || !tsOk {
		return [32]byte{}, nil, nil, nil, errors.New("unexpected log value types")
	}
	return root, batchID, batchSize, timestamp, nil
}
