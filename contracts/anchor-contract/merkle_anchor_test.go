package anchorcontract_test

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
	anchorcontract "github.com/zkiotchain/zkiot/contracts/anchor-contract"
	"github.com/zkiotchain/zkiot/testing/assert"
	"github.com/zkiotchain/zkiot/testing/require"
)

func TestAnchoredEventSignature(t *testing.T) {
	want := crypto.Keccak256Hash([]byte("MerkleRootAnchored(bytes32,uint256,uint256,uint256)"))
	assert.Equal(t, [32]byte(want), anchorcontract.AnchoredEventSignature)
}

func TestPackAnchorMerkleRoot(t *testing.T) {
	root := [32]byte{0xaa, 0xbb}
	data, err := anchorcontract.PackAnchorMerkleRoot(root, 42, "sensor batch")
	require.NoError(t, err)

	contractAbi, err := abi.JSON(strings.NewReader(anchorcontract.MerkleAnchorABI))
	require.NoError(t, err)
	method, err := contractAbi.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "anchorMerkleRoot", method.Name)

	vals, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Equal(t, 3, len(vals))
	assert.Equal(t, root, vals[0].([32]byte))
	assert.Equal(t, uint64(42), vals[1].(*big.Int).Uint64())
	assert.Equal(t, "sensor batch", vals[2].(string))
}

func TestUnpackAnchoredLogData(t *testing.T) {
	contractAbi, err := abi.JSON(strings.NewReader(anchorcontract.MerkleAnchorABI))
	require.NoError(t, err)

	root := [32]byte{0x01, 0x02}
	data, err := contractAbi.Events["MerkleRootAnchored"].Inputs.Pack(
		root, big.NewInt(7), big.NewInt(42), big.NewInt(1700000000),
	)
	require.NoError(t, err)

	gotRoot, batchID, batchSize, timestamp, err := anchorcontract.UnpackAnchoredLogData(data)
	require.NoError(t, err)
	assert.Equal(t, root, gotRoot)
	assert.Equal(t, uint64(7), batchID.Uint64())
	assert.Equal(t, uint64(42), batchSize.Uint64())
	assert.Equal(t, uint64(1700000000), timestamp.Uint64())
}

func TestUnpackAnchoredLogData_BadData(t *testing.T) {
	_, _, _, _, err := anchorcontract.UnpackAnchoredLogData([]byte{0x01})
	require.ErrorContains(t, "unable to unpack log", err)
}

func TestIsRootAnchoredRoundTrip(t *testing.T) {
	root := [32]byte{0xcc}
	data, err := anchorcontract.PackIsRootAnchored(root)
	require.NoError(t, err)

	contractAbi, err := abi.JSON(strings.NewReader(anchorcontract.MerkleAnchorABI))
	require.NoError(t, err)
	method, err := contractAbi.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "isRootAnchored", method.Name)

	ret, err := contractAbi.Methods["isRootAnchored"].Outputs.Pack(true)
	require.NoError(t, err)
	anchored, err := anchorcontract.UnpackIsRootAnchored(ret)
	require.NoError(t, err)
	assert.Equal(t, true, anchored)
}
