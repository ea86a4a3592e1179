package registry_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/chain/registry"
	"github.com/zkiotchain/zkiot/testing/assert"
	"github.com/zkiotchain/zkiot/testing/require"
)

// The classic first contract address of a fresh hardhat deployment.
const testAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func TestNew_Defaults(t *testing.T) {
	r, err := registry.New(nil)
	require.NoError(t, err)

	list := r.List()
	require.Equal(t, 6, len(list))
	assert.Equal(t, "arbitrumSepolia", list[0].Name)
	assert.Equal(t, registry.DefaultNetworkName, r.Active().Name)

	sepolia, err := r.Get("sepolia")
	require.NoError(t, err)
	assert.Equal(t, uint64(11155111), sepolia.ChainID)
	fuji, err := r.Get("avalancheFuji")
	require.NoError(t, err)
	assert.Equal(t, uint64(43113), fuji.ChainID)

	_, err = r.Get("mainnet")
	assert.Equal(t, apierror.CodeUnknownNetwork, apierror.CodeOf(err))
	assert.Equal(t, true, apierror.IsKind(err, apierror.NotFound))
}

func TestNew_EnvRPCOverride(t *testing.T) {
	require.NoError(t, os.Setenv("BSCTESTNET_RPC_URL", "http://127.0.0.1:9545"))
	defer func() {
		require.NoError(t, os.Unsetenv("BSCTESTNET_RPC_URL"))
	}()

	r, err := registry.New(nil)
	require.NoError(t, err)
	bsc, err := r.Get("bscTestnet")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9545", bsc.RPCURL)
}

func TestNew_NetworksFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.yaml")
	content := `default: bscTestnet
networks:
  - name: localnet
    display_name: Local Devnet
    chain_id: 31337
    rpc_url: http://127.0.0.1:8545
    native_symbol: ETH
    native_decimals: 18
`
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0600))

	r, err := registry.New(&registry.Config{NetworksPath: path})
	require.NoError(t, err)
	assert.Equal(t, "bscTestnet", r.Active().Name)
	local, err := r.Get("localnet")
	require.NoError(t, err)
	assert.Equal(t, uint64(31337), local.ChainID)

	// An explicit active selection beats the file default.
	r, err = registry.New(&registry.Config{NetworksPath: path, Active: "localnet"})
	require.NoError(t, err)
	assert.Equal(t, "localnet", r.Active().Name)
}

func TestNew_RejectsUnknownActive(t *testing.T) {
	_, err := registry.New(&registry.Config{Active: "mainnet"})
	assert.Equal(t, apierror.CodeUnknownNetwork, apierror.CodeOf(err))
}

func TestNew_RejectsIncompleteNetworkEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte("networks:\n  - name: broken\n"), 0600))

	_, err := registry.New(&registry.Config{NetworksPath: path})
	require.ErrorContains(t, "needs name, chain_id and rpc_url", err)
}

func TestSetActive(t *testing.T) {
	r, err := registry.New(nil)
	require.NoError(t, err)

	switched, err := r.SetActive("polygonMumbai")
	require.NoError(t, err)
	assert.Equal(t, uint64(80001), switched.ChainID)
	assert.Equal(t, "polygonMumbai", r.Active().Name)

	_, err = r.SetActive("mainnet")
	assert.Equal(t, apierror.CodeUnknownNetwork, apierror.CodeOf(err))
	assert.Equal(t, "polygonMumbai", r.Active().Name)
}

func TestRecordDeployment_PersistsAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployments.yaml")
	r, err := registry.New(&registry.Config{DeploymentsPath: path})
	require.NoError(t, err)

	require.NoError(t, r.RecordDeployment("sepolia", registry.Deployment{
		Contract:    registry.ContractMerkleAnchor,
		Address:     testAddr,
		TxHash:      "0x01",
		BlockNumber: 100,
	}))
	addr, err := r.ContractAddress("sepolia", registry.ContractMerkleAnchor)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddr), addr)

	// A fresh registry over the same file sees the record.
	reopened, err := registry.New(&registry.Config{DeploymentsPath: path})
	require.NoError(t, err)
	recs, err := reopened.Deployment("sepolia")
	require.NoError(t, err)
	require.Equal(t, 1, len(recs))
	assert.Equal(t, uint64(100), recs[0].BlockNumber)

	// Re-recording the same contract replaces the record.
	other := "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
	require.NoError(t, reopened.RecordDeployment("sepolia", registry.Deployment{
		Contract: registry.ContractMerkleAnchor,
		Address:  other,
	}))
	recs, err = reopened.Deployment("sepolia")
	require.NoError(t, err)
	require.Equal(t, 1, len(recs))
	addr, err = reopened.ContractAddress("sepolia", registry.ContractMerkleAnchor)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(other), addr)
}

func TestRecordDeployment_Validation(t *testing.T) {
	r, err := registry.New(nil)
	require.NoError(t, err)

	require.ErrorContains(t, "needs a contract name", r.RecordDeployment("sepolia", registry.Deployment{Address: testAddr}))
	require.ErrorContains(t, "invalid contract address", r.RecordDeployment("sepolia", registry.Deployment{
		Contract: registry.ContractMerkleAnchor,
		Address:  "not-an-address",
	}))
	err = r.RecordDeployment("mainnet", registry.Deployment{Contract: registry.ContractMerkleAnchor, Address: testAddr})
	assert.Equal(t, apierror.CodeUnknownNetwork, apierror.CodeOf(err))
}

func TestContractAddress_MissingDeployment(t *testing.T) {
	r, err := registry.New(nil)
	require.NoError(t, err)

	_, err = r.ContractAddress("sepolia", registry.ContractMerkleAnchor)
	require.ErrorContains(t, "no MerkleAnchor deployment recorded on sepolia", err)
}

func TestExplorerTxURL(t *testing.T) {
	r, err := registry.New(nil)
	require.NoError(t, err)

	url, err := r.ExplorerTxURL("sepolia", "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "https://sepolia.etherscan.io/tx/0xabc", url)

	_, err = r.ExplorerTxURL("mainnet", "0xabc")
	assert.Equal(t, apierror.CodeUnknownNetwork, apierror.CodeOf(err))
}

func TestReloadDeployments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployments.yaml")
	content := `networks:
  sepolia:
    - contract: MerkleAnchor
      address: "` + testAddr + `"
`
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0600))

	r, err := registry.New(&registry.Config{DeploymentsPath: path})
	require.NoError(t, err)
	addr, err := r.ContractAddress("sepolia", registry.ContractMerkleAnchor)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddr), addr)

	// A bad edit fails the reload and keeps the previous contract set.
	require.NoError(t, ioutil.WriteFile(path, []byte("networks:\n  sepolia:\n    - contract: MerkleAnchor\n      address: nope\n"), 0600))
	require.ErrorContains(t, "invalid address", r.ReloadDeployments())
	addr, err = r.ContractAddress("sepolia", registry.ContractMerkleAnchor)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddr), addr)
}
