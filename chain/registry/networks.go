package registry

// DefaultNetworkName is the network used when no override is configured.
const DefaultNetworkName = "sepolia"

// Contract names recorded per deployment.
const (
	// ContractMerkleAnchor receives batch roots.
	ContractMerkleAnchor = "MerkleAnchor"
	// ContractDeviceRegistry mirrors device registrations on chain.
	ContractDeviceRegistry = "DeviceRegistry"
)

// defaultNetworks returns the built-in anchor targets. A networks file can
// override any field and add further entries; the RPC URL also yields to a
// <NAME>_RPC_URL environment variable.
func defaultNetworks() []Network {
	return []Network{
		{
			Name:           "sepolia",
			DisplayName:    "Ethereum Sepolia",
			ChainID:        11155111,
			RPCURL:         "https://rpc.sepolia.org",
			NativeSymbol:   "ETH",
			NativeDecimals: 18,
			ExplorerBase:   "https://sepolia.etherscan.io",
			Testnet:        true,
		},
		{
			Name:           "polygonMumbai",
			DisplayName:    "Polygon Mumbai",
			ChainID:        80001,
			RPCURL:         "https://rpc-mumbai.maticvigil.com",
			NativeSymbol:   "MATIC",
			NativeDecimals: 18,
			ExplorerBase:   "https://mumbai.polygonscan.com",
			Testnet:        true,
		},
		{
			Name:           "bscTestnet",
			DisplayName:    "BSC Testnet",
			ChainID:        97,
			RPCURL:         "https://data-seed-prebsc-1-s1.binance.org:8545",
			NativeSymbol:   "BNB",
			NativeDecimals: 18,
			ExplorerBase:   "https://testnet.bscscan.com",
			Testnet:        true,
		},
		{
			Name:           "arbitrumSepolia",
			DisplayName:    "Arbitrum Sepolia",
			ChainID:        421614,
			RPCURL:         "https://sepolia-rollup.arbitrum.io/rpc",
			NativeSymbol:   "ETH",
			NativeDecimals: 18,
			ExplorerBase:   "https://sepolia.arbiscan.io",
			Testnet:        true,
		},
		{
			Name:           "optimismSepolia",
			DisplayName:    "Optimism Sepolia",
			ChainID:        11155420,
			RPCURL:         "https://sepolia.optimism.io",
			NativeSymbol:   "ETH",
			NativeDecimals: 18,
			ExplorerBase:   "https://sepolia-optimism.etherscan.io",
			Testnet:        true,
		},
		{
			Name:           "avalancheFuji",
			DisplayName:    "Avalanche Fuji",
			ChainID:        43113,
			RPCURL:         "https://api.avax-test.network/ext/bc/C/rpc",
			NativeSymbol:   "AVAX",
			NativeDecimals: 18,
			ExplorerBase:   "https://testnet.snowtrace.io",
			Testnet:        true,
		},
	}
}
