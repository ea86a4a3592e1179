// Package registry tracks the networks the coordinator can anchor to,
// which one is currently active, and where the anchor contracts are
// deployed on each. Network definitions come from built-in defaults plus
// an optional yaml file; contract deployments live in their own yaml
// file that is hot-reloaded while the process runs.
package registry

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/zkiotchain/zkiot/apierror"
	"github.com/zkiotchain/zkiot/io/file"
	"gopkg.in/yaml.v2"
)

var log = logrus.WithField("prefix", "registry")

// Network describes one anchor target.
type Network struct {
	Name           string `yaml:"name"`
	DisplayName    string `yaml:"display_name"`
	ChainID        uint64 `yaml:"chain_id"`
	RPCURL         string `yaml:"rpc_url"`
	NativeSymbol   string `yaml:"native_symbol"`
	NativeDecimals uint8  `yaml:"native_decimals"`
	ExplorerBase   string `yaml:"explorer_base"`
	Testnet        bool   `yaml:"testnet"`
	// Contracts maps contract names to their deployed addresses. Filled
	// from the deployments file, never from the networks file.
	Contracts map[string]common.Address `yaml:"-"`
}

// Copy returns an independent copy of the network.
func (n Network) Copy() Network {
	dup := n
	dup.Contracts = make(map[string]common.Address, len(n.Contracts))
	for name, addr := range n.Contracts {
		dup.Contracts[name] = addr
	}
	return dup
}

// Deployment records one contract deployment on a network.
type Deployment struct {
	Contract    string `yaml:"contract"`
	Address     string `yaml:"address"`
	TxHash      string `yaml:"tx_hash,omitempty"`
	BlockNumber uint64 `yaml:"block_number,omitempty"`
}

type networksFile struct {
	Default  string    `yaml:"default,omitempty"`
	Networks []Network `yaml:"networks"`
}

type deploymentsFile struct {
	Networks map[string][]Deployment `yaml:"networks"`
}

// Config holds the registry's construction parameters.
type Config struct {
	// NetworksPath optionally points at a yaml file whose entries replace
	// built-in networks wholesale or add new ones.
	NetworksPath string
	// DeploymentsPath optionally points at the yaml file recording
	// contract deployments. The file is re-read on change and written
	// back by RecordDeployment.
	DeploymentsPath string
	// Active names the initially active network. Defaults to the
	// networks file default, then to DefaultNetworkName.
	Active string
}

// Registry is the concurrency-safe network catalog.
type Registry struct {
	lock            sync.RWMutex
	networks        map[string]*Network
	deployments     map[string][]Deployment
	active          string
	deploymentsPath string
}

// New builds a registry from built-in defaults, the optional networks
// file, and the optional deployments file.
func New(cfg *Config) (*Registry, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	r := &Registry{
		networks:        make(map[string]*Network),
		deployments:     make(map[string][]Deployment),
		deploymentsPath: cfg.DeploymentsPath,
	}
	for _, network := range defaultNetworks() {
		n := network
		n.Contracts = make(map[string]common.Address)
		r.networks[n.Name] = &n
	}

	active := DefaultNetworkName
	if cfg.NetworksPath != "" {
		fileDefault, err := r.loadNetworksFile(cfg.NetworksPath)
		if err != nil {
			return nil, err
		}
		if fileDefault != "" {
			active = fileDefault
		}
	}
	if cfg.Active != "" {
		active = cfg.Active
	}
	if _, ok := r.networks[active]; !ok {
		return nil, apierror.Newf(apierror.NotFound, apierror.CodeUnknownNetwork, "unsupported network %s", active)
	}
	r.active = active

	// RPC URLs yield to environment overrides, keyed by upper-cased name.
	for name, network := range r.networks {
		if url := os.Getenv(strings.ToUpper(name) + "_RPC_URL"); url != "" {
			network.RPCURL = url
		}
	}

	if cfg.DeploymentsPath != "" && file.FileExists(cfg.DeploymentsPath) {
		if err := r.ReloadDeployments(); err != nil {
			return nil, err
		}
	}
	log.WithFields(logrus.Fields{
		"networks": len(r.networks),
		"active":   r.active,
	}).Info("Network registry initialized")
	return r, nil
}

func (r *Registry) loadNetworksFile(path string) (string, error) {
	raw, err := file.ReadFileAsBytes(path)
	if err != nil {
		return "", errors.Wrapf(err, "could not read networks file %s", path)
	}
	parsed := &networksFile{}
	if err := yaml.UnmarshalStrict(raw, parsed); err != nil {
		return "", errors.Wrapf(err, "could not parse networks file %s", path)
	}
	for i, network := range parsed.Networks {
		if network.Name == "" || network.ChainID == 0 || network.RPCURL == "" {
			return "", errors.Errorf("networks file entry %d needs name, chain_id and rpc_url", i)
		}
		n := network
		n.Contracts = make(map[string]common.Address)
		r.networks[n.Name] = &n
	}
	return parsed.Default, nil
}

// Get returns the named network.
func (r *Registry) Get(name string) (Network, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	network, ok := r.networks[name]
	if !ok {
		return Network{}, apierror.Newf(apierror.NotFound, apierror.CodeUnknownNetwork, "unsupported network %s", name)
	}
	return network.Copy(), nil
}

// List returns every known network, sorted by name.
func (r *Registry) List() []Network {
	r.lock.RLock()
	defer r.lock.RUnlock()
	list := make([]Network, 0, len(r.networks))
	for _, network := range r.networks {
		list = append(list, network.Copy())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Active returns the currently active network.
func (r *Registry) Active() Network {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.networks[r.active].Copy()
}

// SetActive switches the active network and returns it.
func (r *Registry) SetActive(name string) (Network, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	network, ok := r.networks[name]
	if !ok {
		return Network{}, apierror.Newf(apierror.NotFound, apierror.CodeUnknownNetwork, "unsupported network %s", name)
	}
	r.active = name
	log.WithFields(logrus.Fields{
		"network": name,
		"chainID": network.ChainID,
	}).Info("Switched active network")
	return network.Copy(), nil
}

// Deployment returns the deployment records for the named network.
func (r *Registry) Deployment(name string) ([]Deployment, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if _, ok := r.networks[name]; !ok {
		return nil, apierror.Newf(apierror.NotFound, apierror.CodeUnknownNetwork, "unsupported network %s", name)
	}
	return append([]Deployment(nil), r.deployments[name]...), nil
}

// RecordDeployment stores a contract deployment for the named network,
// replacing any previous record for the same contract, and persists the
// deployments file when one is configured.
func (r *Registry) RecordDeployment(name string, rec Deployment) error {
	if rec.Contract == "" {
		return errors.New("deployment record needs a contract name")
	}
	if !common.IsHexAddress(rec.Address) {
		return errors.Errorf("invalid contract address %q", rec.Address)
	}
	rec.Address = common.HexToAddress(rec.Address).Hex()

	r.lock.Lock()
	defer r.lock.Unlock()
	network, ok := r.networks[name]
	if !ok {
		return apierror.Newf(apierror.NotFound, apierror.CodeUnknownNetwork, "unsupported network %s", name)
	}
	replaced := false
	for i, existing := range r.deployments[name] {
		if existing.Contract == rec.Contract {
			r.deployments[name][i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		r.deployments[name] = append(r.deployments[name], rec)
	}
	network.Contracts[rec.Contract] = common.HexToAddress(rec.Address)

	if r.deploymentsPath == "" {
		return nil
	}
	raw, err := yaml.Marshal(&deploymentsFile{Networks: r.deployments})
	if err != nil {
		return errors.Wrap(err, "could not marshal deployments")
	}
	if err := file.WriteFile(r.deploymentsPath, raw); err != nil {
		return errors.Wrapf(err, "could not write deployments file %s", r.deploymentsPath)
	}
	log.WithFields(logrus.Fields{
		"network":  name,
		"contract": rec.Contract,
		"address":  rec.Address,
	}).Info("Recorded contract deployment")
	return nil
}

// ContractAddress returns the deployed address of the named contract on
// the named network.
func (r *Registry) ContractAddress(name, contract string) (common.Address, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	network, ok := r.networks[name]
	if !ok {
		return common.Address{}, apierror.Newf(apierror.NotFound, apierror.CodeUnknownNetwork, "unsupported network %s", name)
	}
	addr, ok := network.Contracts[contract]
	if !ok {
		return common.Address{}, errors.Errorf("no %s deployment recorded on %s", contract, name)
	}
	return addr, nil
}

// ExplorerTxURL builds the explorer link for a transaction on the named
// network.
func (r *Registry) ExplorerTxURL(name, txHash string) (string, error) {
	network, err := r.Get(name)
	if err != nil {
		return "", err
	}
	if network.ExplorerBase == "" {
		return "", errors.Errorf("no explorer configured for %s", name)
	}
	return fmt.Sprintf("%s/tx/%s", strings.TrimSuffix(network.ExplorerBase, "/"), txHash), nil
}

// ReloadDeployments re-reads the deployments file and swaps the contract
// set in one step.
func (r *Registry) ReloadDeployments() error {
	if r.deploymentsPath == "" {
		return nil
	}
	raw, err := file.ReadFileAsBytes(r.deploymentsPath)
	if err != nil {
		return errors.Wrapf(err, "could not read deployments file %s", r.deploymentsPath)
	}
	parsed := &deploymentsFile{}
	if err := yaml.UnmarshalStrict(raw, parsed); err != nil {
		return errors.Wrapf(err, "could not parse deployments file %s", r.deploymentsPath)
	}
	for name, recs := range parsed.Networks {
		for _, rec := range recs {
			if !common.IsHexAddress(rec.Address) {
				return errors.Errorf("invalid address %q for contract %s on %s", rec.Address, rec.Contract, name)
			}
		}
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if parsed.Networks == nil {
		parsed.Networks = make(map[string][]Deployment)
	}
	r.deployments = parsed.Networks
	for name, network := range r.networks {
		network.Contracts = make(map[string]common.Address)
		for _, rec := range r.deployments[name] {
			network.Contracts[rec.Contract] = common.HexToAddress(rec.Address)
		}
	}
	log.WithField("path", r.deploymentsPath).Info("Loaded contract deployments")
	return nil
}
