package server

import (
	"context"

	"github.com/zkiotchain/zkiot/chain/registry"
	"go.opencensus.io/trace"
)

// NetworkList describes every configured network and flags the active
// one.
func (s *Service) NetworkList(ctx context.Context) ([]*NetworkResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.NetworkList")
	defer span.End()
	requestsTotal.WithLabelValues("NetworkList").Inc()

	active := s.cfg.Registry.Active().Name
	networks := s.cfg.Registry.List()
	resp := make([]*NetworkResponse, 0, len(networks))
	for _, network := range networks {
		resp = append(resp, networkResponse(network, active))
	}
	return resp, nil
}

// NetworkSwitch changes the active network.
func (s *Service) NetworkSwitch(ctx context.Context, name string) (*NetworkResponse, error) {
	ctx, span := trace.StartSpan(ctx, "server.NetworkSwitch")
	defer span.End()
	requestsTotal.WithLabelValues("NetworkSwitch").Inc()

	network, err := s.cfg.Registry.SetActive(name)
	if err != nil {
		return nil, s.fail("NetworkSwitch", err)
	}
	log.WithField("network", network.Name).Info("Switched active network")
	return networkResponse(network, network.Name), nil
}

func networkResponse(n registry.Network, active string) *NetworkResponse {
	resp := &NetworkResponse{
		Name:        n.Name,
		DisplayName: n.DisplayName,
		ChainID:     n.ChainID,
		Symbol:      n.NativeSymbol,
		Testnet:     n.Testnet,
		Active:      n.Name == active,
	}
	if len(n.Contracts) > 0 {
		resp.Contracts = make(map[string]string, len(n.Contracts))
		for contract, addr := range n.Contracts {
			resp.Contracts[contract] = addr.Hex()
		}
	}
	return resp
}
