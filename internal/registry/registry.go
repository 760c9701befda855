// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package registry holds the engine's authoritative chain_id -> router
// address map, used both to authenticate inbound emitters and to address
// outbound transfers. The layout mirrors the per-chain parameter tables the
// teacher keeps under dex/networks (one map keyed by a chain identifier,
// populated once at startup and read-mostly thereafter).
package registry

import (
	"sync"

	"github.com/btcsuite/btclog"
	"github.com/fasttransfer/matchingengine/dex"
)

var log dex.Logger = btclog.Disabled

// SetLogger installs the subsystem logger. Must be called before the
// registry handles traffic if log output is desired.
func SetLogger(l dex.Logger) {
	log = l
}

// Registry is the authoritative chain_id -> router address map. The zero
// value is not usable; construct with New.
type Registry struct {
	mtx       sync.RWMutex
	endpoints map[dex.ChainID]dex.UniversalAddress
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		endpoints: make(map[dex.ChainID]dex.UniversalAddress),
	}
}

// AddEndpoint registers or overwrites the router address for chain. This is
// an admin-only operation in the host process; the Registry itself performs
// no caller authorization.
func (r *Registry) AddEndpoint(chain dex.ChainID, router dex.UniversalAddress) error {
	if chain == 0 {
		return dex.NewError(dex.ChainNotAllowed, "chain id 0 is never a valid key")
	}
	if router.IsZero() {
		return dex.NewError(dex.InvalidEndpoint, "router address must not be zero")
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.endpoints[chain] = router
	log.Infof("endpoint registered: chain %d -> %s", chain, router)
	return nil
}

// EndpointOf returns the router address registered for chain, and whether
// one is set.
func (r *Registry) EndpointOf(chain dex.ChainID) (dex.UniversalAddress, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	addr, ok := r.endpoints[chain]
	return addr, ok
}
