// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package simulate provides in-memory settlement collaborators for
// cmd/enginesim: a balance-checked token ledger, a loopback attested
// messaging substrate, a loopback burn-and-mint transport, and a
// manually-advanced clock. None of these are cryptographically sound; they
// exist to drive the engine's state machine through the scenarios in a
// single process without a real chain.
package simulate

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/fasttransfer/matchingengine/dex"
)

// Ledger is a balance-checked, in-memory implementation of
// settlement.TokenLedger.
type Ledger struct {
	mtx      sync.Mutex
	balances map[dex.UniversalAddress]*big.Int
}

// NewLedger constructs an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[dex.UniversalAddress]*big.Int)}
}

// Fund credits addr with amount, for seeding actors before a run.
func (l *Ledger) Fund(addr dex.UniversalAddress, amount *big.Int) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.balanceLocked(addr).Add(l.balanceLocked(addr), amount)
}

// Balance returns a copy of addr's current balance.
func (l *Ledger) Balance(addr dex.UniversalAddress) *big.Int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return new(big.Int).Set(l.balanceLocked(addr))
}

func (l *Ledger) balanceLocked(addr dex.UniversalAddress) *big.Int {
	b, ok := l.balances[addr]
	if !ok {
		b = big.NewInt(0)
		l.balances[addr] = b
	}
	return b
}

// TransferFrom implements settlement.TokenLedger.
func (l *Ledger) TransferFrom(_ context.Context, payer dex.UniversalAddress, amount *big.Int) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	bal := l.balanceLocked(payer)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("simulate: %s has insufficient balance %s for transfer of %s", payer, bal, amount)
	}
	bal.Sub(bal, amount)
	return nil
}

// TransferFromTo implements settlement.TokenLedger.
func (l *Ledger) TransferFromTo(_ context.Context, from, to dex.UniversalAddress, amount *big.Int) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	bal := l.balanceLocked(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("simulate: %s has insufficient balance %s for transfer of %s", from, bal, amount)
	}
	bal.Sub(bal, amount)
	l.balanceLocked(to).Add(l.balanceLocked(to), amount)
	return nil
}

// Pay implements settlement.TokenLedger.
func (l *Ledger) Pay(_ context.Context, recipient dex.UniversalAddress, amount *big.Int) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.balanceLocked(recipient).Add(l.balanceLocked(recipient), amount)
	return nil
}
