// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Command enginesim drives the matching engine through the scripted
// scenarios described in its state-machine design: a live Engine wired to
// in-memory settlement collaborators (internal/simulate), fronted by the
// same admin HTTP API and event feed (server/comms) a production deployment
// would run.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/fasttransfer/matchingengine/dex"
	"github.com/fasttransfer/matchingengine/internal/auction"
	"github.com/fasttransfer/matchingengine/internal/auctionconfig"
	"github.com/fasttransfer/matchingengine/internal/registry"
	"github.com/fasttransfer/matchingengine/internal/settlement"
	"github.com/fasttransfer/matchingengine/internal/simulate"
	"github.com/fasttransfer/matchingengine/server/comms"
)

func main() {
	app := &cli.App{
		Name:  "enginesim",
		Usage: "run the matching engine against scripted settlement scenarios",
		Flags: appFlags(),
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "enginesim:", err)
		os.Exit(1)
	}
}

const (
	localChainID  dex.ChainID = 1
	remoteChainID dex.ChainID = 2
	burnDomain    uint32      = 9
)

func run(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	lm, err := dex.NewLoggerMaker(os.Stdout, c.String(logLevelFlag.Name))
	if err != nil {
		return err
	}
	auction.SetLogger(lm.Logger("AUCT"))
	registry.SetLogger(lm.Logger("REGY"))
	comms.SetLogger(lm.Logger("COMM"))

	localRouter := addrN(0xA0)
	remoteRouter := addrN(0xB0)
	feeRecipient := addrN(0xFE)

	reg := registry.New()
	if err := reg.AddEndpoint(localChainID, localRouter); err != nil {
		return err
	}
	if err := reg.AddEndpoint(remoteChainID, remoteRouter); err != nil {
		return err
	}

	cfgStore, err := auctionconfig.NewStore(&auctionconfig.Config{
		AuctionDuration:      2,
		AuctionGracePeriod:   5,
		PenaltyBlocks:        10,
		InitialPenaltyBps:    250_000,
		UserPenaltyRewardBps: 250_000,
	})
	if err != nil {
		return err
	}

	ledger := simulate.NewLedger()
	messaging := simulate.NewMessaging()
	transport := simulate.NewTransport(burnDomain, remoteRouter)
	clock := simulate.NewClock(1000, 1_700_000_000)

	sink := &settlement.Sink{
		LocalChainID: localChainID,
		Messaging:    messaging,
		Transport:    transport,
		Token:        "USDC",
	}

	store := auction.NewStore()
	if path := c.String(stateFileFlag.Name); path != "" {
		if err := store.RestoreState(path); err != nil {
			return err
		}
	}

	eventLog := lm.Logger("COMM")
	adminServer, err := comms.NewServer(&comms.Config{
		ListenAddr: c.String(listenAddrFlag.Name),
		RPCCert:    c.String(rpcCertFlag.Name),
		RPCKey:     c.String(rpcKeyFlag.Name),
		NoTLS:      c.Bool(noTLSFlag.Name),
	})
	if err != nil {
		return err
	}

	engine := &auction.Engine{
		LocalChainID: localChainID,
		SelfAddress:  localRouter,
		FeeRecipient: auction.NewFeeRecipientStore(feeRecipient),
		Store:        store,
		Config:       cfgStore,
		Endpoints:    reg,
		Messaging:    messaging,
		Transport:    transport,
		Ledger:       ledger,
		Sink:         sink,
		Clock:        clock,
		Events:       adminServer,
		Token:        "USDC",
	}
	adminServer.SetEngine(engine)
	eventLog.Infof("engine constructed: local chain %d, remote chain %d", localChainID, remoteChainID)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		adminServer.Run(gCtx)
		return nil
	})

	g.Go(func() error {
		defer cancel() // scripted run drives the process; stop the server once done
		return runScenarios(gCtx, c.String(scenarioFlag.Name), &harness{
			engine:        engine,
			ledger:        ledger,
			messaging:     messaging,
			transport:     transport,
			clock:         clock,
			localRouter:   localRouter,
			remoteRouter:  remoteRouter,
			localChainID:  localChainID,
			remoteChainID: remoteChainID,
		})
	})

	err = g.Wait()

	if path := c.String(stateFileFlag.Name); path != "" {
		if saveErr := store.SaveState(path); saveErr != nil {
			eventLog.Errorf("save state: %v", saveErr)
		}
	}
	return err
}

func addrN(b byte) dex.UniversalAddress {
	var a dex.UniversalAddress
	a[31] = b
	return a
}
