// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"github.com/urfave/cli/v2"
)

var simCategory = "ENGINE SIMULATION"

var (
	listenAddrFlag = &cli.StringFlag{
		Name:     "listen",
		Usage:    "address for the admin HTTP API and event feed",
		Value:    "127.0.0.1:8232",
		Category: simCategory,
		EnvVars:  []string{"ENGINESIM_LISTEN"},
	}
	noTLSFlag = &cli.BoolFlag{
		Name:     "notls",
		Usage:    "serve the admin API over plain HTTP instead of a self-signed TLS cert",
		Category: simCategory,
		EnvVars:  []string{"ENGINESIM_NOTLS"},
	}
	rpcCertFlag = &cli.StringFlag{
		Name:     "rpccert",
		Usage:    "path to the admin API's TLS certificate",
		Value:    "./enginesim.cert",
		Category: simCategory,
		EnvVars:  []string{"ENGINESIM_RPCCERT"},
	}
	rpcKeyFlag = &cli.StringFlag{
		Name:     "rpckey",
		Usage:    "path to the admin API's TLS key",
		Value:    "./enginesim.key",
		Category: simCategory,
		EnvVars:  []string{"ENGINESIM_RPCKEY"},
	}
	logLevelFlag = &cli.StringFlag{
		Name:     "loglevel",
		Usage:    "logging level: trace, debug, info, warn, error, critical, off",
		Value:    "info",
		Category: simCategory,
		EnvVars:  []string{"ENGINESIM_LOGLEVEL"},
	}
	scenarioFlag = &cli.StringFlag{
		Name:     "scenario",
		Usage:    "which scripted scenario to run: happy-path, grace-liquidation, full-liquidation, racing-bids, slow-wins, deadline-exceeded, all",
		Value:    "all",
		Category: simCategory,
		EnvVars:  []string{"ENGINESIM_SCENARIO"},
	}
	stateFileFlag = &cli.StringFlag{
		Name:     "statefile",
		Usage:    "path to persist the auction store snapshot across runs",
		Value:    "",
		Category: simCategory,
		EnvVars:  []string{"ENGINESIM_STATEFILE"},
	}
)

func appFlags() []cli.Flag {
	return []cli.Flag{
		listenAddrFlag,
		noTLSFlag,
		rpcCertFlag,
		rpcKeyFlag,
		logLevelFlag,
		scenarioFlag,
		stateFileFlag,
	}
}
