// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package auction

import (
	"math/big"

	"github.com/fasttransfer/matchingengine/internal/auctionconfig"
)

// Penalty computes the (penalty, userReward) split of deposit owed after
// blocksElapsed blocks, per the linear penalty curve: zero within the grace
// window, ramping from InitialPenaltyBps to 100% over PenaltyBlocks blocks
// past the window, then capped at deposit.
//
// total is computed first with a single division, then split into penalty
// and userReward, avoiding double-rounding drift between the two.
func Penalty(cfg *auctionconfig.Config, deposit *big.Int, blocksElapsed uint32) (penalty, userReward *big.Int) {
	g := cfg.AuctionDuration + cfg.AuctionGracePeriod
	if blocksElapsed <= g {
		return big.NewInt(0), big.NewInt(0)
	}

	over := blocksElapsed - g
	var scaledBps uint64
	if over >= cfg.PenaltyBlocks {
		scaledBps = auctionconfig.BpsDenominator
	} else {
		span := uint64(auctionconfig.BpsDenominator) - uint64(cfg.InitialPenaltyBps)
		scaledBps = uint64(cfg.InitialPenaltyBps) + span*uint64(over)/uint64(cfg.PenaltyBlocks)
	}

	total := new(big.Int).Mul(deposit, big.NewInt(int64(scaledBps)))
	total.Div(total, big.NewInt(auctionconfig.BpsDenominator))

	userReward = new(big.Int).Mul(total, big.NewInt(int64(cfg.UserPenaltyRewardBps)))
	userReward.Div(userReward, big.NewInt(auctionconfig.BpsDenominator))

	penalty = new(big.Int).Sub(total, userReward)
	return penalty, userReward
}
