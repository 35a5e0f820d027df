package config

// PacingParams are the randomized order-sizing constants a sell strategy
// feeds into randgen.Source.RandomVolumeAmount.
type PacingParams struct {
	SingleAmt float64
	RandAmt1  float64
	RandAmt2  float64
	HoldVol   int64
}

// IntradayPacing derives the intraday strategy's pacing constants from
// the configured daily input amount: single_amt = input_amt * 0.025,
// rand_amt1 = input_amt * 0.02, rand_amt2 held at a fixed 5000 yuan
// jitter regardless of account size.
func (c *Config) IntradayPacing() PacingParams {
	return PacingParams{
		SingleAmt: c.Strategy.InputAmt * 0.025,
		RandAmt1:  c.Strategy.InputAmt * 0.02,
		RandAmt2:  5000,
		HoldVol:   c.Strategy.HoldVol,
	}
}

// AuctionPacing returns the opening-auction strategy's pacing constants.
// Unlike the intraday strategy these are not derived from input_amt: the
// auction window runs for under two minutes and the literal defaults
// observed in production (single_amt=20000, rand_amt1=40000) have not
// been shown to need scaling with account size, so they are kept as
// fixed constants pending real operating data to the contrary.
func (c *Config) AuctionPacing() PacingParams {
	return PacingParams{
		SingleAmt: 20000,
		RandAmt1:  40000,
		RandAmt2:  5000,
		HoldVol:   c.Strategy.HoldVol,
	}
}

// ClosePacing returns the closing-auction strategy's pacing constants,
// kept fixed for the same reason as AuctionPacing.
func (c *Config) ClosePacing() PacingParams {
	return PacingParams{
		SingleAmt: 30000,
		RandAmt1:  50000,
		RandAmt2:  5000,
		HoldVol:   c.Strategy.HoldVol,
	}
}
