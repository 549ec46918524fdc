package match

import "fmt"

// Split configures how a prize pool divides between the winner and the
// operator. Percentages must sum to 100.
type Split struct {
	WinnerPercent   int
	OperatorPercent int
}

// DefaultSplit is the 80/20 house split.
var DefaultSplit = Split{WinnerPercent: 80, OperatorPercent: 20}

// Validate rejects malformed splits before they reach settlement.
func (s Split) Validate() error {
	if s.WinnerPercent < 0 || s.OperatorPercent < 0 {
		return fmt.Errorf("prize split percentages must be non-negative: winner=%d operator=%d", s.WinnerPercent, s.OperatorPercent)
	}
	if s.WinnerPercent+s.OperatorPercent != 100 {
		return fmt.Errorf("prize split must sum to 100, got %d", s.WinnerPercent+s.OperatorPercent)
	}
	return nil
}

// Distribution is the computed payout for one match.
type Distribution struct {
	Pool         int64 `json:"pool"`
	WinnerAmount int64 `json:"winner_amount"`
	OperatorFee  int64 `json:"operator_fee"`
}

// Distribute computes the winner payout and operator fee for a stake.
// The pool is both players' stakes; the winner share is floored and the fee
// takes the remainder, so WinnerAmount + OperatorFee == Pool exactly.
// Example: stake 1000, 80% winner -> pool 2000, winner 1600, fee 400.
func Distribute(stake int64, split Split) Distribution {
	pool := 2 * stake
	winner := pool * int64(split.WinnerPercent) / 100
	return Distribution{
		Pool:         pool,
		WinnerAmount: winner,
		OperatorFee:  pool - winner,
	}
}
