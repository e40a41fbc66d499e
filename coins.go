package escrowd

import (
	"context"
	"fmt"
)

// CoinSelector lists spendable coins and picks spend candidates.
type CoinSelector struct {
	ledger Ledger
}

func NewCoinSelector(ledger Ledger) CoinSelector {
	return CoinSelector{ledger: ledger}
}

// ListCoins is a fresh query each call; there is no cursor to resume.
func (s CoinSelector) ListCoins(ctx context.Context, owner, assetType string) ([]CoinHandle, error) {
	coins, err := s.ledger.GetCoins(ctx, owner, assetType)
	if err != nil {
		return nil, fmt.Errorf("list coins failed: %w", err)
	}

	handles := make([]CoinHandle, 0, len(coins))
	for _, c := range coins {
		handles = append(handles, coinHandle(owner, c))
	}

	return handles, nil
}

// SelectSpendCandidate picks the first coin with sufficient balance.
func SelectSpendCandidate(coins []CoinHandle, minAmount uint64) (CoinHandle, bool) {
	for _, c := range coins {
		if c.Balance >= minAmount {
			return c, true
		}
	}

	return CoinHandle{}, false
}

// FindCoin resolves a handle by object id.
func FindCoin(coins []CoinHandle, objectID string) (CoinHandle, bool) {
	for _, c := range coins {
		if c.ObjectID == objectID {
			return c, true
		}
	}

	return CoinHandle{}, false
}

// PaymentCoinPicker holds the payment-coin choice for the accept flow.
// The first refresh with coins available auto-selects one so the user
// does not have to; refreshing again with an unchanged set never moves
// the choice.
type PaymentCoinPicker struct {
	chosen string
}

// Refresh reconciles the choice with a freshly listed coin set and
// returns the chosen object id, empty when no coin is available.
func (p *PaymentCoinPicker) Refresh(coins []CoinHandle) string {
	if p.chosen != "" {
		if _, ok := FindCoin(coins, p.chosen); ok {
			return p.chosen
		}
		// chosen coin was spent or moved away
		p.chosen = ""
	}

	if len(coins) > 0 {
		p.chosen = coins[0].ObjectID
	}

	return p.chosen
}

func (p *PaymentCoinPicker) Chosen() string {
	return p.chosen
}

func (p *PaymentCoinPicker) Reset() {
	p.chosen = ""
}
