package escrowd

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// AssetBalance is one coin type's aggregate balance, with the scaled
// display string alongside the base units.
type AssetBalance struct {
	CoinType string `json:"coin_type"`
	Label    string `json:"label"`
	Total    uint64 `json:"total"`
	Display  string `json:"display"`
}

// ListBalances fans out one balance query per configured coin type.
// The fetches are independent; no ordering between them, only the
// result slice keeps the configured order.
func (s *Server) ListBalances(ctx context.Context, owner string) ([]*AssetBalance, error) {
	if cached, ok := s.balances.Get(owner); ok {
		return cached, nil
	}

	out := make([]*AssetBalance, len(s.cfg.CoinTypes))

	g, ctx := errgroup.WithContext(ctx)
	for i, coinType := range s.cfg.CoinTypes {
		i, coinType := i, coinType

		g.Go(func() error {
			balance, err := s.ledger.GetBalance(ctx, owner, coinType)
			if err != nil {
				return fmt.Errorf("get balance of %s failed: %w", coinType, err)
			}

			total := uint64(balance.TotalBalance)
			out[i] = &AssetBalance{
				CoinType: coinType,
				Label:    ShortLabel(coinType),
				Total:    total,
				Display:  FormatAmount(total),
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.balances.Set(owner, out)
	return out, nil
}
