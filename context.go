package escrowd

import (
	"context"
	"strings"

	"github.com/asaskevich/govalidator"
)

// Account is the authenticated wallet address acting on a request.
type Account struct {
	Address string `json:"address"`
}

type contextKey struct{}

var accountContextKey = contextKey{}

func WithAccount(ctx context.Context, account *Account) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}

func AccountFrom(ctx context.Context) (*Account, bool) {
	account, ok := ctx.Value(accountContextKey).(*Account)
	return account, ok
}

// IsAddress reports whether s looks like a ledger address or object
// id: 0x-prefixed hex.
func IsAddress(s string) bool {
	return strings.HasPrefix(s, "0x") &&
		len(s) > 2 &&
		govalidator.IsHexadecimal(s[2:])
}
