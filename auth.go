package escrowd

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
	"github.com/twitchtv/twirp"
	"github.com/yiplee/go-cache"
)

func extractBearerToken(r *http.Request) string {
	token := r.Header.Get("Authorization")
	return strings.TrimPrefix(token, "Bearer ")
}

// handleAuth binds the wallet address on the token's subject claim to
// the request context. Parsed tokens are cached until they expire out.
func handleAuth(issuer string, secret []byte) func(next http.Handler) http.Handler {
	accounts := cache.New[string, *Account]()

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}

		return secret, nil
	}

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := extractBearerToken(r)

			if account, ok := accounts.Get(token); ok {
				next.ServeHTTP(w, r.WithContext(WithAccount(ctx, account)))
				return
			}

			var claim jwt.StandardClaims
			if _, err := jwt.ParseWithClaims(token, &claim, keyFunc); err != nil {
				_ = twirp.WriteError(w, twirp.Unauthenticated.Error(err.Error()))
				return
			}

			if claim.Issuer != issuer {
				_ = twirp.WriteError(w, twirp.NewError(twirp.Unauthenticated, "auth required"))
				return
			}

			if !IsAddress(claim.Subject) {
				_ = twirp.WriteError(w, twirp.Unauthenticated.Error("invalid subject address"))
				return
			}

			account := &Account{Address: claim.Subject}
			accounts.Set(token, account)

			next.ServeHTTP(w, r.WithContext(WithAccount(ctx, account)))
		}

		return http.HandlerFunc(fn)
	}
}
