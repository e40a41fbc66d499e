package escrowd

import (
	"time"

	"github.com/moonpact/escrowd/suirpc"
)

type EscrowStatus string

const (
	// EscrowOpen means the on-chain object still resolves.
	EscrowOpen EscrowStatus = "Open"
	// EscrowClosed means the object was consumed by accept or cancel.
	EscrowClosed EscrowStatus = "Closed"
)

// TypeSignature is the ordered pair of qualified type identifiers an
// escrow is instantiated with. Both strings are kept verbatim so
// encoding round-trips byte for byte.
type TypeSignature struct {
	Deposit string `json:"deposit"`
	Payment string `json:"payment"`
}

// EscrowRecord is one observed contract instance. The ledger object is
// canonical; records are a projection and never mutated locally.
type EscrowRecord struct {
	ID              string        `json:"id"`
	TypeSignature   TypeSignature `json:"type_signature"`
	RequestedAmount uint64        `json:"requested_amount"`
	// AmountKnown is false when the creation literal could not be
	// recovered and no live field was readable.
	AmountKnown  bool         `json:"amount_known"`
	Creator      string       `json:"creator"`
	Status       EscrowStatus `json:"status"`
	OriginDigest string       `json:"origin_digest"`
}

// CoinHandle is one spendable value object.
type CoinHandle struct {
	ObjectID  string `json:"object_id"`
	Owner     string `json:"owner"`
	AssetType string `json:"asset_type"`
	Balance   uint64 `json:"balance"`
}

func coinHandle(owner string, c *suirpc.Coin) CoinHandle {
	return CoinHandle{
		ObjectID:  c.CoinObjectID,
		Owner:     owner,
		AssetType: c.CoinType,
		Balance:   uint64(c.Balance),
	}
}

// EscrowDetail is the live view of one escrow object, as resolved for
// the accept and cancel flows. The type signature always comes from
// the object's declared type string, never from user input.
type EscrowDetail struct {
	ID              string        `json:"id"`
	RawType         string        `json:"raw_type"`
	TypeSignature   TypeSignature `json:"type_signature"`
	TypeKnown       bool          `json:"type_known"`
	RequestedAmount uint64        `json:"requested_amount"`
	DepositBalance  uint64        `json:"deposit_balance"`
	Creator         string        `json:"creator"`
}

// Listing is a reconciled escrow view for one address, cached with its
// refresh time.
type Listing struct {
	Owner     string          `json:"owner"`
	Escrows   []*EscrowRecord `json:"escrows"`
	UpdatedAt time.Time       `json:"updated_at"`
}
