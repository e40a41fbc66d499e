package escrowd

import (
	"context"

	"github.com/moonpact/escrowd/suirpc"
)

// Ledger abstracts the subset of node RPC the application consumes,
// so the domain logic and tests run without a live endpoint.
// *suirpc.Client satisfies it.
type Ledger interface {
	QueryTransactions(ctx context.Context, owner string) ([]*suirpc.TransactionRecord, error)
	GetObject(ctx context.Context, id string) (*suirpc.ObjectSnapshot, error)
	MultiGetObjects(ctx context.Context, ids []string) ([]*suirpc.ObjectSnapshot, error)
	GetCoins(ctx context.Context, owner, coinType string) ([]*suirpc.Coin, error)
	GetBalance(ctx context.Context, owner, coinType string) (*suirpc.Balance, error)
	Execute(ctx context.Context, txBytes string, signatures []string) (string, error)
	WaitForTransaction(ctx context.Context, digest string) error
}

// EscrowContract locates the deployed contract: package id plus module
// name. Entry-point and type names are fixed by the contract.
type EscrowContract struct {
	PackageID string
	Module    string
}

const (
	createEntryPoint = "create_escrow"
	acceptEntryPoint = "accept_escrow"
	cancelEntryPoint = "cancel_escrow"

	escrowStructName = "Escrow"
)

// DefaultEscrowModule is the module name the contract ships under.
const DefaultEscrowModule = "simple_escrow"

// EscrowTypePrefix is the declared-type prefix of escrow objects
// created by this contract, before the generic parameters.
func (c EscrowContract) EscrowTypePrefix() string {
	return c.PackageID + "::" + c.Module + "::" + escrowStructName
}

// Matches reports whether a call invokes the given entry point of this
// contract.
func (c EscrowContract) Matches(call *suirpc.MoveCall, function string) bool {
	return call != nil &&
		call.Package == c.PackageID &&
		call.Module == c.Module &&
		call.Function == function
}
