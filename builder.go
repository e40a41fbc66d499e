package escrowd

import (
	"errors"

	"github.com/moonpact/escrowd/suirpc"
)

// Precondition failures. None of these ever reaches the ledger: a
// command that fails Validate is not submitted.
var (
	ErrNoAccount            = errors.New("no account")
	ErrNoCoinSelected       = errors.New("no coin selected")
	ErrNoEscrowSelected     = errors.New("no escrow selected")
	ErrZeroAmount           = errors.New("amount must be positive")
	ErrSameAssetType        = errors.New("deposit and payment coin must be different")
	ErrCoinTypeMismatch     = errors.New("selected coin does not match the asset type")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrUnknownTypeSignature = errors.New("escrow type signature unavailable")
)

// CreateCommand locks a deposit and asks for a payment in return.
// RequestedAmount stays independently settable; NewCreateCommand
// applies the 1:1 policy but Validate does not require it.
type CreateCommand struct {
	Owner           string
	DepositCoin     CoinHandle
	DepositType     string
	PaymentType     string
	DepositAmount   uint64
	RequestedAmount uint64
}

// NewCreateCommand fills the command with the requested amount matched
// 1:1 to the deposit, which is how every escrow in this system is
// created.
func NewCreateCommand(owner string, coin CoinHandle, paymentType string, amount uint64) CreateCommand {
	return CreateCommand{
		Owner:           owner,
		DepositCoin:     coin,
		DepositType:     coin.AssetType,
		PaymentType:     paymentType,
		DepositAmount:   amount,
		RequestedAmount: amount,
	}
}

func (cmd CreateCommand) Validate() error {
	switch {
	case cmd.Owner == "":
		return ErrNoAccount
	case cmd.DepositCoin.ObjectID == "":
		return ErrNoCoinSelected
	case cmd.DepositAmount == 0 || cmd.RequestedAmount == 0:
		return ErrZeroAmount
	case cmd.DepositType == cmd.PaymentType:
		return ErrSameAssetType
	case cmd.DepositCoin.AssetType != cmd.DepositType:
		return ErrCoinTypeMismatch
	case cmd.DepositCoin.Balance < cmd.DepositAmount:
		return ErrInsufficientBalance
	}

	return nil
}

// Build assembles the create intent: split the deposit amount off the
// source coin, then invoke create_escrow with the split coin and the
// requested amount.
func (cmd CreateCommand) Build(contract EscrowContract) (*suirpc.TransactionIntent, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	b := suirpc.NewTransactionBuilder()
	deposit := b.SplitCoins(b.Object(cmd.DepositCoin.ObjectID), b.PureUint64(cmd.DepositAmount))
	b.MoveCall(
		contract.PackageID,
		contract.Module,
		createEntryPoint,
		[]string{cmd.DepositType, cmd.PaymentType},
		deposit,
		b.PureUint64(cmd.RequestedAmount),
	)

	return b.Intent(), nil
}

// AcceptCommand pays a live escrow's requested amount and takes the
// deposit. It is always constructed from the live object via
// NewAcceptCommand so the type arguments cannot disagree with the
// object.
type AcceptCommand struct {
	Owner           string
	EscrowID        string
	PaymentCoin     CoinHandle
	Signature       TypeSignature
	RequestedAmount uint64
	Creator         string
}

func NewAcceptCommand(owner string, detail *EscrowDetail, paymentCoin CoinHandle) AcceptCommand {
	return AcceptCommand{
		Owner:           owner,
		EscrowID:        detail.ID,
		PaymentCoin:     paymentCoin,
		Signature:       detail.TypeSignature,
		RequestedAmount: detail.RequestedAmount,
		Creator:         detail.Creator,
	}
}

// SelfTrade reports whether the acting account created this escrow.
// Allowed, but surfaced as a warning.
func (cmd AcceptCommand) SelfTrade() bool {
	return cmd.Creator != "" && cmd.Creator == cmd.Owner
}

func (cmd AcceptCommand) Validate() error {
	switch {
	case cmd.Owner == "":
		return ErrNoAccount
	case cmd.EscrowID == "":
		return ErrNoEscrowSelected
	case cmd.Signature.IsZero():
		return ErrUnknownTypeSignature
	case cmd.PaymentCoin.ObjectID == "":
		return ErrNoCoinSelected
	case cmd.PaymentCoin.AssetType != cmd.Signature.Payment:
		return ErrCoinTypeMismatch
	case cmd.PaymentCoin.Balance < cmd.RequestedAmount:
		return ErrInsufficientBalance
	}

	return nil
}

func (cmd AcceptCommand) Build(contract EscrowContract) (*suirpc.TransactionIntent, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	b := suirpc.NewTransactionBuilder()
	payment := b.SplitCoins(b.Object(cmd.PaymentCoin.ObjectID), b.PureUint64(cmd.RequestedAmount))
	b.MoveCall(
		contract.PackageID,
		contract.Module,
		acceptEntryPoint,
		cmd.Signature.TypeArguments(),
		b.Object(cmd.EscrowID),
		payment,
	)

	return b.Intent(), nil
}

// CancelCommand returns an escrow's deposit to its creator. Whether
// the escrow is still cancellable is contract-enforced; a rejection at
// submission time is a normal failure, not something the client can
// pre-check.
type CancelCommand struct {
	Owner     string
	EscrowID  string
	Signature TypeSignature
}

func NewCancelCommand(owner string, detail *EscrowDetail) CancelCommand {
	return CancelCommand{
		Owner:     owner,
		EscrowID:  detail.ID,
		Signature: detail.TypeSignature,
	}
}

func (cmd CancelCommand) Validate() error {
	switch {
	case cmd.Owner == "":
		return ErrNoAccount
	case cmd.EscrowID == "":
		return ErrNoEscrowSelected
	case cmd.Signature.IsZero():
		return ErrUnknownTypeSignature
	}

	return nil
}

func (cmd CancelCommand) Build(contract EscrowContract) (*suirpc.TransactionIntent, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	b := suirpc.NewTransactionBuilder()
	b.MoveCall(
		contract.PackageID,
		contract.Module,
		cancelEntryPoint,
		cmd.Signature.TypeArguments(),
		b.Object(cmd.EscrowID),
	)

	return b.Intent(), nil
}
