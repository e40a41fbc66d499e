package escrowd

import (
	"errors"

	"github.com/moonpact/escrowd/suirpc"
)

var ErrInvalidRecipient = errors.New("invalid recipient address")

// TransferCommand moves native coin to another address: split the
// amount off the gas coin and transfer the split. Pass-through
// surface; submission and signing stay with the wallet.
type TransferCommand struct {
	Owner     string
	Recipient string
	Amount    uint64
}

func (cmd TransferCommand) Validate() error {
	switch {
	case cmd.Owner == "":
		return ErrNoAccount
	case !IsAddress(cmd.Recipient):
		return ErrInvalidRecipient
	case cmd.Amount == 0:
		return ErrZeroAmount
	}

	return nil
}

func (cmd TransferCommand) Build() (*suirpc.TransactionIntent, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	b := suirpc.NewTransactionBuilder()
	coin := b.SplitCoins(b.Gas(), b.PureUint64(cmd.Amount))
	b.TransferObjects(b.PureAddress(cmd.Recipient), coin)

	return b.Intent(), nil
}
