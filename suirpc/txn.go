package suirpc

import (
	"encoding/json"
	"strconv"
)

// TransactionIntent is an unsigned programmable transaction: the input
// vector plus the command list. It is handed to an external wallet for
// signing and submission; this client never signs.
type TransactionIntent struct {
	Kind     string      `json:"kind"`
	Inputs   []InputSlot `json:"inputs"`
	Commands []Command   `json:"transactions"`
}

// TransactionBuilder assembles a TransactionIntent command by command,
// mirroring the wallet SDK builder shape: inputs are appended on
// demand and commands reference them (or prior results) by index.
type TransactionBuilder struct {
	inputs   []InputSlot
	commands []Command
}

func NewTransactionBuilder() *TransactionBuilder {
	return &TransactionBuilder{}
}

func (b *TransactionBuilder) appendInput(slot InputSlot) Argument {
	b.inputs = append(b.inputs, slot)
	return InputArg(uint16(len(b.inputs) - 1))
}

// Object adds an owned-object input slot.
func (b *TransactionBuilder) Object(id string) Argument {
	return b.appendInput(InputSlot{
		Type:     "object",
		ObjectID: id,
	})
}

// PureUint64 adds a u64 literal input slot.
func (b *TransactionBuilder) PureUint64(v uint64) Argument {
	return b.appendInput(InputSlot{
		Type:      "pure",
		ValueType: "u64",
		Value:     json.RawMessage(strconv.Quote(strconv.FormatUint(v, 10))),
	})
}

// PureAddress adds an address literal input slot.
func (b *TransactionBuilder) PureAddress(addr string) Argument {
	return b.appendInput(InputSlot{
		Type:      "pure",
		ValueType: "address",
		Value:     json.RawMessage(strconv.Quote(addr)),
	})
}

// Gas references the transaction's gas coin.
func (b *TransactionBuilder) Gas() Argument {
	return GasArg()
}

func (b *TransactionBuilder) appendCommand(cmd Command) Argument {
	b.commands = append(b.commands, cmd)
	return ResultArg(uint16(len(b.commands) - 1))
}

// SplitCoins splits amounts off a source coin. The returned argument
// is the first split coin.
func (b *TransactionBuilder) SplitCoins(coin Argument, amounts ...Argument) Argument {
	return b.appendCommand(Command{
		SplitCoins: &SplitCoins{Coin: coin, Amounts: amounts},
	})
}

// MoveCall invokes a contract entry point.
func (b *TransactionBuilder) MoveCall(pkg, module, function string, typeArgs []string, args ...Argument) Argument {
	return b.appendCommand(Command{
		MoveCall: &MoveCall{
			Package:       pkg,
			Module:        module,
			Function:      function,
			TypeArguments: typeArgs,
			Arguments:     args,
		},
	})
}

// TransferObjects sends objects to a recipient address argument.
func (b *TransactionBuilder) TransferObjects(recipient Argument, objects ...Argument) {
	b.appendCommand(Command{
		TransferObjects: &TransferObjects{Objects: objects, Address: recipient},
	})
}

// Intent returns the assembled transaction.
func (b *TransactionBuilder) Intent() *TransactionIntent {
	return &TransactionIntent{
		Kind:     "ProgrammableTransaction",
		Inputs:   b.inputs,
		Commands: b.commands,
	}
}
