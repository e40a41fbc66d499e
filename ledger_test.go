package escrowd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/moonpact/escrowd/suirpc"
)

const (
	testPackageID = "0xfe02aaaf954b752272ea188d398e36d1d117d3641f4b90d21b2f0df3dfcf18a2"
	testOwner     = "0xa11ce00000000000000000000000000000000000000000000000000000000001"

	coinTypeA = "0x2::sui::SUI"
	coinTypeB = testPackageID + "::mock_zsui::MOCK_ZSUI"
)

var testContract = EscrowContract{PackageID: testPackageID, Module: DefaultEscrowModule}

type fakeLedger struct {
	txs      []*suirpc.TransactionRecord
	objects  map[string]*suirpc.ObjectSnapshot
	coins    map[string][]*suirpc.Coin
	balances map[string]uint64

	queryCalls    int
	multiGetCalls int
	getObjCalls   int

	executeErr error
	digest     string

	onGetObject func(id string)
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		objects:  make(map[string]*suirpc.ObjectSnapshot),
		coins:    make(map[string][]*suirpc.Coin),
		balances: make(map[string]uint64),
		digest:   "FAKEDIGEST",
	}
}

func (f *fakeLedger) QueryTransactions(_ context.Context, owner string) ([]*suirpc.TransactionRecord, error) {
	f.queryCalls++
	return f.txs, nil
}

func (f *fakeLedger) GetObject(_ context.Context, id string) (*suirpc.ObjectSnapshot, error) {
	f.getObjCalls++
	if f.onGetObject != nil {
		f.onGetObject(id)
	}
	return f.objects[id], nil
}

func (f *fakeLedger) MultiGetObjects(_ context.Context, ids []string) ([]*suirpc.ObjectSnapshot, error) {
	f.multiGetCalls++

	out := make([]*suirpc.ObjectSnapshot, len(ids))
	for i, id := range ids {
		out[i] = f.objects[id]
	}
	return out, nil
}

func (f *fakeLedger) GetCoins(_ context.Context, owner, coinType string) ([]*suirpc.Coin, error) {
	return f.coins[owner+"|"+coinType], nil
}

func (f *fakeLedger) GetBalance(_ context.Context, owner, coinType string) (*suirpc.Balance, error) {
	return &suirpc.Balance{
		CoinType:     coinType,
		TotalBalance: suirpc.Uint64(f.balances[owner+"|"+coinType]),
	}, nil
}

func (f *fakeLedger) Execute(_ context.Context, txBytes string, _ []string) (string, error) {
	if f.executeErr != nil {
		return "", f.executeErr
	}
	return f.digest, nil
}

func (f *fakeLedger) WaitForTransaction(_ context.Context, digest string) error {
	if digest == "" {
		return errors.New("empty digest")
	}
	return nil
}

// createTxRecord builds a history entry holding one create_escrow call
// shaped like a real split-then-call transaction: input 0 is the
// source coin, input 1 the split amount, input 2 the requested amount.
func createTxRecord(digest, escrowID string, amount uint64, sig TypeSignature) *suirpc.TransactionRecord {
	rec := &suirpc.TransactionRecord{
		Digest: digest,
		Kind:   "ProgrammableTransaction",
		Inputs: []suirpc.InputSlot{
			{Type: "object", ObjectID: "0xc0in"},
			{Type: "pure", ValueType: "u64", Value: json.RawMessage(fmt.Sprintf("%q", fmt.Sprint(amount)))},
			{Type: "pure", ValueType: "u64", Value: json.RawMessage(fmt.Sprintf("%q", fmt.Sprint(amount)))},
		},
		Commands: []suirpc.Command{
			{SplitCoins: &suirpc.SplitCoins{
				Coin:    suirpc.InputArg(0),
				Amounts: []suirpc.Argument{suirpc.InputArg(1)},
			}},
			{MoveCall: &suirpc.MoveCall{
				Package:       testPackageID,
				Module:        DefaultEscrowModule,
				Function:      "create_escrow",
				TypeArguments: sig.TypeArguments(),
				Arguments:     []suirpc.Argument{suirpc.ResultArg(0), suirpc.InputArg(2)},
			}},
		},
	}

	if escrowID != "" {
		rec.ObjectChanges = []suirpc.ObjectChange{
			suirpc.CreatedObject{
				ObjectID:   escrowID,
				ObjectType: testContract.EscrowTypePrefix() + "<" + sig.Deposit + ", " + sig.Payment + ">",
			},
		}
	}

	return rec
}

// escrowSnapshot builds a live escrow object.
func escrowSnapshot(id string, sig TypeSignature, requested uint64, creator string) *suirpc.ObjectSnapshot {
	return &suirpc.ObjectSnapshot{
		ObjectID: id,
		Type:     testContract.EscrowTypePrefix() + "<" + sig.Deposit + ", " + sig.Payment + ">",
		Fields: map[string]any{
			"requested_amount": fmt.Sprint(requested),
			"creator":          creator,
			"deposit": map[string]any{
				"fields": map[string]any{"balance": fmt.Sprint(requested)},
			},
		},
	}
}
