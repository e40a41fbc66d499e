package escrowd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/moonpact/escrowd/suirpc"
	"github.com/zyedidia/generic/mapset"
)

// Reconciler rebuilds the full set of escrows an address has created
// by replaying its transaction history against current object state.
// There is no server-side index for this; the projection is pure and
// idempotent, so it can be recomputed on demand.
type Reconciler struct {
	ledger   Ledger
	contract EscrowContract
}

func NewReconciler(ledger Ledger, contract EscrowContract) *Reconciler {
	return &Reconciler{ledger: ledger, contract: contract}
}

// provisional is a record as recovered from the origin transaction,
// before the live-object merge.
type provisional struct {
	record *EscrowRecord
}

// Reconcile runs the two-phase scan: history first, then one batched
// object fetch over the ids the history yielded. The phases cannot
// overlap; the ids to fetch are only known once the scan completes.
func (r *Reconciler) Reconcile(ctx context.Context, owner string) ([]*EscrowRecord, error) {
	txs, err := r.ledger.QueryTransactions(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("query transactions failed: %w", err)
	}

	provisionals := r.scan(owner, txs)
	if len(provisionals) == 0 {
		// no creation calls at all; skip the object fetch entirely
		return []*EscrowRecord{}, nil
	}

	ids := make([]string, len(provisionals))
	for i, p := range provisionals {
		ids[i] = p.record.ID
	}

	snapshots, err := r.ledger.MultiGetObjects(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch objects failed: %w", err)
	}

	byID := make(map[string]*suirpc.ObjectSnapshot, len(snapshots))
	for _, snap := range snapshots {
		if snap != nil {
			byID[snap.ObjectID] = snap
		}
	}

	records := make([]*EscrowRecord, 0, len(provisionals))
	for _, p := range provisionals {
		records = append(records, merge(p.record, byID[p.record.ID]))
	}

	slog.Info("reconciled escrows", "owner", owner, "txs", len(txs), "records", len(records))
	return records, nil
}

// scan walks the history newest-first and extracts one provisional
// record per successful create_escrow call. Paged history can repeat a
// transaction across page boundaries; digests are deduplicated, but
// multiple create calls inside one composite transaction each yield
// their own record.
func (r *Reconciler) scan(owner string, txs []*suirpc.TransactionRecord) []provisional {
	seen := mapset.New[string]()

	var out []provisional
	for _, tx := range txs {
		if seen.Has(tx.Digest) {
			continue
		}
		seen.Put(tx.Digest)

		out = append(out, r.scanTransaction(owner, tx)...)
	}

	return out
}

func (r *Reconciler) scanTransaction(owner string, tx *suirpc.TransactionRecord) []provisional {
	createdIDs := r.createdEscrowIDs(tx)

	var (
		out     []provisional
		created int
	)

	for _, cmd := range tx.Commands {
		if !r.contract.Matches(cmd.MoveCall, createEntryPoint) {
			continue
		}

		if created >= len(createdIDs) {
			// e.g. aborted atomically downstream: the call ran but no
			// escrow object survived. Not a record.
			slog.Warn("create call without created escrow object", "digest", tx.Digest)
			continue
		}

		rec := &EscrowRecord{
			ID:           createdIDs[created],
			Creator:      owner,
			OriginDigest: tx.Digest,
		}
		created++

		if sig, ok := NewTypeSignature(cmd.MoveCall.TypeArguments); ok {
			rec.TypeSignature = sig
		} else if len(cmd.MoveCall.TypeArguments) == 2 {
			// malformed but binary: keep raw strings for display
			rec.TypeSignature = TypeSignature{
				Deposit: cmd.MoveCall.TypeArguments[0],
				Payment: cmd.MoveCall.TypeArguments[1],
			}
		}

		// Fallback value source: the requested amount was passed as a
		// pure literal, recoverable from the transaction's own input
		// slots. Resolve it now; the inputs are already in hand.
		if amount, ok := requestedAmountLiteral(cmd.MoveCall, tx.Inputs); ok {
			rec.RequestedAmount = amount
			rec.AmountKnown = true
		}

		out = append(out, provisional{record: rec})
	}

	return out
}

// createdEscrowIDs collects, in order, the ids of escrow objects this
// transaction created. The k-th create call pairs with the k-th
// created escrow object.
func (r *Reconciler) createdEscrowIDs(tx *suirpc.TransactionRecord) []string {
	prefix := r.contract.EscrowTypePrefix()

	var ids []string
	for _, change := range tx.ObjectChanges {
		switch c := change.(type) {
		case suirpc.CreatedObject:
			if strings.HasPrefix(c.ObjectType, prefix) {
				ids = append(ids, c.ObjectID)
			}
		case suirpc.MutatedObject, suirpc.DeletedObject:
			// split coins and consumed escrows; not creations
		}
	}

	return ids
}

// requestedAmountLiteral recovers the requested amount from the second
// call argument when it is an input-slot reference over a pure u64.
func requestedAmountLiteral(call *suirpc.MoveCall, inputs []suirpc.InputSlot) (uint64, bool) {
	if len(call.Arguments) < 2 {
		return 0, false
	}

	arg := call.Arguments[1]
	if arg.Input == nil || int(*arg.Input) >= len(inputs) {
		return 0, false
	}

	return inputs[*arg.Input].PureUint64()
}

// merge classifies a provisional record against the batched snapshot.
// A missing snapshot means the object was consumed: Closed, with the
// creation-time amount kept (it is immutable once set, so the value
// recovered at creation stays authoritative after the object is gone).
// A live snapshot means Open, and its requested_amount field replaces
// the literal-argument heuristic.
func merge(rec *EscrowRecord, snap *suirpc.ObjectSnapshot) *EscrowRecord {
	if snap == nil {
		rec.Status = EscrowClosed
		return rec
	}

	rec.Status = EscrowOpen
	if amount, ok := snap.FieldUint64("requested_amount"); ok {
		rec.RequestedAmount = amount
		rec.AmountKnown = true
	}

	if creator, ok := snap.FieldString("creator"); ok {
		rec.Creator = creator
	}

	return rec
}
