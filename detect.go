package escrowd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
)

var (
	ErrEscrowNotFound = errors.New("escrow object does not resolve")
	// ErrDetectionSuperseded means a newer detection was requested
	// before this one completed; its result must not be applied.
	ErrDetectionSuperseded = errors.New("detection superseded")
)

// Detector derives an escrow's type signature and live fields from the
// object itself. Every request bumps a generation counter; a result
// whose generation is no longer current is discarded, so a stale fetch
// can never overwrite state derived from a newer escrow id.
type Detector struct {
	ledger   Ledger
	contract EscrowContract
	gen      atomic.Uint64
}

func NewDetector(ledger Ledger, contract EscrowContract) *Detector {
	return &Detector{ledger: ledger, contract: contract}
}

// Detect resolves the live object under a fresh generation. When the
// id changes again mid-flight the stale result is dropped and
// ErrDetectionSuperseded returned.
func (d *Detector) Detect(ctx context.Context, id string) (*EscrowDetail, error) {
	gen := d.gen.Add(1)

	detail, err := d.inspect(ctx, id)

	if d.gen.Load() != gen {
		return nil, ErrDetectionSuperseded
	}

	return detail, err
}

func (d *Detector) inspect(ctx context.Context, id string) (*EscrowDetail, error) {
	snap, err := d.ledger.GetObject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch escrow object failed: %w", err)
	}

	if snap == nil {
		return nil, ErrEscrowNotFound
	}

	detail := &EscrowDetail{
		ID:      id,
		RawType: snap.Type,
	}

	// Parse failure is non-fatal: callers show the raw type string and
	// lose only the type-dependent conveniences.
	if sig, ok := ParseEscrowType(snap.Type); ok {
		detail.TypeSignature = sig
		detail.TypeKnown = true
	}

	if amount, ok := snap.FieldUint64("requested_amount"); ok {
		detail.RequestedAmount = amount
	}

	if creator, ok := snap.FieldString("creator"); ok {
		detail.Creator = creator
	}

	detail.DepositBalance = depositBalance(snap.Fields)

	return detail, nil
}

// depositBalance probes the deposit field, which nests differently
// depending on how the node renders the wrapped coin: a plain number,
// or an object carrying fields.value or fields.balance.
func depositBalance(fields map[string]any) uint64 {
	v, ok := fields["deposit"]
	if !ok {
		return 0
	}

	if n, ok := fieldAsUint64(v); ok {
		return n
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return 0
	}

	inner, ok := obj["fields"].(map[string]any)
	if !ok {
		return 0
	}

	if n, ok := fieldAsUint64(inner["value"]); ok {
		return n
	}
	if n, ok := fieldAsUint64(inner["balance"]); ok {
		return n
	}

	return 0
}

func fieldAsUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case string:
		out, err := strconv.ParseUint(n, 10, 64)
		return out, err == nil
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}
