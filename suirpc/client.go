package suirpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	errMalformedArgument = errors.New("suirpc: malformed command argument")
	errMalformedCommand  = errors.New("suirpc: malformed command")
)

// RPCError is a JSON-RPC level failure returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("suirpc: rpc error %d: %s", e.Code, e.Message)
}

// Client speaks the node's JSON-RPC surface. It covers only the calls
// the application consumes.
type Client struct {
	endpoint string
	http     *resty.Client
}

func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		http: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("Content-Type", "application/json"),
	}
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post(c.endpoint)

	if err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}

	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return fmt.Errorf("%s decode failed: %w", method, err)
	}

	if envelope.Error != nil {
		return envelope.Error
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("%s decode result failed: %w", method, err)
		}
	}

	return nil
}

type wireTransactionBlock struct {
	Digest      string `json:"digest"`
	TimestampMs Uint64 `json:"timestampMs"`
	Transaction struct {
		Data struct {
			Sender      string `json:"sender"`
			Transaction struct {
				Kind     string      `json:"kind"`
				Inputs   []InputSlot `json:"inputs"`
				Commands []Command   `json:"transactions"`
			} `json:"transaction"`
		} `json:"data"`
	} `json:"transaction"`
	ObjectChanges []json.RawMessage `json:"objectChanges"`
}

func (w *wireTransactionBlock) record() (*TransactionRecord, error) {
	rec := &TransactionRecord{
		Digest:      w.Digest,
		Sender:      w.Transaction.Data.Sender,
		Kind:        w.Transaction.Data.Transaction.Kind,
		Inputs:      w.Transaction.Data.Transaction.Inputs,
		Commands:    w.Transaction.Data.Transaction.Commands,
		TimestampMs: int64(w.TimestampMs),
	}

	for _, raw := range w.ObjectChanges {
		change, err := decodeObjectChange(raw)
		if err != nil {
			return nil, err
		}
		if change != nil {
			rec.ObjectChanges = append(rec.ObjectChanges, change)
		}
	}

	return rec, nil
}

// QueryTransactions pages through every transaction sent by owner,
// newest first, with inputs and object changes populated.
func (c *Client) QueryTransactions(ctx context.Context, owner string) ([]*TransactionRecord, error) {
	query := map[string]any{
		"filter": map[string]any{"FromAddress": owner},
		"options": map[string]any{
			"showInput":         true,
			"showEffects":       true,
			"showObjectChanges": true,
		},
	}

	var (
		records []*TransactionRecord
		cursor  any
	)

	for {
		var page struct {
			Data        []wireTransactionBlock `json:"data"`
			NextCursor  *string                `json:"nextCursor"`
			HasNextPage bool                   `json:"hasNextPage"`
		}

		if err := c.call(ctx, "suix_queryTransactionBlocks", []any{query, cursor, nil, true}, &page); err != nil {
			return nil, err
		}

		for i := range page.Data {
			rec, err := page.Data[i].record()
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}

		if !page.HasNextPage || page.NextCursor == nil {
			break
		}
		cursor = *page.NextCursor
	}

	return records, nil
}

type wireObject struct {
	Data *struct {
		ObjectID string `json:"objectId"`
		Type     string `json:"type"`
		Content  *struct {
			DataType string         `json:"dataType"`
			Fields   map[string]any `json:"fields"`
		} `json:"content"`
	} `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func (w *wireObject) snapshot() *ObjectSnapshot {
	if w.Data == nil {
		return nil
	}

	snap := &ObjectSnapshot{
		ObjectID: w.Data.ObjectID,
		Type:     w.Data.Type,
	}

	if w.Data.Content != nil && w.Data.Content.DataType == "moveObject" {
		snap.Fields = w.Data.Content.Fields
	}

	return snap
}

var objectOptions = map[string]any{
	"showType":    true,
	"showContent": true,
}

// GetObject resolves one object. A nil snapshot with nil error means
// the object no longer exists.
func (c *Client) GetObject(ctx context.Context, id string) (*ObjectSnapshot, error) {
	var obj wireObject
	if err := c.call(ctx, "sui_getObject", []any{id, objectOptions}, &obj); err != nil {
		return nil, err
	}

	return obj.snapshot(), nil
}

// MultiGetObjects resolves a batch of objects in one request. The
// result is positional: ids[i] resolves to out[i], nil when absent.
func (c *Client) MultiGetObjects(ctx context.Context, ids []string) ([]*ObjectSnapshot, error) {
	var objs []wireObject
	if err := c.call(ctx, "sui_multiGetObjects", []any{ids, objectOptions}, &objs); err != nil {
		return nil, err
	}

	out := make([]*ObjectSnapshot, len(objs))
	for i := range objs {
		out[i] = objs[i].snapshot()
	}

	return out, nil
}

// GetCoins pages through owner's coins of one type.
func (c *Client) GetCoins(ctx context.Context, owner, coinType string) ([]*Coin, error) {
	var (
		coins  []*Coin
		cursor any
	)

	for {
		var page struct {
			Data        []*Coin `json:"data"`
			NextCursor  *string `json:"nextCursor"`
			HasNextPage bool    `json:"hasNextPage"`
		}

		if err := c.call(ctx, "suix_getCoins", []any{owner, coinType, cursor, nil}, &page); err != nil {
			return nil, err
		}

		coins = append(coins, page.Data...)

		if !page.HasNextPage || page.NextCursor == nil {
			break
		}
		cursor = *page.NextCursor
	}

	return coins, nil
}

// GetBalance returns the aggregate balance of one coin type.
func (c *Client) GetBalance(ctx context.Context, owner, coinType string) (*Balance, error) {
	var balance Balance
	if err := c.call(ctx, "suix_getBalance", []any{owner, coinType}, &balance); err != nil {
		return nil, err
	}

	return &balance, nil
}

// Execute submits an externally signed transaction and returns its
// digest.
func (c *Client) Execute(ctx context.Context, txBytes string, signatures []string) (string, error) {
	var result struct {
		Digest string `json:"digest"`
	}

	params := []any{txBytes, signatures, nil, nil}
	if err := c.call(ctx, "sui_executeTransactionBlock", params, &result); err != nil {
		return "", err
	}

	return result.Digest, nil
}

// WaitForTransaction polls until the digest is queryable. Confirmation
// does not imply the object-change projection is visible to reads;
// callers re-fetch explicitly.
func (c *Client) WaitForTransaction(ctx context.Context, digest string) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		var result struct {
			Digest string `json:"digest"`
		}

		err := c.call(ctx, "sui_getTransactionBlock", []any{digest, map[string]any{}}, &result)
		if err == nil && result.Digest == digest {
			return nil
		}

		var rpcErr *RPCError
		if err != nil && !errors.As(err, &rpcErr) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
