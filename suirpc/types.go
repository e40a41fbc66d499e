package suirpc

import (
	"encoding/json"
	"strconv"
)

// Uint64 decodes the quoted decimal integers the node returns for
// balances and versions.
type Uint64 uint64

func (u *Uint64) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}

	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}

	*u = Uint64(v)
	return nil
}

func (u Uint64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatUint(uint64(u), 10))), nil
}

// Argument references a value usable by a programmable transaction
// command: an input slot, a prior command's result, or the gas coin.
type Argument struct {
	Input        *uint16
	Result       *uint16
	NestedResult *[2]uint16
	GasCoin      bool
}

func InputArg(i uint16) Argument  { return Argument{Input: &i} }
func ResultArg(i uint16) Argument { return Argument{Result: &i} }

func NestedResultArg(i, j uint16) Argument {
	v := [2]uint16{i, j}
	return Argument{NestedResult: &v}
}

func GasArg() Argument { return Argument{GasCoin: true} }

func (a Argument) MarshalJSON() ([]byte, error) {
	switch {
	case a.GasCoin:
		return json.Marshal("GasCoin")
	case a.Input != nil:
		return json.Marshal(map[string]uint16{"Input": *a.Input})
	case a.Result != nil:
		return json.Marshal(map[string]uint16{"Result": *a.Result})
	case a.NestedResult != nil:
		return json.Marshal(map[string][2]uint16{"NestedResult": *a.NestedResult})
	}

	return nil, errMalformedArgument
}

func (a *Argument) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s != "GasCoin" {
			return errMalformedArgument
		}

		a.GasCoin = true
		return nil
	}

	var obj struct {
		Input        *uint16    `json:"Input"`
		Result       *uint16    `json:"Result"`
		NestedResult *[2]uint16 `json:"NestedResult"`
	}

	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}

	a.Input = obj.Input
	a.Result = obj.Result
	a.NestedResult = obj.NestedResult
	return nil
}

// InputSlot is one entry of a transaction's positional input vector.
type InputSlot struct {
	Type      string          `json:"type"` // "pure" or "object"
	ValueType string          `json:"valueType,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	ObjectID  string          `json:"objectId,omitempty"`
}

// PureUint64 reports the slot's value as a u64 literal. The node
// serializes pure u64 values as quoted decimal strings; plain numbers
// are accepted too.
func (s InputSlot) PureUint64() (uint64, bool) {
	if s.Type != "pure" || len(s.Value) == 0 {
		return 0, false
	}

	var qs string
	if err := json.Unmarshal(s.Value, &qs); err == nil {
		v, err := strconv.ParseUint(qs, 10, 64)
		return v, err == nil
	}

	var n uint64
	if err := json.Unmarshal(s.Value, &n); err == nil {
		return n, true
	}

	return 0, false
}

// MoveCall is a contract entry-point invocation within a transaction.
type MoveCall struct {
	Package       string     `json:"package"`
	Module        string     `json:"module"`
	Function      string     `json:"function"`
	TypeArguments []string   `json:"type_arguments"`
	Arguments     []Argument `json:"arguments"`
}

// SplitCoins takes a source coin and a list of amounts, yielding one
// new coin per amount. The wire form is a two-element array.
type SplitCoins struct {
	Coin    Argument
	Amounts []Argument
}

func (c SplitCoins) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.Coin, c.Amounts})
}

func (c *SplitCoins) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return errMalformedCommand
	}
	if err := json.Unmarshal(raw[0], &c.Coin); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &c.Amounts)
}

// TransferObjects sends a list of objects to an address. Two-element
// array on the wire, objects first.
type TransferObjects struct {
	Objects []Argument
	Address Argument
}

func (c TransferObjects) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.Objects, c.Address})
}

func (c *TransferObjects) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return errMalformedCommand
	}
	if err := json.Unmarshal(raw[0], &c.Objects); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &c.Address)
}

// Command is one step of a programmable transaction. Exactly one field
// is set; kinds this client does not build or inspect stay in Raw.
type Command struct {
	MoveCall        *MoveCall        `json:"MoveCall,omitempty"`
	SplitCoins      *SplitCoins      `json:"SplitCoins,omitempty"`
	TransferObjects *TransferObjects `json:"TransferObjects,omitempty"`

	Raw json.RawMessage `json:"-"`
}

func (c *Command) UnmarshalJSON(b []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err != nil {
		// a bare string like "MergeCoins" shorthand; keep raw
		c.Raw = append(json.RawMessage(nil), b...)
		return nil
	}

	if raw, ok := probe["MoveCall"]; ok {
		c.MoveCall = new(MoveCall)
		return json.Unmarshal(raw, c.MoveCall)
	}
	if raw, ok := probe["SplitCoins"]; ok {
		c.SplitCoins = new(SplitCoins)
		return json.Unmarshal(raw, c.SplitCoins)
	}
	if raw, ok := probe["TransferObjects"]; ok {
		c.TransferObjects = new(TransferObjects)
		return json.Unmarshal(raw, c.TransferObjects)
	}

	c.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// ObjectChange is the effect a transaction had on one object. The
// wire record is tagged by a "type" field; the three kinds this client
// consumes decode to distinct variants so callers can switch on them
// exhaustively.
type ObjectChange interface {
	objectChange()
}

type CreatedObject struct {
	ObjectID   string `json:"objectId"`
	ObjectType string `json:"objectType"`
	Sender     string `json:"sender"`
}

type MutatedObject struct {
	ObjectID   string `json:"objectId"`
	ObjectType string `json:"objectType"`
	Version    Uint64 `json:"version"`
}

type DeletedObject struct {
	ObjectID   string `json:"objectId"`
	ObjectType string `json:"objectType"`
}

func (CreatedObject) objectChange() {}
func (MutatedObject) objectChange() {}
func (DeletedObject) objectChange() {}

func decodeObjectChange(b json.RawMessage) (ObjectChange, error) {
	var tag struct {
		Type string `json:"type"`
	}

	if err := json.Unmarshal(b, &tag); err != nil {
		return nil, err
	}

	switch tag.Type {
	case "created":
		var c CreatedObject
		if err := json.Unmarshal(b, &c); err != nil {
			return nil, err
		}
		return c, nil
	case "mutated":
		var c MutatedObject
		if err := json.Unmarshal(b, &c); err != nil {
			return nil, err
		}
		return c, nil
	case "deleted":
		var c DeletedObject
		if err := json.Unmarshal(b, &c); err != nil {
			return nil, err
		}
		return c, nil
	default:
		// published, transferred, wrapped: nothing to reconcile
		return nil, nil
	}
}

// TransactionRecord is one historical transaction, flattened to the
// parts the application inspects.
type TransactionRecord struct {
	Digest        string
	Sender        string
	Kind          string
	Inputs        []InputSlot
	Commands      []Command
	ObjectChanges []ObjectChange
	TimestampMs   int64
}

// ObjectSnapshot is the current state of one live object.
type ObjectSnapshot struct {
	ObjectID string
	Type     string
	Fields   map[string]any
}

// FieldString returns a top-level field as a string.
func (o *ObjectSnapshot) FieldString(name string) (string, bool) {
	v, ok := o.Fields[name]
	if !ok {
		return "", false
	}

	s, ok := v.(string)
	return s, ok
}

// FieldUint64 returns a top-level field as a u64. Move u64 fields
// arrive as decimal strings; numbers are accepted for completeness.
func (o *ObjectSnapshot) FieldUint64(name string) (uint64, bool) {
	switch v := o.Fields[name].(type) {
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		return n, err == nil
	case float64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}

// Coin is one spendable coin object.
type Coin struct {
	CoinType     string `json:"coinType"`
	CoinObjectID string `json:"coinObjectId"`
	Version      Uint64 `json:"version"`
	Digest       string `json:"digest"`
	Balance      Uint64 `json:"balance"`
}

// Balance is the aggregate balance of one coin type.
type Balance struct {
	CoinType        string `json:"coinType"`
	CoinObjectCount int    `json:"coinObjectCount"`
	TotalBalance    Uint64 `json:"totalBalance"`
}
