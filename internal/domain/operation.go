// Package domain defines the inventory records, the queued mutation model and
// the cache/idempotency rows persisted by the local store.
//
// This file declares Operation, the closed set of queued mutation kinds. Each
// kind carries its own typed payload and is dispatched through
// OperationVisitor, so a new kind does not compile until every visitor
// handles it. Payloads are stored as JSON next to their kind.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// OpKind tags a queued mutation. The set is closed: every kind has a concrete
// Operation type and a method on OperationVisitor.
type OpKind string

const (
	OpCreateItem   OpKind = "item.create"
	OpUpdateItem   OpKind = "item.update"
	OpDeleteItem   OpKind = "item.delete"
	OpStockIn      OpKind = "item.stock_in"
	OpStockOut     OpKind = "item.stock_out"
	OpTransferItem OpKind = "item.transfer"
	OpCreateBox    OpKind = "box.create"
	OpUpdateBox    OpKind = "box.update"
	OpDeleteBox    OpKind = "box.delete"
)

// OpKinds lists every operation kind.
var OpKinds = []OpKind{
	OpCreateItem, OpUpdateItem, OpDeleteItem,
	OpStockIn, OpStockOut, OpTransferItem,
	OpCreateBox, OpUpdateBox, OpDeleteBox,
}

// ErrUnknownOperation is returned when a stored kind has no decoder.
var ErrUnknownOperation = errors.New("unknown operation kind")

// Operation is a typed mutation intent awaiting replay against the remote API.
// The interface is sealed; implementations live in this package.
type Operation interface {
	Kind() OpKind
	// Keys returns every record the operation reads or writes. The first key
	// is the record the operation targets.
	Keys() []RecordKey
	// Accept dispatches to the visitor method matching the concrete kind.
	Accept(ctx context.Context, v OperationVisitor) error

	rewrite(res Resource, from, to RecordID) Operation
}

// OperationVisitor handles each operation kind. Adding a kind to the set adds
// a method here, so every replayer stops compiling until it handles it.
type OperationVisitor interface {
	VisitCreateItem(ctx context.Context, op CreateItem) error
	VisitUpdateItem(ctx context.Context, op UpdateItem) error
	VisitDeleteItem(ctx context.Context, op DeleteItem) error
	VisitStockIn(ctx context.Context, op StockIn) error
	VisitStockOut(ctx context.Context, op StockOut) error
	VisitTransferItem(ctx context.Context, op TransferItem) error
	VisitCreateBox(ctx context.Context, op CreateBox) error
	VisitUpdateBox(ctx context.Context, op UpdateBox) error
	VisitDeleteBox(ctx context.Context, op DeleteBox) error
}

// CreateItem replays an item created offline. LocalID is the placeholder the
// record lives under until the server assigns its identifier; it is never sent.
type CreateItem struct {
	LocalID RecordID  `json:"local_id"`
	Input   ItemInput `json:"input"`
}

func (CreateItem) Kind() OpKind { return OpCreateItem }

func (op CreateItem) Keys() []RecordKey {
	keys := []RecordKey{{ResourceItems, op.LocalID}}
	if op.Input.BoxID != nil {
		keys = append(keys, RecordKey{ResourceBoxes, *op.Input.BoxID})
	}
	return keys
}

func (op CreateItem) Accept(ctx context.Context, v OperationVisitor) error {
	return v.VisitCreateItem(ctx, op)
}

func (op CreateItem) rewrite(res Resource, from, to RecordID) Operation {
	if res == ResourceItems && op.LocalID == from {
		op.LocalID = to
	}
	if res == ResourceBoxes {
		op.Input.BoxID = swapRef(op.Input.BoxID, from, to)
	}
	return op
}

// UpdateItem replays a partial update of a server-known item.
type UpdateItem struct {
	ID    RecordID  `json:"id"`
	Patch ItemPatch `json:"patch"`
}

func (UpdateItem) Kind() OpKind { return OpUpdateItem }

func (op UpdateItem) Keys() []RecordKey {
	keys := []RecordKey{{ResourceItems, op.ID}}
	if op.Patch.BoxID != nil && *op.Patch.BoxID != "" {
		keys = append(keys, RecordKey{ResourceBoxes, *op.Patch.BoxID})
	}
	return keys
}

func (op UpdateItem) Accept(ctx context.Context, v OperationVisitor) error {
	return v.VisitUpdateItem(ctx, op)
}

func (op UpdateItem) rewrite(res Resource, from, to RecordID) Operation {
	if res == ResourceItems && op.ID == from {
		op.ID = to
	}
	if res == ResourceBoxes {
		op.Patch.BoxID = swapRef(op.Patch.BoxID, from, to)
	}
	return op
}

// DeleteItem replays the deletion of a tombstoned item.
type DeleteItem struct {
	ID RecordID `json:"id"`
}

func (DeleteItem) Kind() OpKind { return OpDeleteItem }

func (op DeleteItem) Keys() []RecordKey { return []RecordKey{{ResourceItems, op.ID}} }

func (op DeleteItem) Accept(ctx context.Context, v OperationVisitor) error {
	return v.VisitDeleteItem(ctx, op)
}

func (op DeleteItem) rewrite(res Resource, from, to RecordID) Operation {
	if res == ResourceItems && op.ID == from {
		op.ID = to
	}
	return op
}

// StockIn replays an increase of an item's quantity. LocalTransactionID is the
// provisional history entry to replace with the server's transaction.
type StockIn struct {
	ItemID             RecordID      `json:"item_id"`
	Movement           StockMovement `json:"movement"`
	LocalTransactionID RecordID      `json:"local_transaction_id"`
}

func (StockIn) Kind() OpKind { return OpStockIn }

func (op StockIn) Keys() []RecordKey { return []RecordKey{{ResourceItems, op.ItemID}} }

func (op StockIn) Accept(ctx context.Context, v OperationVisitor) error {
	return v.VisitStockIn(ctx, op)
}

func (op StockIn) rewrite(res Resource, from, to RecordID) Operation {
	if res == ResourceItems && op.ItemID == from {
		op.ItemID = to
	}
	return op
}

// StockOut replays a decrease of an item's quantity.
type StockOut struct {
	ItemID             RecordID      `json:"item_id"`
	Movement           StockMovement `json:"movement"`
	LocalTransactionID RecordID      `json:"local_transaction_id"`
}

func (StockOut) Kind() OpKind { return OpStockOut }

func (op StockOut) Keys() []RecordKey { return []RecordKey{{ResourceItems, op.ItemID}} }

func (op StockOut) Accept(ctx context.Context, v OperationVisitor) error {
	return v.VisitStockOut(ctx, op)
}

func (op StockOut) rewrite(res Resource, from, to RecordID) Operation {
	if res == ResourceItems && op.ItemID == from {
		op.ItemID = to
	}
	return op
}

// TransferItem replays moving an item into another box.
type TransferItem struct {
	ItemID             RecordID      `json:"item_id"`
	Input              TransferInput `json:"input"`
	LocalTransactionID RecordID      `json:"local_transaction_id"`
}

func (TransferItem) Kind() OpKind { return OpTransferItem }

func (op TransferItem) Keys() []RecordKey {
	return []RecordKey{{ResourceItems, op.ItemID}, {ResourceBoxes, op.Input.BoxID}}
}

func (op TransferItem) Accept(ctx context.Context, v OperationVisitor) error {
	return v.VisitTransferItem(ctx, op)
}

func (op TransferItem) rewrite(res Resource, from, to RecordID) Operation {
	if res == ResourceItems && op.ItemID == from {
		op.ItemID = to
	}
	if res == ResourceBoxes && op.Input.BoxID == from {
		op.Input.BoxID = to
	}
	return op
}

// CreateBox replays a box created offline.
type CreateBox struct {
	LocalID RecordID `json:"local_id"`
	Input   BoxInput `json:"input"`
}

func (CreateBox) Kind() OpKind { return OpCreateBox }

func (op CreateBox) Keys() []RecordKey { return []RecordKey{{ResourceBoxes, op.LocalID}} }

func (op CreateBox) Accept(ctx context.Context, v OperationVisitor) error {
	return v.VisitCreateBox(ctx, op)
}

func (op CreateBox) rewrite(res Resource, from, to RecordID) Operation {
	if res == ResourceBoxes && op.LocalID == from {
		op.LocalID = to
	}
	return op
}

// UpdateBox replays a partial update of a server-known box.
type UpdateBox struct {
	ID    RecordID `json:"id"`
	Patch BoxPatch `json:"patch"`
}

func (UpdateBox) Kind() OpKind { return OpUpdateBox }

func (op UpdateBox) Keys() []RecordKey { return []RecordKey{{ResourceBoxes, op.ID}} }

func (op UpdateBox) Accept(ctx context.Context, v OperationVisitor) error {
	return v.VisitUpdateBox(ctx, op)
}

func (op UpdateBox) rewrite(res Resource, from, to RecordID) Operation {
	if res == ResourceBoxes && op.ID == from {
		op.ID = to
	}
	return op
}

// DeleteBox replays the deletion of a tombstoned box.
type DeleteBox struct {
	ID RecordID `json:"id"`
}

func (DeleteBox) Kind() OpKind { return OpDeleteBox }

func (op DeleteBox) Keys() []RecordKey { return []RecordKey{{ResourceBoxes, op.ID}} }

func (op DeleteBox) Accept(ctx context.Context, v OperationVisitor) error {
	return v.VisitDeleteBox(ctx, op)
}

func (op DeleteBox) rewrite(res Resource, from, to RecordID) Operation {
	if res == ResourceBoxes && op.ID == from {
		op.ID = to
	}
	return op
}

// EncodeOperation serialises the typed payload of op.
func EncodeOperation(op Operation) ([]byte, error) {
	if op == nil {
		return nil, ErrUnknownOperation
	}
	return json.Marshal(op)
}

// DecodeOperation restores a typed operation from its stored kind and payload.
func DecodeOperation(kind OpKind, payload []byte) (Operation, error) {
	var (
		op  Operation
		err error
	)
	switch kind {
	case OpCreateItem:
		op, err = decodeAs[CreateItem](payload)
	case OpUpdateItem:
		op, err = decodeAs[UpdateItem](payload)
	case OpDeleteItem:
		op, err = decodeAs[DeleteItem](payload)
	case OpStockIn:
		op, err = decodeAs[StockIn](payload)
	case OpStockOut:
		op, err = decodeAs[StockOut](payload)
	case OpTransferItem:
		op, err = decodeAs[TransferItem](payload)
	case OpCreateBox:
		op, err = decodeAs[CreateBox](payload)
	case OpUpdateBox:
		op, err = decodeAs[UpdateBox](payload)
	case OpDeleteBox:
		op, err = decodeAs[DeleteBox](payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return op, nil
}

func decodeAs[T Operation](payload []byte) (Operation, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// RewriteOperation replaces every reference to from (within res) by to.
func RewriteOperation(op Operation, res Resource, from, to RecordID) Operation {
	return op.rewrite(res, from, to)
}

// Touches reports whether op reads or writes the given record.
func Touches(op Operation, key RecordKey) bool {
	return slices.Contains(op.Keys(), key)
}

func swapRef(ref *RecordID, from, to RecordID) *RecordID {
	if ref != nil && *ref == from {
		return to.Ref()
	}
	return ref
}
