package domain

import (
	"context"
	"errors"
	"testing"
)

// recorder is a visitor that notes which method ran.
type recorder struct{ got OpKind }

func (r *recorder) VisitCreateItem(context.Context, CreateItem) error {
	r.got = OpCreateItem
	return nil
}

func (r *recorder) VisitUpdateItem(context.Context, UpdateItem) error {
	r.got = OpUpdateItem
	return nil
}

func (r *recorder) VisitDeleteItem(context.Context, DeleteItem) error {
	r.got = OpDeleteItem
	return nil
}

func (r *recorder) VisitStockIn(context.Context, StockIn) error {
	r.got = OpStockIn
	return nil
}

func (r *recorder) VisitStockOut(context.Context, StockOut) error {
	r.got = OpStockOut
	return nil
}

func (r *recorder) VisitTransferItem(context.Context, TransferItem) error {
	r.got = OpTransferItem
	return nil
}

func (r *recorder) VisitCreateBox(context.Context, CreateBox) error {
	r.got = OpCreateBox
	return nil
}

func (r *recorder) VisitUpdateBox(context.Context, UpdateBox) error {
	r.got = OpUpdateBox
	return nil
}

func (r *recorder) VisitDeleteBox(context.Context, DeleteBox) error {
	r.got = OpDeleteBox
	return nil
}

func sampleOps() []Operation {
	box := RecordID("temp_1")
	name := "renamed"
	return []Operation{
		CreateItem{LocalID: "temp_2", Input: ItemInput{Name: "bolt", Quantity: 5, BoxID: &box}},
		UpdateItem{ID: "temp_2", Patch: ItemPatch{Name: &name}},
		DeleteItem{ID: "9"},
		StockIn{ItemID: "temp_2", Movement: StockMovement{Quantity: 2}, LocalTransactionID: "temp_3"},
		StockOut{ItemID: "9", Movement: StockMovement{Quantity: 1}, LocalTransactionID: "temp_4"},
		TransferItem{ItemID: "9", Input: TransferInput{BoxID: box}, LocalTransactionID: "temp_5"},
		CreateBox{LocalID: box, Input: BoxInput{Name: "A"}},
		UpdateBox{ID: "4", Patch: BoxPatch{Name: &name}},
		DeleteBox{ID: "4"},
	}
}

func TestOperations_CoverEveryKind(t *testing.T) {
	ops := sampleOps()
	if len(ops) != len(OpKinds) {
		t.Fatalf("sample covers %d kinds; OpKinds has %d", len(ops), len(OpKinds))
	}
	for i, op := range ops {
		if op.Kind() != OpKinds[i] {
			t.Fatalf("op %d kind %q; want %q", i, op.Kind(), OpKinds[i])
		}
		var r recorder
		if err := op.Accept(context.Background(), &r); err != nil {
			t.Fatalf("accept: %v", err)
		}
		if r.got != op.Kind() {
			t.Fatalf("visitor dispatched %q for %q", r.got, op.Kind())
		}
	}
}

func TestEncodeDecode_PreservesTypedPayload(t *testing.T) {
	for _, op := range sampleOps() {
		b, err := EncodeOperation(op)
		if err != nil {
			t.Fatalf("encode %s: %v", op.Kind(), err)
		}
		back, err := DecodeOperation(op.Kind(), b)
		if err != nil {
			t.Fatalf("decode %s: %v", op.Kind(), err)
		}
		if back.Kind() != op.Kind() {
			t.Fatalf("kind changed: %q -> %q", op.Kind(), back.Kind())
		}
	}
	ci, err := DecodeOperation(OpCreateItem, []byte(`{"local_id":"temp_9","input":{"name":"x","quantity":5}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := ci.(CreateItem); got.LocalID != "temp_9" || got.Input.Quantity != 5 {
		t.Fatalf("decoded %+v", got)
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := DecodeOperation("item.explode", []byte(`{}`))
	if !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("want ErrUnknownOperation, got %v", err)
	}
}

func TestRewriteOperation_SwapsTempReferences(t *testing.T) {
	ops := sampleOps()

	ci := RewriteOperation(ops[0], ResourceBoxes, "temp_1", "11").(CreateItem)
	if ci.Input.BoxID == nil || *ci.Input.BoxID != "11" || ci.LocalID != "temp_2" {
		t.Fatalf("box rewrite on create: %+v", ci)
	}
	ci = RewriteOperation(ci, ResourceItems, "temp_2", "12").(CreateItem)
	if ci.LocalID != "12" {
		t.Fatalf("item rewrite on create: %+v", ci)
	}

	si := RewriteOperation(ops[3], ResourceItems, "temp_2", "12").(StockIn)
	if si.ItemID != "12" {
		t.Fatalf("stock in rewrite: %+v", si)
	}
	// a box rewrite must not touch item ids that happen to match
	si = RewriteOperation(ops[3], ResourceBoxes, "temp_2", "99").(StockIn)
	if si.ItemID != "temp_2" {
		t.Fatalf("cross-resource rewrite leaked: %+v", si)
	}

	tr := RewriteOperation(ops[5], ResourceBoxes, "temp_1", "11").(TransferItem)
	if tr.Input.BoxID != "11" {
		t.Fatalf("transfer rewrite: %+v", tr)
	}
}

func TestTouches(t *testing.T) {
	ops := sampleOps()
	if !Touches(ops[0], RecordKey{ResourceBoxes, "temp_1"}) {
		t.Fatalf("create item must touch its box")
	}
	if Touches(ops[2], RecordKey{ResourceItems, "temp_2"}) {
		t.Fatalf("delete 9 must not touch temp_2")
	}
}
