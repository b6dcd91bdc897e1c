package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-inventory-sync/internal/domain"
	"github.com/tbourn/go-inventory-sync/internal/remote"
	"github.com/tbourn/go-inventory-sync/internal/repo"
)

func ptr[T any](v T) *T { return &v }

func TestItemCreate_OfflineQueuesProvisionalRecord(t *testing.T) {
	fx := newFixture(t, false)
	ctx := context.Background()

	it, err := fx.f.Items.Create(ctx, domain.ItemInput{Name: "  Bolts ", Quantity: 5}, "")
	require.NoError(t, err)
	assert.True(t, it.ID.IsTemp())
	assert.Equal(t, "Bolts", it.Name)
	assert.Equal(t, domain.ProvenanceCreatedOffline, it.Provenance)

	ops := fx.pending(t)
	require.Len(t, ops, 1)
	create, ok := ops[0].(domain.CreateItem)
	require.True(t, ok)
	assert.Equal(t, it.ID, create.LocalID)
	assert.Equal(t, 5, create.Input.Quantity)

	assert.Empty(t, fx.api.Calls())
	assert.EqualValues(t, 1, fx.notify.n.Load())

	got, err := fx.f.Items.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, it.ID, got.ID)
}

func TestItemCreate_OnlineStoresServerRecord(t *testing.T) {
	fx := newFixture(t, true)
	ctx := context.Background()

	it, err := fx.f.Items.Create(ctx, domain.ItemInput{Name: "Nuts", Quantity: 2}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.RecordID("100"), it.ID)
	assert.Empty(t, fx.pending(t))

	local, err := repo.Get[domain.Item](ctx, fx.store, it.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProvenanceConfirmed, local.Provenance)
}

func TestItemCreate_RetryableFailureFallsBackToQueue(t *testing.T) {
	fx := newFixture(t, true)
	fx.api.fail = serviceUnavailable

	it, err := fx.f.Items.Create(context.Background(), domain.ItemInput{Name: "Nuts"}, "")
	require.NoError(t, err)
	assert.True(t, it.ID.IsTemp())
	assert.Len(t, fx.pending(t), 1)
}

func TestItemCreate_TerminalFailurePropagates(t *testing.T) {
	fx := newFixture(t, true)
	fx.api.fail = func(string) error { return &remote.APIError{Status: 422, Message: "sku taken"} }

	_, err := fx.f.Items.Create(context.Background(), domain.ItemInput{Name: "Nuts"}, "")
	require.ErrorIs(t, err, remote.ErrValidation)
	assert.Empty(t, fx.pending(t))
}

func TestItemCreate_ValidatesInput(t *testing.T) {
	fx := newFixture(t, false)
	_, err := fx.f.Items.Create(context.Background(), domain.ItemInput{Name: " "}, "")
	require.ErrorIs(t, err, domain.ErrNameRequired)
	_, err = fx.f.Items.Create(context.Background(), domain.ItemInput{Name: "x", Quantity: -1}, "")
	require.ErrorIs(t, err, domain.ErrNegativeQuantity)
}

func TestItemCreate_IdempotencyKeyReturnsSameRecord(t *testing.T) {
	fx := newFixture(t, false)
	ctx := context.Background()

	a, err := fx.f.Items.Create(ctx, domain.ItemInput{Name: "Nuts"}, "key-1")
	require.NoError(t, err)
	b, err := fx.f.Items.Create(ctx, domain.ItemInput{Name: "Nuts"}, "key-1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Len(t, fx.pending(t), 1)
}

func TestItemCreate_TempBoxForcesQueue(t *testing.T) {
	fx := newFixture(t, false)
	ctx := context.Background()
	box, err := fx.f.Boxes.Create(ctx, domain.BoxInput{Name: "Shelf"}, "")
	require.NoError(t, err)

	fx.net.up.Store(true)
	it, err := fx.f.Items.Create(ctx, domain.ItemInput{Name: "Nuts", BoxID: box.ID.Ref()}, "")
	require.NoError(t, err)
	assert.True(t, it.ID.IsTemp())
	assert.Empty(t, fx.api.Calls())
	assert.Len(t, fx.pending(t), 2)

	_, err = fx.f.Items.Create(ctx, domain.ItemInput{Name: "x", BoxID: ptr(domain.RecordID("temp_1"))}, "")
	require.ErrorIs(t, err, ErrBoxNotFound)
}

func TestItemUpdate_TempRecordFoldsIntoCreate(t *testing.T) {
	fx := newFixture(t, false)
	ctx := context.Background()

	it, err := fx.f.Items.Create(ctx, domain.ItemInput{Name: "Nuts", Quantity: 1}, "")
	require.NoError(t, err)

	upd, err := fx.f.Items.Update(ctx, it.ID, domain.ItemPatch{Name: ptr("Hex nuts"), Quantity: ptr(9)})
	require.NoError(t, err)
	assert.Equal(t, "Hex nuts", upd.Name)
	assert.Equal(t, domain.ProvenanceCreatedOffline, upd.Provenance)

	ops := fx.pending(t)
	require.Len(t, ops, 1)
	create := ops[0].(domain.CreateItem)
	assert.Equal(t, "Hex nuts", create.Input.Name)
	assert.Equal(t, 9, create.Input.Quantity)
}

func TestItemUpdate_OfflineServerRecordIsQueued(t *testing.T) {
	fx := newFixture(t, false)
	ctx := context.Background()
	fx.seedItem(t, domain.Item{ID: "7", Name: "Nuts", Quantity: 1})

	upd, err := fx.f.Items.Update(ctx, "7", domain.ItemPatch{Name: ptr("Hex nuts")})
	require.NoError(t, err)
	assert.Equal(t, domain.ProvenanceUpdatedOffline, upd.Provenance)

	ops := fx.pending(t)
	require.Len(t, ops, 1)
	assert.Equal(t, domain.UpdateItem{ID: "7", Patch: domain.ItemPatch{Name: ptr("Hex nuts")}}, ops[0])

	_, err = fx.f.Items.Update(ctx, "8", domain.ItemPatch{Name: ptr("x")})
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestItemUpdate_OnlineWaitsBehindQueuedWork(t *testing.T) {
	fx := newFixture(t, false)
	ctx := context.Background()
	fx.seedItem(t, domain.Item{ID: "7", Name: "Nuts"})

	_, err := fx.f.Items.Update(ctx, "7", domain.ItemPatch{Name: ptr("a")})
	require.NoError(t, err)

	fx.net.up.Store(true)
	_, err = fx.f.Items.Update(ctx, "7", domain.ItemPatch{Name: ptr("b")})
	require.NoError(t, err)

	assert.Empty(t, fx.api.Calls(), "a record with queued work must not be written remotely out of order")
	assert.Len(t, fx.pending(t), 2)
}

func TestItemUpdate_OnlineNotFound(t *testing.T) {
	fx := newFixture(t, true)
	_, err := fx.f.Items.Update(context.Background(), "5", domain.ItemPatch{Name: ptr("x")})
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestItemDelete_TempRecordLeavesNoTrace(t *testing.T) {
	fx := newFixture(t, false)
	ctx := context.Background()

	it, err := fx.f.Items.Create(ctx, domain.ItemInput{Name: "Nuts"}, "")
	require.NoError(t, err)
	_, err = fx.f.Items.StockIn(ctx, it.ID, domain.StockMovement{Quantity: 3})
	require.NoError(t, err)
	require.Len(t, fx.pending(t), 2)

	require.NoError(t, fx.f.Items.Delete(ctx, it.ID))

	_, err = repo.Get[domain.Item](ctx, fx.store, it.ID)
	require.ErrorIs(t, err, repo.ErrNotFound)
	txs, err := repo.GetByIndex[domain.Transaction](ctx, fx.store, repo.IndexTransactionsByItem, it.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
	assert.Empty(t, fx.pending(t))

	require.ErrorIs(t, fx.f.Items.Delete(ctx, it.ID), ErrItemNotFound)
}

func TestItemDelete_OfflineTombstones(t *testing.T) {
	fx := newFixture(t, false)
	ctx := context.Background()
	fx.seedItem(t, domain.Item{ID: "7", Name: "Nuts"})

	require.NoError(t, fx.f.Items.Delete(ctx, "7"))

	local, err := repo.Get[domain.Item](ctx, fx.store, "7")
	require.NoError(t, err)
	assert.Equal(t, domain.ProvenancePendingDeletion, local.Provenance)

	_, err = fx.f.Items.Get(ctx, "7")
	require.ErrorIs(t, err, ErrItemNotFound)

	list, err := fx.f.Items.List(ctx, domain.ItemQuery{})
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.Equal(t, []domain.Operation{domain.DeleteItem{ID: "7"}}, fx.pending(t))
	require.ErrorIs(t, fx.f.Items.Delete(ctx, "7"), ErrItemNotFound)
}

func TestItemDelete_Online(t *testing.T) {
	fx := newFixture(t, true)
	ctx := context.Background()
	fx.seedItem(t, domain.Item{ID: "7", Name: "Nuts"})

	require.NoError(t, fx.f.Items.Delete(ctx, "7"))
	assert.Equal(t, []string{"DeleteItem"}, fx.api.Calls())
	_, err := repo.Get[domain.Item](ctx, fx.store, "7")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestStockOut_QuantityNeverNegative(t *testing.T) {
	fx := newFixture(t, false)
	ctx := context.Background()
	fx.seedItem(t, domain.Item{ID: "7", Name: "Nuts", Quantity: 3})

	res, err := fx.f.Items.StockOut(ctx, "7", domain.StockMovement{Quantity: 10, Note: "sold"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Item.Quantity)
	assert.Equal(t, domain.ProvenanceUpdatedOffline, res.Item.Provenance)
	assert.Equal(t, domain.MovementOut, res.Transaction.Kind)
	assert.Equal(t, 3, res.Transaction.Quantity)
	assert.True(t, res.Transaction.ID.IsTemp())

	ops := fx.pending(t)
	require.Len(t, ops, 1)
	out := ops[0].(domain.StockOut)
	assert.Equal(t, 10, out.Movement.Quantity)
	assert.Equal(t, res.Transaction.ID, out.LocalTransactionID)

	history, err := fx.f.Transactions.List(ctx, domain.TransactionQuery{ItemID: ptr(domain.RecordID("7"))})
	require.NoError(t, err)
	require.Len(t, history, 1)

	_, err = fx.f.Items.StockOut(ctx, "7", domain.StockMovement{Quantity: 0})
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestStockIn_OnlineUsesServerResult(t *testing.T) {
	fx := newFixture(t, true)
	ctx := context.Background()
	fx.api.items["7"] = domain.Item{ID: "7", Name: "Nuts", Quantity: 1, Provenance: domain.ProvenanceConfirmed}

	res, err := fx.f.Items.StockIn(ctx, "7", domain.StockMovement{Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Item.Quantity)

	local, err := repo.Get[domain.Transaction](ctx, fx.store, res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MovementIn, local.Kind)
	assert.Empty(t, fx.pending(t))
}

func TestTransfer_OfflineRecordsMovement(t *testing.T) {
	fx := newFixture(t, false)
	ctx := context.Background()
	fx.seedItem(t, domain.Item{ID: "7", Name: "Nuts", Quantity: 4, BoxID: ptr(domain.RecordID("1"))})

	res, err := fx.f.Items.Transfer(ctx, "7", domain.TransferInput{BoxID: "2"})
	require.NoError(t, err)
	assert.Equal(t, domain.RecordID("2"), *res.Item.BoxID)
	assert.Equal(t, domain.RecordID("1"), *res.Transaction.FromBoxID)
	assert.Equal(t, domain.RecordID("2"), *res.Transaction.ToBoxID)
	assert.Equal(t, 4, res.Transaction.Quantity)

	ops := fx.pending(t)
	require.Len(t, ops, 1)
	assert.Equal(t, domain.OpTransferItem, ops[0].Kind())

	_, err = fx.f.Items.Transfer(ctx, "7", domain.TransferInput{})
	require.ErrorIs(t, err, domain.ErrBoxRequired)
}

func TestItemList_OfflineEvaluatesQueryLocally(t *testing.T) {
	fx := newFixture(t, false)
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	box := domain.RecordID("1")
	fx.seedItem(t, domain.Item{ID: "1", Name: "washer", Quantity: 9, BoxID: &box, CreatedAt: t0})
	fx.seedItem(t, domain.Item{ID: "2", Name: "Bolt M8", Quantity: 2, BoxID: &box, CreatedAt: t0.Add(time.Hour)})
	fx.seedItem(t, domain.Item{ID: "3", Name: "bolt M6", Quantity: 5, CreatedAt: t0.Add(2 * time.Hour)})
	fx.seedItem(t, domain.Item{ID: "4", Name: "Bolt M4", Provenance: domain.ProvenancePendingDeletion, CreatedAt: t0})

	all, err := fx.f.Items.List(ctx, domain.ItemQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	inBox, err := fx.f.Items.List(ctx, domain.ItemQuery{BoxID: &box})
	require.NoError(t, err)
	assert.Len(t, inBox, 2)

	bolts, err := fx.f.Items.List(ctx, domain.ItemQuery{Search: "BOLT", Sort: domain.SortName})
	require.NoError(t, err)
	require.Len(t, bolts, 2)
	assert.Equal(t, domain.RecordID("3"), bolts[0].ID, "collation ignores case and orders M6 before M8")

	byQty, err := fx.f.Items.List(ctx, domain.ItemQuery{Sort: "-" + domain.SortQuantity, Limit: 2})
	require.NoError(t, err)
	require.Len(t, byQty, 2)
	assert.Equal(t, domain.RecordID("1"), byQty[0].ID)
	assert.Equal(t, domain.RecordID("3"), byQty[1].ID)
}

func TestItemList_OnlineUsesCacheUnlessSkipped(t *testing.T) {
	fx := newFixture(t, true)
	ctx := context.Background()
	fx.api.items["7"] = domain.Item{ID: "7", Name: "Nuts", Provenance: domain.ProvenanceConfirmed}

	first, err := fx.f.Items.List(ctx, domain.ItemQuery{})
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, err = fx.f.Items.List(ctx, domain.ItemQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ListItems"}, fx.api.Calls(), "second read is served from cache")

	_, err = fx.f.Items.List(ctx, domain.ItemQuery{SkipCache: true})
	require.NoError(t, err)
	assert.Len(t, fx.api.Calls(), 2)

	// records were stored individually too
	local, err := repo.Get[domain.Item](ctx, fx.store, "7")
	require.NoError(t, err)
	assert.Equal(t, "Nuts", local.Name)
}

func TestItemList_RemoteFailureFallsBackToStore(t *testing.T) {
	fx := newFixture(t, true)
	ctx := context.Background()
	fx.seedItem(t, domain.Item{ID: "7", Name: "Nuts"})
	fx.api.fail = serviceUnavailable

	list, err := fx.f.Items.List(ctx, domain.ItemQuery{SkipCache: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.RecordID("7"), list[0].ID)
}

func TestItemGet_NotFound(t *testing.T) {
	fx := newFixture(t, false)
	_, err := fx.f.Items.Get(context.Background(), "42")
	require.ErrorIs(t, err, ErrItemNotFound)

	fx.net.up.Store(true)
	_, err = fx.f.Items.Get(context.Background(), "42")
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestItemGet_PendingLocalCopyWins(t *testing.T) {
	fx := newFixture(t, true)
	ctx := context.Background()
	fx.api.items["7"] = domain.Item{ID: "7", Name: "server", Provenance: domain.ProvenanceConfirmed}
	fx.seedItem(t, domain.Item{ID: "7", Name: "local", Provenance: domain.ProvenanceUpdatedOffline})

	got, err := fx.f.Items.Get(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "local", got.Name)
}

func TestStoreUnavailable_OnlineOnly(t *testing.T) {
	api := newFakeAPI()
	net := &fakeNet{}
	f := New(Deps{Remote: api, Net: net})
	ctx := context.Background()

	_, err := f.Items.Create(ctx, domain.ItemInput{Name: "Nuts"}, "")
	require.ErrorIs(t, err, ErrOfflineUnavailable)
	_, err = f.Items.List(ctx, domain.ItemQuery{})
	require.ErrorIs(t, err, ErrOfflineUnavailable)

	net.up.Store(true)
	it, err := f.Items.Create(ctx, domain.ItemInput{Name: "Nuts"}, "")
	require.NoError(t, err)
	assert.False(t, it.ID.IsTemp())

	api.fail = serviceUnavailable
	_, err = f.Items.Create(ctx, domain.ItemInput{Name: "Nuts"}, "")
	require.True(t, remote.IsRetryable(err))
	require.False(t, errors.Is(err, ErrOfflineUnavailable))
}
