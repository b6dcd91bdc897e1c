package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-inventory-sync/internal/domain"
	"github.com/tbourn/go-inventory-sync/internal/repo"
)

func TestBoxDelete_TempDetachesQueuedItems(t *testing.T) {
	fx := newFixture(t, false)
	ctx := context.Background()

	box, err := fx.f.Boxes.Create(ctx, domain.BoxInput{Name: "Shelf"}, "")
	require.NoError(t, err)
	it, err := fx.f.Items.Create(ctx, domain.ItemInput{Name: "Nuts", BoxID: box.ID.Ref()}, "")
	require.NoError(t, err)

	require.NoError(t, fx.f.Boxes.Delete(ctx, box.ID))

	ops := fx.pending(t)
	require.Len(t, ops, 1)
	create := ops[0].(domain.CreateItem)
	assert.Equal(t, it.ID, create.LocalID)
	assert.Nil(t, create.Input.BoxID)

	local, err := repo.Get[domain.Item](ctx, fx.store, it.ID)
	require.NoError(t, err)
	assert.Nil(t, local.BoxID)
	_, err = repo.Get[domain.Box](ctx, fx.store, box.ID)
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestBoxDelete_TempTargetOfTransferIsRefused(t *testing.T) {
	fx := newFixture(t, false)
	ctx := context.Background()
	fx.seedItem(t, domain.Item{ID: "7", Name: "Nuts"})

	box, err := fx.f.Boxes.Create(ctx, domain.BoxInput{Name: "Shelf"}, "")
	require.NoError(t, err)
	_, err = fx.f.Items.Transfer(ctx, "7", domain.TransferInput{BoxID: box.ID})
	require.NoError(t, err)

	require.ErrorIs(t, fx.f.Boxes.Delete(ctx, box.ID), ErrBoxInUse)
	assert.Len(t, fx.pending(t), 2)
}

func TestBoxUpdate_OfflineAndFold(t *testing.T) {
	fx := newFixture(t, false)
	ctx := context.Background()

	box, err := fx.f.Boxes.Create(ctx, domain.BoxInput{Name: "Shelf"}, "")
	require.NoError(t, err)
	_, err = fx.f.Boxes.Update(ctx, box.ID, domain.BoxPatch{Location: ptr("Garage")})
	require.NoError(t, err)

	ops := fx.pending(t)
	require.Len(t, ops, 1)
	assert.Equal(t, "Garage", ops[0].(domain.CreateBox).Input.Location)

	require.NoError(t, repo.Put(ctx, fx.store, domain.Box{ID: "3", Name: "Bin", Provenance: domain.ProvenanceConfirmed}))
	upd, err := fx.f.Boxes.Update(ctx, "3", domain.BoxPatch{Name: ptr("Big bin")})
	require.NoError(t, err)
	assert.Equal(t, domain.ProvenanceUpdatedOffline, upd.Provenance)
	assert.Len(t, fx.pending(t), 2)
}

func TestBoxItems(t *testing.T) {
	fx := newFixture(t, false)
	ctx := context.Background()
	require.NoError(t, repo.Put(ctx, fx.store, domain.Box{ID: "1", Name: "Bin", Provenance: domain.ProvenanceConfirmed}))
	fx.seedItem(t, domain.Item{ID: "7", Name: "Nuts", BoxID: ptr(domain.RecordID("1"))})
	fx.seedItem(t, domain.Item{ID: "8", Name: "Bolts"})

	items, err := fx.f.Boxes.Items(ctx, "1", domain.ItemQuery{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.RecordID("7"), items[0].ID)

	_, err = fx.f.Boxes.Items(ctx, "2", domain.ItemQuery{})
	require.ErrorIs(t, err, ErrBoxNotFound)
}

func TestBoxDelete_OfflineTombstones(t *testing.T) {
	fx := newFixture(t, false)
	ctx := context.Background()
	require.NoError(t, repo.Put(ctx, fx.store, domain.Box{ID: "1", Name: "Bin", Provenance: domain.ProvenanceConfirmed}))

	require.NoError(t, fx.f.Boxes.Delete(ctx, "1"))
	_, err := fx.f.Boxes.Get(ctx, "1")
	require.ErrorIs(t, err, ErrBoxNotFound)
	assert.Equal(t, []domain.Operation{domain.DeleteBox{ID: "1"}}, fx.pending(t))
}

func TestRefresh(t *testing.T) {
	fx := newFixture(t, true)
	ctx := context.Background()

	_, err := fx.f.Boxes.List(ctx, domain.BoxQuery{})
	require.NoError(t, err)
	require.NoError(t, fx.f.Refresh(ctx, domain.ResourceBoxes))
	_, err = fx.f.Boxes.List(ctx, domain.BoxQuery{})
	require.NoError(t, err)

	assert.Equal(t, []string{"ListBoxes", "ListBoxes"}, fx.api.Calls())
	assert.EqualValues(t, 1, fx.notify.n.Load())
	require.ErrorIs(t, fx.f.Refresh(ctx, "users"), ErrUnknownResource)
}
