// Package domain defines the inventory records, the queued mutation model and
// the cache/idempotency rows persisted by the local store. The record types are
// mapped with GORM and double as the JSON shapes served to the UI.
package domain

import (
	"errors"
	"strings"
	"time"
)

// Record is the type set of entity records held in the local store.
type Record interface {
	Item | Box | Transaction
	Key() RecordID
	TableName() string
}

// Item is a stocked article. Quantity never goes below zero.
//
// Timestamps are copied from the server and never touched by GORM, so a
// confirmed record round-trips unchanged.
type Item struct {
	ID          RecordID   `json:"id"          gorm:"type:TEXT;primaryKey"`
	Name        string     `json:"name"        gorm:"type:TEXT NOT NULL"`
	Description string     `json:"description" gorm:"type:TEXT"`
	SKU         string     `json:"sku"         gorm:"type:TEXT;index:idx_items_sku"`
	Quantity    int        `json:"quantity"    gorm:"not null;default:0;check:quantity >= 0"`
	BoxID       *RecordID  `json:"box_id"      gorm:"type:TEXT;index:idx_items_box"`
	Provenance  Provenance `json:"provenance"  gorm:"type:TEXT NOT NULL;default:'confirmed'"`
	CreatedAt   time.Time  `json:"created_at"  gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time  `json:"updated_at"  gorm:"autoUpdateTime:false"`
}

// TableName implements the GORM tabler interface.
func (Item) TableName() string { return string(ResourceItems) }

// Key returns the primary key.
func (it Item) Key() RecordID { return it.ID }

// Adjust applies delta to the quantity, clamping at zero, and returns the
// change actually applied.
func (it *Item) Adjust(delta int) int {
	next := it.Quantity + delta
	if next < 0 {
		next = 0
	}
	applied := next - it.Quantity
	it.Quantity = next
	return applied
}

// Box is a container items can be stored in.
type Box struct {
	ID          RecordID   `json:"id"          gorm:"type:TEXT;primaryKey"`
	Name        string     `json:"name"        gorm:"type:TEXT NOT NULL"`
	Location    string     `json:"location"    gorm:"type:TEXT"`
	Description string     `json:"description" gorm:"type:TEXT"`
	Provenance  Provenance `json:"provenance"  gorm:"type:TEXT NOT NULL;default:'confirmed'"`
	CreatedAt   time.Time  `json:"created_at"  gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time  `json:"updated_at"  gorm:"autoUpdateTime:false"`
}

// TableName implements the GORM tabler interface.
func (Box) TableName() string { return string(ResourceBoxes) }

// Key returns the primary key.
func (b Box) Key() RecordID { return b.ID }

// MovementKind classifies a stock transaction.
type MovementKind string

const (
	MovementIn       MovementKind = "in"
	MovementOut      MovementKind = "out"
	MovementTransfer MovementKind = "transfer"
)

// Transaction is an entry in an item's stock history.
type Transaction struct {
	ID         RecordID     `json:"id"           gorm:"type:TEXT;primaryKey"`
	ItemID     RecordID     `json:"item_id"      gorm:"type:TEXT NOT NULL;index:idx_transactions_item"`
	Kind       MovementKind `json:"kind"         gorm:"type:TEXT NOT NULL;check:kind IN ('in','out','transfer')"`
	Quantity   int          `json:"quantity"     gorm:"not null;default:0"`
	FromBoxID  *RecordID    `json:"from_box_id"  gorm:"type:TEXT"`
	ToBoxID    *RecordID    `json:"to_box_id"    gorm:"type:TEXT"`
	Note       string       `json:"note"         gorm:"type:TEXT"`
	Provenance Provenance   `json:"provenance"   gorm:"type:TEXT NOT NULL;default:'confirmed'"`
	CreatedAt  time.Time    `json:"created_at"   gorm:"autoCreateTime:false;index"`
}

// TableName implements the GORM tabler interface.
func (Transaction) TableName() string { return string(ResourceTransactions) }

// Key returns the primary key.
func (t Transaction) Key() RecordID { return t.ID }

// Validation errors shared by inputs.
var (
	ErrNameRequired     = errors.New("name is required")
	ErrNegativeQuantity = errors.New("quantity must be >= 0")
	ErrInvalidQuantity  = errors.New("quantity must be > 0")
	ErrBoxRequired      = errors.New("target box is required")
)

// ItemInput is the payload submitted to create an item.
type ItemInput struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	SKU         string    `json:"sku,omitempty"`
	Quantity    int       `json:"quantity"`
	BoxID       *RecordID `json:"box_id,omitempty"`
}

// Validate checks required fields.
func (in ItemInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrNameRequired
	}
	if in.Quantity < 0 {
		return ErrNegativeQuantity
	}
	return nil
}

// Provisional builds the local record for an item created offline.
func (in ItemInput) Provisional(id RecordID, now time.Time) Item {
	return Item{
		ID:          id,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		SKU:         in.SKU,
		Quantity:    in.Quantity,
		BoxID:       in.BoxID,
		Provenance:  ProvenanceCreatedOffline,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ItemPatch is a partial update. A BoxID pointing at the empty string removes
// the item from its box.
type ItemPatch struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	SKU         *string   `json:"sku,omitempty"`
	Quantity    *int      `json:"quantity,omitempty"`
	BoxID       *RecordID `json:"box_id,omitempty"`
}

// Validate checks the fields that are set.
func (p ItemPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return ErrNameRequired
	}
	if p.Quantity != nil && *p.Quantity < 0 {
		return ErrNegativeQuantity
	}
	return nil
}

// Apply merges the patch into it.
func (p ItemPatch) Apply(it *Item) {
	if p.Name != nil {
		it.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		it.Description = *p.Description
	}
	if p.SKU != nil {
		it.SKU = *p.SKU
	}
	if p.Quantity != nil {
		it.Quantity = *p.Quantity
	}
	if p.BoxID != nil {
		it.BoxID = optionalRef(*p.BoxID)
	}
}

// Fold merges the patch into a create payload that has not been replayed yet.
func (p ItemPatch) Fold(in *ItemInput) {
	if p.Name != nil {
		in.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.SKU != nil {
		in.SKU = *p.SKU
	}
	if p.Quantity != nil {
		in.Quantity = *p.Quantity
	}
	if p.BoxID != nil {
		in.BoxID = optionalRef(*p.BoxID)
	}
}

// BoxInput is the payload submitted to create a box.
type BoxInput struct {
	Name        string `json:"name"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
}

// Validate checks required fields.
func (in BoxInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrNameRequired
	}
	return nil
}

// Provisional builds the local record for a box created offline.
func (in BoxInput) Provisional(id RecordID, now time.Time) Box {
	return Box{
		ID:          id,
		Name:        strings.TrimSpace(in.Name),
		Location:    in.Location,
		Description: in.Description,
		Provenance:  ProvenanceCreatedOffline,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// BoxPatch is a partial update of a box.
type BoxPatch struct {
	Name        *string `json:"name,omitempty"`
	Location    *string `json:"location,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Validate checks the fields that are set.
func (p BoxPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return ErrNameRequired
	}
	return nil
}

// Apply merges the patch into b.
func (p BoxPatch) Apply(b *Box) {
	if p.Name != nil {
		b.Name = strings.TrimSpace(*p.Name)
	}
	if p.Location != nil {
		b.Location = *p.Location
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
}

// Fold merges the patch into a pending create payload.
func (p BoxPatch) Fold(in *BoxInput) {
	if p.Name != nil {
		in.Name = strings.TrimSpace(*p.Name)
	}
	if p.Location != nil {
		in.Location = *p.Location
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
}

// StockMovement is the payload of a stock-in or stock-out action.
type StockMovement struct {
	Quantity int    `json:"quantity"`
	Note     string `json:"note,omitempty"`
}

// Validate checks the requested amount.
func (m StockMovement) Validate() error {
	if m.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// TransferInput moves an item into another box.
type TransferInput struct {
	BoxID RecordID `json:"box_id"`
	Note  string   `json:"note,omitempty"`
}

// Validate checks the target box.
func (in TransferInput) Validate() error {
	if strings.TrimSpace(string(in.BoxID)) == "" {
		return ErrBoxRequired
	}
	return nil
}

// StockResult is the authoritative outcome of a stock action: the updated item
// and the transaction the server recorded for it.
type StockResult struct {
	Item        Item        `json:"item"`
	Transaction Transaction `json:"transaction"`
}

func optionalRef(id RecordID) *RecordID {
	if id == "" {
		return nil
	}
	return &id
}
