// Package remote is the HTTP client for the inventory REST API.
//
// This file converts between wire DTOs and domain records.
package remote

import (
	"fmt"
	"time"

	"github.com/tbourn/go-inventory-sync/internal/domain"
)

// Wire shapes of the remote API. The server mints integer identifiers; the
// local store keys records by their decimal form.

type itemDTO struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	SKU         string    `json:"sku"`
	Quantity    int       `json:"quantity"`
	BoxID       *int64    `json:"box_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (d itemDTO) toDomain() domain.Item {
	return domain.Item{
		ID:          domain.ServerID(d.ID),
		Name:        d.Name,
		Description: d.Description,
		SKU:         d.SKU,
		Quantity:    d.Quantity,
		BoxID:       fromServerRef(d.BoxID),
		Provenance:  domain.ProvenanceConfirmed,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

type boxDTO struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (d boxDTO) toDomain() domain.Box {
	return domain.Box{
		ID:          domain.ServerID(d.ID),
		Name:        d.Name,
		Location:    d.Location,
		Description: d.Description,
		Provenance:  domain.ProvenanceConfirmed,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

type transactionDTO struct {
	ID        int64     `json:"id"`
	ItemID    int64     `json:"item_id"`
	Kind      string    `json:"kind"`
	Quantity  int       `json:"quantity"`
	FromBoxID *int64    `json:"from_box_id"`
	ToBoxID   *int64    `json:"to_box_id"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

func (d transactionDTO) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:         domain.ServerID(d.ID),
		ItemID:     domain.ServerID(d.ItemID),
		Kind:       domain.MovementKind(d.Kind),
		Quantity:   d.Quantity,
		FromBoxID:  fromServerRef(d.FromBoxID),
		ToBoxID:    fromServerRef(d.ToBoxID),
		Note:       d.Note,
		Provenance: domain.ProvenanceConfirmed,
		CreatedAt:  d.CreatedAt.UTC(),
	}
}

type stockResultDTO struct {
	Item        itemDTO        `json:"item"`
	Transaction transactionDTO `json:"transaction"`
}

func (d stockResultDTO) toDomain() *domain.StockResult {
	return &domain.StockResult{Item: d.Item.toDomain(), Transaction: d.Transaction.toDomain()}
}

type itemBody struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	SKU         string `json:"sku,omitempty"`
	Quantity    int    `json:"quantity"`
	BoxID       *int64 `json:"box_id,omitempty"`
}

func newItemBody(in domain.ItemInput) (itemBody, error) {
	box, err := toServerRef(in.BoxID)
	if err != nil {
		return itemBody{}, err
	}
	return itemBody{
		Name:        in.Name,
		Description: in.Description,
		SKU:         in.SKU,
		Quantity:    in.Quantity,
		BoxID:       box,
	}, nil
}

// itemPatchBody sends only the fields that are set. box_id is sent as null
// to take the item out of its box.
func itemPatchBody(p domain.ItemPatch) (map[string]any, error) {
	body := map[string]any{}
	if p.Name != nil {
		body["name"] = *p.Name
	}
	if p.Description != nil {
		body["description"] = *p.Description
	}
	if p.SKU != nil {
		body["sku"] = *p.SKU
	}
	if p.Quantity != nil {
		body["quantity"] = *p.Quantity
	}
	if p.BoxID != nil {
		if *p.BoxID == "" {
			body["box_id"] = nil
		} else {
			n, err := serverID(*p.BoxID)
			if err != nil {
				return nil, err
			}
			body["box_id"] = n
		}
	}
	return body, nil
}

func boxPatchBody(p domain.BoxPatch) map[string]any {
	body := map[string]any{}
	if p.Name != nil {
		body["name"] = *p.Name
	}
	if p.Location != nil {
		body["location"] = *p.Location
	}
	if p.Description != nil {
		body["description"] = *p.Description
	}
	return body
}

type transferBody struct {
	BoxID int64  `json:"box_id"`
	Note  string `json:"note,omitempty"`
}

func serverID(id domain.RecordID) (int64, error) {
	if id.IsTemp() {
		return 0, fmt.Errorf("%w: %s", ErrUnresolvedReference, id)
	}
	n, ok := id.Int64()
	if !ok {
		return 0, fmt.Errorf("%w: malformed id %q", ErrNotFound, id)
	}
	return n, nil
}

func toServerRef(id *domain.RecordID) (*int64, error) {
	if id == nil || *id == "" {
		return nil, nil
	}
	n, err := serverID(*id)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func fromServerRef(n *int64) *domain.RecordID {
	if n == nil {
		return nil
	}
	return domain.ServerID(*n).Ref()
}

func mapSlice[D any, T any](in []D, f func(D) T) []T {
	out := make([]T, 0, len(in))
	for _, d := range in {
		out = append(out, f(d))
	}
	return out
}
