// Package remote is the HTTP client for the inventory REST API.
//
// This file maps each resource operation to its endpoint:
//
//	GET/POST        /items          GET/PUT/DELETE /items/{id}
//	POST            /items/{id}/stock-in | stock-out | transfer
//	GET/POST        /boxes          GET/PUT/DELETE /boxes/{id}
//	GET             /transactions   GET            /transactions/{id}
//
// Local placeholder ids are never sent: they fail with ErrUnresolvedReference.
package remote

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tbourn/go-inventory-sync/internal/domain"
)

func withQuery(path string, v url.Values) string {
	if len(v) == 0 {
		return path
	}
	return path + "?" + v.Encode()
}

func recordPath(res domain.Resource, id domain.RecordID, suffix string) (string, error) {
	n, err := serverID(id)
	if err != nil {
		return "", err
	}
	return "/" + string(res) + "/" + strconv.FormatInt(n, 10) + suffix, nil
}

// --- Items ---

// ListItems returns the items matching q.
func (c *Client) ListItems(ctx context.Context, q domain.ItemQuery) ([]domain.Item, error) {
	if q.BoxID != nil {
		if _, err := serverID(*q.BoxID); err != nil {
			return nil, err
		}
	}
	var resp []itemDTO
	if err := c.do(ctx, http.MethodGet, withQuery("/items", q.Values()), nil, &resp); err != nil {
		return nil, err
	}
	return mapSlice(resp, itemDTO.toDomain), nil
}

// GetItem fetches a single item.
func (c *Client) GetItem(ctx context.Context, id domain.RecordID) (*domain.Item, error) {
	path, err := recordPath(domain.ResourceItems, id, "")
	if err != nil {
		return nil, err
	}
	var resp itemDTO
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	it := resp.toDomain()
	return &it, nil
}

// CreateItem creates an item and returns the server's record.
func (c *Client) CreateItem(ctx context.Context, in domain.ItemInput) (*domain.Item, error) {
	body, err := newItemBody(in)
	if err != nil {
		return nil, err
	}
	var resp itemDTO
	if err := c.do(ctx, http.MethodPost, "/items", body, &resp); err != nil {
		return nil, err
	}
	it := resp.toDomain()
	return &it, nil
}

// UpdateItem applies a partial update.
func (c *Client) UpdateItem(ctx context.Context, id domain.RecordID, p domain.ItemPatch) (*domain.Item, error) {
	path, err := recordPath(domain.ResourceItems, id, "")
	if err != nil {
		return nil, err
	}
	body, err := itemPatchBody(p)
	if err != nil {
		return nil, err
	}
	var resp itemDTO
	if err := c.do(ctx, http.MethodPut, path, body, &resp); err != nil {
		return nil, err
	}
	it := resp.toDomain()
	return &it, nil
}

// DeleteItem deletes an item.
func (c *Client) DeleteItem(ctx context.Context, id domain.RecordID) error {
	path, err := recordPath(domain.ResourceItems, id, "")
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// StockIn adds stock to an item.
func (c *Client) StockIn(ctx context.Context, id domain.RecordID, m domain.StockMovement) (*domain.StockResult, error) {
	return c.stock(ctx, id, "/stock-in", m)
}

// StockOut removes stock from an item. The server clamps at zero.
func (c *Client) StockOut(ctx context.Context, id domain.RecordID, m domain.StockMovement) (*domain.StockResult, error) {
	return c.stock(ctx, id, "/stock-out", m)
}

// Transfer moves an item into another box.
func (c *Client) Transfer(ctx context.Context, id domain.RecordID, in domain.TransferInput) (*domain.StockResult, error) {
	box, err := serverID(in.BoxID)
	if err != nil {
		return nil, err
	}
	return c.stock(ctx, id, "/transfer", transferBody{BoxID: box, Note: in.Note})
}

func (c *Client) stock(ctx context.Context, id domain.RecordID, action string, body any) (*domain.StockResult, error) {
	path, err := recordPath(domain.ResourceItems, id, action)
	if err != nil {
		return nil, err
	}
	var resp stockResultDTO
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

// --- Boxes ---

// ListBoxes returns the boxes matching q.
func (c *Client) ListBoxes(ctx context.Context, q domain.BoxQuery) ([]domain.Box, error) {
	var resp []boxDTO
	if err := c.do(ctx, http.MethodGet, withQuery("/boxes", q.Values()), nil, &resp); err != nil {
		return nil, err
	}
	return mapSlice(resp, boxDTO.toDomain), nil
}

// GetBox fetches a single box.
func (c *Client) GetBox(ctx context.Context, id domain.RecordID) (*domain.Box, error) {
	path, err := recordPath(domain.ResourceBoxes, id, "")
	if err != nil {
		return nil, err
	}
	var resp boxDTO
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	b := resp.toDomain()
	return &b, nil
}

// CreateBox creates a box.
func (c *Client) CreateBox(ctx context.Context, in domain.BoxInput) (*domain.Box, error) {
	var resp boxDTO
	if err := c.do(ctx, http.MethodPost, "/boxes", in, &resp); err != nil {
		return nil, err
	}
	b := resp.toDomain()
	return &b, nil
}

// UpdateBox applies a partial update.
func (c *Client) UpdateBox(ctx context.Context, id domain.RecordID, p domain.BoxPatch) (*domain.Box, error) {
	path, err := recordPath(domain.ResourceBoxes, id, "")
	if err != nil {
		return nil, err
	}
	var resp boxDTO
	if err := c.do(ctx, http.MethodPut, path, boxPatchBody(p), &resp); err != nil {
		return nil, err
	}
	b := resp.toDomain()
	return &b, nil
}

// DeleteBox deletes a box.
func (c *Client) DeleteBox(ctx context.Context, id domain.RecordID) error {
	path, err := recordPath(domain.ResourceBoxes, id, "")
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// --- Transactions ---

// ListTransactions returns the stock history matching q.
func (c *Client) ListTransactions(ctx context.Context, q domain.TransactionQuery) ([]domain.Transaction, error) {
	if q.ItemID != nil {
		if _, err := serverID(*q.ItemID); err != nil {
			return nil, err
		}
	}
	var resp []transactionDTO
	if err := c.do(ctx, http.MethodGet, withQuery("/transactions", q.Values()), nil, &resp); err != nil {
		return nil, err
	}
	return mapSlice(resp, transactionDTO.toDomain), nil
}

// GetTransaction fetches a single transaction.
func (c *Client) GetTransaction(ctx context.Context, id domain.RecordID) (*domain.Transaction, error) {
	path, err := recordPath(domain.ResourceTransactions, id, "")
	if err != nil {
		return nil, err
	}
	var resp transactionDTO
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	t := resp.toDomain()
	return &t, nil
}
