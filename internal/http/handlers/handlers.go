// Package handlers implements the local inventory API on top of the resource
// facade and the sync service.
//
// Handlers are transport-thin: they decode the request, call the facade or
// the sync service, and translate results and errors into the JSON envelopes
// defined in response.go. Every record in a response carries its provenance
// so the UI can badge offline-created or pending rows.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-inventory-sync/internal/domain"
	"github.com/tbourn/go-inventory-sync/internal/http/middleware"
	"github.com/tbourn/go-inventory-sync/internal/remote"
	"github.com/tbourn/go-inventory-sync/internal/services"
	"github.com/tbourn/go-inventory-sync/internal/syncer"
	"github.com/tbourn/go-inventory-sync/internal/utils"
)

//
// Service contracts (context-aware)
//

// ItemService is the item part of the resource facade.
type ItemService interface {
	List(ctx context.Context, q domain.ItemQuery) ([]domain.Item, error)
	Get(ctx context.Context, id domain.RecordID) (*domain.Item, error)
	Create(ctx context.Context, in domain.ItemInput, idemKey string) (*domain.Item, error)
	Update(ctx context.Context, id domain.RecordID, p domain.ItemPatch) (*domain.Item, error)
	Delete(ctx context.Context, id domain.RecordID) error
	StockIn(ctx context.Context, id domain.RecordID, m domain.StockMovement) (*domain.StockResult, error)
	StockOut(ctx context.Context, id domain.RecordID, m domain.StockMovement) (*domain.StockResult, error)
	Transfer(ctx context.Context, id domain.RecordID, in domain.TransferInput) (*domain.StockResult, error)
}

// BoxService is the box part of the resource facade.
type BoxService interface {
	List(ctx context.Context, q domain.BoxQuery) ([]domain.Box, error)
	Get(ctx context.Context, id domain.RecordID) (*domain.Box, error)
	Items(ctx context.Context, id domain.RecordID, q domain.ItemQuery) ([]domain.Item, error)
	Create(ctx context.Context, in domain.BoxInput, idemKey string) (*domain.Box, error)
	Update(ctx context.Context, id domain.RecordID, p domain.BoxPatch) (*domain.Box, error)
	Delete(ctx context.Context, id domain.RecordID) error
}

// TransactionService serves the stock history.
type TransactionService interface {
	List(ctx context.Context, q domain.TransactionQuery) ([]domain.Transaction, error)
	Get(ctx context.Context, id domain.RecordID) (*domain.Transaction, error)
}

// SyncService exposes the mutation queue drain.
type SyncService interface {
	Status(ctx context.Context) syncer.Status
	ForceSync(ctx context.Context) (syncer.Status, error)
}

// Connectivity is the connectivity monitor as driven by the UI shell, which
// forwards the platform's online/offline events.
type Connectivity interface {
	IsOnline() bool
	Check(ctx context.Context) bool
	HandleOnline()
	HandleOffline()
}

// Refresher drops cached reads after an out-of-band change.
type Refresher interface {
	Refresh(ctx context.Context, res domain.Resource) error
}

//
// Handler wiring
//

// Services groups the collaborators of Handlers.
type Services struct {
	Items        ItemService
	Boxes        BoxService
	Transactions TransactionService
	Sync         SyncService
	Net          Connectivity
	Refresh      Refresher
}

// Handlers groups the HTTP endpoints of the local API.
type Handlers struct {
	items ItemService
	boxes BoxService
	txns  TransactionService
	sync  SyncService
	net   Connectivity
	ref   Refresher
}

// New constructs Handlers bound to the given services.
func New(s Services) *Handlers {
	return &Handlers{
		items: s.Items,
		boxes: s.Boxes,
		txns:  s.Transactions,
		sync:  s.Sync,
		net:   s.Net,
		ref:   s.Refresh,
	}
}

//
// Helpers
//

const (
	defaultListLimit = 0
	maxListLimit     = 500
)

// idParam reads the :id path segment.
func idParam(c *gin.Context) (domain.RecordID, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "missing id")
		return "", false
	}
	return domain.RecordID(id), true
}

// listLimit parses ?limit=, clamped to [0, maxListLimit]; 0 means no limit.
func listLimit(c *gin.Context) int {
	n := utils.AtoiDefault(c.Query("limit"), defaultListLimit)
	if n < 0 {
		return 0
	}
	return min(n, maxListLimit)
}

func boolQuery(c *gin.Context, name string) bool {
	return utils.BoolDefault(c.Query(name), false)
}

// skipCache reports ?fresh=true, which bypasses the read cache.
func skipCache(c *gin.Context) bool { return boolQuery(c, "fresh") }

func optionalID(c *gin.Context, name string) *domain.RecordID {
	if v := strings.TrimSpace(c.Query(name)); v != "" {
		id := domain.RecordID(v)
		return &id
	}
	return nil
}

func idemKey(c *gin.Context) string {
	key, _ := middleware.GetIdempotencyKey(c)
	return key
}

// bindJSON decodes the body or answers 400.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// failService maps a facade or sync error onto the error envelope.
func failService(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrItemNotFound),
		errors.Is(err, services.ErrBoxNotFound),
		errors.Is(err, services.ErrTransactionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case isValidation(err):
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, services.ErrBoxInUse), errors.Is(err, domain.ErrTombstoned), errors.Is(err, remote.ErrConflict):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrUnknownResource):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrOfflineUnavailable):
		fail(c, http.StatusServiceUnavailable, ErrCodeOfflineUnavailable, err.Error())
	case errors.Is(err, remote.ErrUnauthorized):
		fail(c, http.StatusBadGateway, ErrCodeRemoteUnauthorized, "remote API rejected the credentials")
	case errors.Is(err, remote.ErrValidation), errors.Is(err, remote.ErrUnresolvedReference):
		fail(c, http.StatusUnprocessableEntity, ErrCodeRemoteRejected, err.Error())
	case errors.Is(err, syncer.ErrOffline):
		fail(c, http.StatusServiceUnavailable, ErrCodeOffline, err.Error())
	case errors.Is(err, syncer.ErrSyncInProgress):
		fail(c, http.StatusConflict, ErrCodeSyncInProgress, err.Error())
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to write
		c.Abort()
	case remote.StatusOf(err) > 0:
		fail(c, http.StatusBadGateway, ErrCodeRemoteRejected, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

func isValidation(err error) bool {
	return errors.Is(err, domain.ErrNameRequired) ||
		errors.Is(err, domain.ErrNegativeQuantity) ||
		errors.Is(err, domain.ErrInvalidQuantity) ||
		errors.Is(err, domain.ErrBoxRequired)
}
