package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"github.com/smartdata/pedidos/internal/domain/gateway"
	"github.com/smartdata/pedidos/internal/domain/order"
	"github.com/smartdata/pedidos/internal/domain/session"
	"github.com/smartdata/pedidos/pkg/storage"
)

var (
	errBadRequest    = errors.New("malformed request body")
	errVendorPending = errors.New("vendor not selected")
	errNoReceipts    = errors.New("receipts are not enabled")
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	var statusErr *gateway.StatusError
	switch {
	case errors.Is(err, session.ErrNoSession), errors.Is(err, session.ErrExpired):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, session.ErrTenantSuspended),
		errors.Is(err, session.ErrRejected),
		errors.Is(err, errVendorPending):
		return http.StatusForbidden
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, session.ErrEmptyToken),
		errors.Is(err, session.ErrUnknownVendor),
		errors.Is(err, order.ErrUnknownClient),
		errors.Is(err, order.ErrUnknownProduct),
		errors.Is(err, order.ErrIncompleteOrder),
		errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, order.ErrInvalidTier),
		errors.Is(err, order.ErrNoProduct),
		errors.Is(err, order.ErrDuplicateLine):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, fs.ErrNotExist), errors.Is(err, errNoReceipts):
		return http.StatusNotFound
	case errors.Is(err, gateway.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &statusErr),
		errors.Is(err, gateway.ErrMalformedResponse),
		errors.Is(err, gateway.ErrResponseTooLarge):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
