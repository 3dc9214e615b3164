package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/smartdata/pedidos/internal/domain/tenant"
)

// Token validation statuses.
const (
	TokenSuccess   = "success"
	TokenInvalid   = "invalid"
	TokenSuspended = "suspended"
)

// TokenResult is the reply to validateToken. Status is one of the Token*
// constants or a backend-specific error string.
type TokenResult struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	User    string         `json:"usuario,omitempty"`
	Tenant  *tenant.Tenant `json:"empresa,omitempty"`
}

// ValidateToken asks the backend whether token is valid. Transport failures,
// per-attempt timeouts and 5xx responses are retried with linear backoff;
// once attempts run out the error wraps ErrUnavailable. Any decoded reply,
// whatever its status, is returned without retrying.
func (c *Client) ValidateToken(ctx context.Context, token string) (*TokenResult, error) {
	params := url.Values{"token": {token}}

	var (
		result  TokenResult
		attempt int
	)
	err := retry.Do(ctx, c.validationBackoff(), func(ctx context.Context) error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, c.retry.AttemptTimeout)
		defer cancel()

		_, body, err := c.get(attemptCtx, c.ordersURL, "validateToken", params)
		if err != nil {
			if Retryable(err) && ctx.Err() == nil {
				c.logger.Warn("token validation attempt failed",
					slog.Int("attempt", attempt),
					slog.Int("max_attempts", c.retry.MaxAttempts),
					slog.Any("error", err),
				)
				return retry.RetryableError(err)
			}
			return err
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("%w: validateToken: %v", ErrMalformedResponse, err)
		}
		return nil
	})
	if err != nil {
		if Retryable(err) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: validate token after %d attempt(s): %w", ErrUnavailable, attempt, err)
		}
		return nil, err
	}
	return &result, nil
}

// validationBackoff waits attempt × unit between attempts.
func (c *Client) validationBackoff() retry.Backoff {
	var n int64
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		n++
		return time.Duration(n) * c.retry.BackoffUnit, false
	})
	return retry.WithMaxRetries(uint64(c.retry.MaxAttempts-1), b)
}

// OrderRow is one line item as the saveOrderRow action expects it.
type OrderRow struct {
	TenantID     string
	Client       string
	ProductCode  string
	ProductName  string
	Quantity     int
	Tier         string
	UnitPrice    string // two decimals
	LineTotal    string
	OrderTotal   string
	Vendor       string
	Comment      string
	Municipio    string
	Departamento string
	Distrito     string
}

// Values encodes the row. Only the selected tier's price column is filled.
func (r OrderRow) Values() url.Values {
	v := url.Values{
		"cliente":      {r.Client},
		"cod_producto": {r.ProductCode},
		"producto":     {r.ProductName},
		"cantidad":     {strconv.Itoa(r.Quantity)},
		"lista":        {r.Tier},
		"precio_01":    {""},
		"precio_02":    {""},
		"precio_03":    {""},
		"total_item":   {r.LineTotal},
		"total_pedi":   {r.OrderTotal},
		"vendedor":     {r.Vendor},
		"comentario":   {r.Comment},
		"municipio":    {r.Municipio},
		"departamento": {r.Departamento},
		"distrito":     {r.Distrito},
	}
	switch r.Tier {
	case "1":
		v.Set("precio_01", r.UnitPrice)
	case "2":
		v.Set("precio_02", r.UnitPrice)
	case "3":
		v.Set("precio_03", r.UnitPrice)
	}
	if r.TenantID != "" {
		v.Set("empresa_id", r.TenantID)
	}
	return v
}

// SaveOrderRow submits one line. A non-2xx reply, a transport error or a
// reply whose status is present and not "success" is a failure.
func (c *Client) SaveOrderRow(ctx context.Context, row OrderRow) error {
	env, _, err := c.get(ctx, c.ordersURL, "saveOrderRow", row.Values())
	if err != nil {
		return err
	}
	if env.Status != "" && env.Status != statusSuccess {
		return &StatusError{Action: "saveOrderRow", Status: env.Status, Message: env.Message}
	}
	return nil
}

// OrderPayload is the consolidated order sent by saveOrder.
type OrderPayload struct {
	Reference    string        `json:"referencia"`
	TenantID     string        `json:"empresa_id,omitempty"`
	Client       string        `json:"cliente"`
	Vendor       string        `json:"vendedor"`
	Comment      string        `json:"comentarios"`
	Municipio    string        `json:"municipio"`
	Departamento string        `json:"departamento"`
	Distrito     string        `json:"distrito"`
	Items        []PayloadItem `json:"items"`
	Total        string        `json:"total"`
}

type PayloadItem struct {
	Code      string `json:"codigo"`
	Name      string `json:"producto"`
	Quantity  int    `json:"cantidad"`
	UnitPrice string `json:"precioUnitario"`
	Tier      string `json:"lista"`
	Total     string `json:"total"`
}

// SaveOrder submits the whole order in one request.
func (c *Client) SaveOrder(ctx context.Context, order OrderPayload) error {
	datos, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode order: %w", err)
	}
	return c.call(ctx, c.ordersURL, "saveOrder", url.Values{"datos": {string(datos)}}, nil)
}
