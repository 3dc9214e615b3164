package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/smartdata/pedidos/internal/domain/tenant"
)

// AdminCredentials accompany every admin action.
type AdminCredentials struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

func (c AdminCredentials) values() url.Values {
	return url.Values{"user": {c.User}, "pass": {c.Pass}}
}

func (c *Client) adminCall(ctx context.Context, creds AdminCredentials, action string, extra url.Values, out any) error {
	params := creds.values()
	for k, vs := range extra {
		params[k] = vs
	}
	return c.call(ctx, c.adminURL, action, params, out)
}

func encodeDatos(v any) (url.Values, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode datos: %w", err)
	}
	return url.Values{"datos": {string(b)}}, nil
}

// AdminLogin checks administrator credentials.
func (c *Client) AdminLogin(ctx context.Context, creds AdminCredentials) error {
	return c.adminCall(ctx, creds, "adminLogin", nil, nil)
}

// AdminDashboard returns the aggregate metrics.
func (c *Client) AdminDashboard(ctx context.Context, creds AdminCredentials) (*tenant.Dashboard, error) {
	var resp struct {
		Metrics tenant.Dashboard `json:"metrics"`
	}
	if err := c.adminCall(ctx, creds, "adminDashboard", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Metrics, nil
}

// AdminListTenants returns every tenant.
func (c *Client) AdminListTenants(ctx context.Context, creds AdminCredentials) ([]tenant.Tenant, error) {
	var resp struct {
		Tenants []tenant.Tenant `json:"empresas"`
	}
	if err := c.adminCall(ctx, creds, "adminGetEmpresas", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tenants, nil
}

// AdminCreateTenant creates a tenant. An empty ID lets the backend assign one;
// the assigned ID is returned when the backend reports it.
func (c *Client) AdminCreateTenant(ctx context.Context, creds AdminCredentials, t tenant.Tenant) (string, error) {
	params, err := encodeDatos(t)
	if err != nil {
		return "", err
	}
	var resp struct {
		ID string `json:"empresa_id"`
	}
	if err := c.adminCall(ctx, creds, "adminCreateEmpresa", params, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		resp.ID = t.ID
	}
	return resp.ID, nil
}

// AdminUpdateTenant sends changes, a full tenant or any partial object the
// backend merges, as the datos parameter.
func (c *Client) AdminUpdateTenant(ctx context.Context, creds AdminCredentials, id string, changes any) error {
	params, err := encodeDatos(changes)
	if err != nil {
		return err
	}
	params.Set("empresa_id", id)
	return c.adminCall(ctx, creds, "adminUpdateEmpresa", params, nil)
}

// AdminListTokens returns the vendor tokens of one tenant.
func (c *Client) AdminListTokens(ctx context.Context, creds AdminCredentials, tenantID string) ([]tenant.Token, error) {
	var resp struct {
		Tokens []tenant.Token `json:"tokens"`
	}
	err := c.adminCall(ctx, creds, "adminGetTokens", url.Values{"empresa_id": {tenantID}}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Tokens, nil
}

// AdminCreateToken issues a token and returns its value.
func (c *Client) AdminCreateToken(ctx context.Context, creds AdminCredentials, t tenant.Token) (string, error) {
	params, err := encodeDatos(struct {
		Vendor   string `json:"vendedor"`
		TenantID string `json:"empresa_id"`
		Active   bool   `json:"activo"`
	}{t.Vendor, t.TenantID, t.Active})
	if err != nil {
		return "", err
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.adminCall(ctx, creds, "adminCreateToken", params, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// AdminUpdateToken sends changes for one token as the datos parameter.
func (c *Client) AdminUpdateToken(ctx context.Context, creds AdminCredentials, token string, changes any) error {
	params, err := encodeDatos(changes)
	if err != nil {
		return err
	}
	params.Set("token", token)
	return c.adminCall(ctx, creds, "adminUpdateToken", params, nil)
}

// AdminDeleteToken revokes a token.
func (c *Client) AdminDeleteToken(ctx context.Context, creds AdminCredentials, token string) error {
	return c.adminCall(ctx, creds, "adminDeleteToken", url.Values{"token": {token}}, nil)
}
