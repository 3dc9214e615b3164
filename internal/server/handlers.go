package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/smartdata/pedidos/internal/domain/catalog"
	"github.com/smartdata/pedidos/internal/domain/order"
	"github.com/smartdata/pedidos/internal/domain/receipt"
	"github.com/smartdata/pedidos/internal/domain/session"
	"github.com/smartdata/pedidos/pkg/money"
	"github.com/smartdata/pedidos/pkg/storage"
)

const maxBodyBytes = 1 << 20

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.deps.Catalog != nil {
		c := s.deps.Catalog.Current()
		body["clients"] = len(c.Clients)
		body["products"] = len(c.Products)
		if !c.LoadedAt.IsZero() {
			body["catalog_loaded_at"] = c.LoadedAt.Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, body)
}

type tenantView struct {
	ID   string `json:"empresa_id"`
	Name string `json:"nombre"`
}

type sessionView struct {
	User        string      `json:"user"`
	Vendor      string      `json:"vendor,omitempty"`
	Tenant      *tenantView `json:"tenant,omitempty"`
	ExpiresAt   time.Time   `json:"expires_at"`
	NeedsVendor bool        `json:"needs_vendor"`
	Vendors     []string    `json:"vendors,omitempty"`
}

func newSessionView(sess *session.Session, m *session.Manager) sessionView {
	v := sessionView{
		User:        sess.User,
		Vendor:      sess.Vendor,
		ExpiresAt:   sess.ExpiresAt,
		NeedsVendor: sess.NeedsVendor(),
	}
	if sess.Tenant != nil {
		v.Tenant = &tenantView{ID: sess.Tenant.ID, Name: sess.Tenant.Name}
	}
	if v.NeedsVendor {
		v.Vendors = m.Vendors()
	}
	return v
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request, m *session.Manager) (int, any, error) {
	sess, err := m.Current(r.Context())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newSessionView(sess, m), nil
}

type loginRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request, m *session.Manager) (int, any, error) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		return 0, nil, err
	}
	sess, err := m.Validate(r.Context(), req.Token)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, newSessionView(sess, m), nil
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request, m *session.Manager) (int, any, error) {
	if err := m.Logout(r.Context()); err != nil {
		return 0, nil, err
	}
	return http.StatusNoContent, nil, nil
}

type vendorRequest struct {
	Vendor string `json:"vendor"`
}

func (s *Server) handleVendorSelect(w http.ResponseWriter, r *http.Request, m *session.Manager) (int, any, error) {
	var req vendorRequest
	if err := decodeBody(r, &req); err != nil {
		return 0, nil, err
	}
	sess, err := m.SelectVendor(r.Context(), req.Vendor)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newSessionView(sess, m), nil
}

// requireVendor returns a session that can place orders.
func requireVendor(r *http.Request, m *session.Manager) (*session.Session, error) {
	sess, err := m.Current(r.Context())
	if err != nil {
		return nil, err
	}
	if sess.NeedsVendor() {
		return nil, errVendorPending
	}
	return sess, nil
}

func (s *Server) searchLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 || n > 100 {
		return s.opts.SearchLimit
	}
	return n
}

func (s *Server) handleClients(w http.ResponseWriter, r *http.Request, m *session.Manager) (int, any, error) {
	if _, err := m.Current(r.Context()); err != nil {
		return 0, nil, err
	}
	clients := s.deps.Catalog.Current().SearchClients(r.URL.Query().Get("q"), s.searchLimit(r))
	type clientView struct {
		catalog.Client
		Locality catalog.Locality `json:"locality"`
	}
	out := make([]clientView, 0, len(clients))
	for _, c := range clients {
		out = append(out, clientView{Client: c, Locality: c.Locality()})
	}
	return http.StatusOK, out, nil
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request, m *session.Manager) (int, any, error) {
	if _, err := m.Current(r.Context()); err != nil {
		return 0, nil, err
	}
	return http.StatusOK, s.deps.Catalog.Current().SearchProducts(r.URL.Query().Get("q"), s.searchLimit(r)), nil
}

// quantity accepts a JSON number or string; strings are parsed leniently
// like the quantity input.
type quantity string

func (q *quantity) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*q = quantity(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*q = quantity(n.String())
	return nil
}

type orderLineRequest struct {
	ProductCode string       `json:"product_code"`
	Tier        catalog.Tier `json:"tier"`
	Quantity    quantity     `json:"quantity"`
}

type orderRequest struct {
	ClientCode string             `json:"client_code"`
	Comments   string             `json:"comments"`
	Locality   *catalog.Locality  `json:"locality,omitempty"`
	Lines      []orderLineRequest `json:"lines"`
	Receipt    *bool              `json:"receipt,omitempty"`
}

func (req orderRequest) draft() order.Draft {
	d := order.Draft{
		ClientCode: req.ClientCode,
		Comments:   req.Comments,
		Locality:   req.Locality,
		Lines:      make([]order.DraftLine, 0, len(req.Lines)),
	}
	for _, l := range req.Lines {
		d.Lines = append(d.Lines, order.DraftLine{ProductCode: l.ProductCode, Tier: l.Tier, Quantity: string(l.Quantity)})
	}
	return d
}

type lineView struct {
	ProductCode string `json:"product_code"`
	Quantity    int    `json:"quantity"`
	Tier        string `json:"tier"`
	UnitPrice   string `json:"unit_price"`
	Total       string `json:"total"`
	Error       string `json:"error,omitempty"`
}

type receiptView struct {
	ID       uuid.UUID `json:"id"`
	Filename string    `json:"filename"`
	URL      string    `json:"url"`
	Emailed  bool      `json:"emailed"`
}

type orderView struct {
	Reference string       `json:"reference"`
	Client    string       `json:"client"`
	Vendor    string       `json:"vendor"`
	Total     string       `json:"total"`
	Failed    int          `json:"failed"`
	Lines     []lineView   `json:"lines"`
	Receipt   *receiptView `json:"receipt,omitempty"`
	Warning   string       `json:"warning,omitempty"`
}

func newOrderView(res *order.Result) orderView {
	sub := res.Submission
	v := orderView{
		Reference: sub.Reference,
		Client:    sub.Client.Code,
		Vendor:    sub.Vendor,
		Total:     money.Fixed(sub.Total),
		Failed:    res.Failed,
		Lines:     make([]lineView, 0, len(res.Lines)),
	}
	for _, lr := range res.Lines {
		lv := lineView{
			ProductCode: lr.Line.ProductCode,
			Quantity:    lr.Line.Quantity,
			Tier:        string(lr.Line.Tier),
			UnitPrice:   money.Fixed(lr.Line.UnitPrice),
			Total:       money.Fixed(lr.Line.Total()),
		}
		if lr.Err != nil {
			lv.Error = lr.Err.Error()
		}
		v.Lines = append(v.Lines, lv)
	}
	return v
}

func (s *Server) handleOrderCreate(w http.ResponseWriter, r *http.Request, m *session.Manager) (int, any, error) {
	sess, err := requireVendor(r, m)
	if err != nil {
		return 0, nil, err
	}
	var req orderRequest
	if err := decodeBody(r, &req); err != nil {
		return 0, nil, err
	}
	form, err := order.FormFromDraft(s.deps.Catalog.Current(), req.draft())
	if err != nil {
		return 0, nil, err
	}

	res, err := s.deps.Submitter.Submit(r.Context(), form, sess.Vendor, sess.TenantID())
	if errors.Is(err, order.ErrSubmissionFailed) && res != nil {
		return http.StatusMultiStatus, newOrderView(res), nil
	}
	if err != nil {
		return 0, nil, err
	}

	view := newOrderView(res)
	if s.deps.Receipts != nil && (req.Receipt == nil || *req.Receipt) {
		a, err := s.deps.Receipts.Generate(r.Context(), res.Submission, sess.Tenant)
		if err != nil {
			s.logger.Error("failed to generate receipt", slog.String("reference", res.Submission.Reference), slog.Any("error", err))
			view.Warning = "receipt could not be generated"
		} else if a.File != nil {
			view.Receipt = &receiptView{
				ID:       a.File.ID,
				Filename: a.Filename,
				URL:      "/api/receipts/" + a.File.ID.String(),
				Emailed:  a.EmailID != "",
			}
		}
	}
	return http.StatusCreated, view, nil
}

func (s *Server) handleReceiptList(w http.ResponseWriter, r *http.Request, m *session.Manager) (int, any, error) {
	sess, err := m.Current(r.Context())
	if err != nil {
		return 0, nil, err
	}
	if s.deps.Files == nil {
		return 0, nil, errNoReceipts
	}
	files, err := s.deps.Files.List(r.Context(), receipt.Owner(sess.Tenant))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, files, nil
}

func (s *Server) handleReceiptDownload(w http.ResponseWriter, r *http.Request, m *session.Manager) (int, any, error) {
	sess, err := m.Current(r.Context())
	if err != nil {
		return 0, nil, err
	}
	if s.deps.Files == nil {
		return 0, nil, errNoReceipts
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return 0, nil, fmt.Errorf("receipt %q: %w", r.PathValue("id"), storage.ErrNotFound)
	}

	rc, info, err := s.deps.Files.Open(r.Context(), receipt.Owner(sess.Tenant), id)
	if err != nil {
		return 0, nil, err
	}
	defer rc.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Name}))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("receipt download interrupted", slog.String("id", id.String()), slog.Any("error", err))
	}
	return 0, nil, nil
}
