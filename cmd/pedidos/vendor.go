package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smartdata/pedidos/internal/domain/catalog"
	"github.com/smartdata/pedidos/internal/domain/order"
	"github.com/smartdata/pedidos/internal/domain/receipt"
	"github.com/smartdata/pedidos/internal/domain/session"
	"github.com/smartdata/pedidos/pkg/money"
)

var (
	errVendorPending = errors.New("no vendor selected, run: pedidos vendor NAME")
	errBadLine       = errors.New("line must look like CODE=QTY or CODE@TIER=QTY")
	errNoLedger      = errors.New("ledger is disabled (LEDGER_PATH is empty)")
)

const dateTimeLayout = "02/01/2006 15:04"

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login TOKEN",
		Short: "Validate an access token and start a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.deps.Sessions.Validate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printSession(cmd.OutOrStdout(), sess)
		},
	}
}

func newVendorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "vendor [NAME]",
		Short: "Pick who takes orders in this session, or list the names",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, v := range a.deps.Sessions.Vendors() {
					fmt.Fprintln(cmd.OutOrStdout(), v)
				}
				return nil
			}
			sess, err := a.deps.Sessions.SelectVendor(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return a.printSession(cmd.OutOrStdout(), sess)
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.deps.Sessions.Restore(cmd.Context())
			if err != nil {
				return err
			}
			return a.printSession(cmd.OutOrStdout(), sess)
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.deps.Sessions.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sesion cerrada")
			return nil
		},
	}
}

func (a *app) printSession(w io.Writer, sess *session.Session) error {
	if a.json {
		return printJSON(w, struct {
			*session.Session
			NeedsVendor bool     `json:"needsVendor"`
			Vendors     []string `json:"vendors,omitempty"`
		}{sess, sess.NeedsVendor(), a.pendingVendors(sess)})
	}

	t := newTable(w)
	t.row("usuario:", sess.User)
	if sess.NeedsVendor() {
		t.row("vendedor:", "(pendiente)")
	} else {
		t.row("vendedor:", sess.Vendor)
	}
	if sess.Tenant != nil {
		t.row("empresa:", fmt.Sprintf("%s (%s)", sess.Tenant.Name, sess.Tenant.ID))
	}
	t.row("expira:", sess.ExpiresAt.Local().Format(dateTimeLayout))
	if err := t.flush(); err != nil {
		return err
	}

	if vendors := a.pendingVendors(sess); len(vendors) > 0 {
		fmt.Fprintf(w, "\nseleccione vendedor (pedidos vendor NAME): %s\n", strings.Join(vendors, ", "))
	}
	return nil
}

func (a *app) pendingVendors(sess *session.Session) []string {
	if !sess.NeedsVendor() {
		return nil
	}
	return a.deps.Sessions.Vendors()
}

// loadCatalog refreshes the lists. A degraded load is reported and the
// partial catalog is used.
func (a *app) loadCatalog(ctx context.Context) *catalog.Catalog {
	if _, err := a.deps.Catalog.Refresh(ctx); err != nil {
		a.logger.Warn("catalog loaded with errors", slog.Any("error", err))
	}
	return a.deps.Catalog.Current()
}

func newClientsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "clients [QUERY]",
		Short: "Search the client list",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.deps.Sessions.Current(ctx); err != nil {
				return err
			}
			clients := a.loadCatalog(ctx).SearchClients(strings.Join(args, " "), limit)
			if a.json {
				return printJSON(cmd.OutOrStdout(), clients)
			}

			t := newTable(cmd.OutOrStdout(), "CODIGO", "CLIENTE", "MUNICIPIO", "DEPARTAMENTO", "DISTRITO")
			for _, c := range clients {
				loc := c.Locality()
				t.row(c.Code, c.Name, loc.Municipio, loc.Departamento, loc.Distrito)
			}
			return t.flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum results, 0 for all")
	return cmd
}

func newProductsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "products [QUERY]",
		Short: "Search the product list",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.deps.Sessions.Current(ctx); err != nil {
				return err
			}
			products := a.loadCatalog(ctx).SearchProducts(strings.Join(args, " "), limit)
			if a.json {
				return printJSON(cmd.OutOrStdout(), products)
			}

			t := newTable(cmd.OutOrStdout(), "CODIGO", "PRODUCTO", "PRECIO 1", "PRECIO 2", "PRECIO 3")
			for _, p := range products {
				t.row(p.Code, p.Name, money.Format(p.Prices.Tier1), money.Format(p.Prices.Tier2), money.Format(p.Prices.Tier3))
			}
			return t.flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum results, 0 for all")
	return cmd
}

// parseLine reads CODE=QTY or CODE@TIER=QTY.
func parseLine(s string) (order.DraftLine, error) {
	i := strings.LastIndex(s, "=")
	if i <= 0 {
		return order.DraftLine{}, fmt.Errorf("%w: %q", errBadLine, s)
	}
	code, qty := strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])

	var tier catalog.Tier
	if j := strings.LastIndex(code, "@"); j >= 0 {
		tier = catalog.Tier(strings.TrimSpace(code[j+1:]))
		code = strings.TrimSpace(code[:j])
	}
	if code == "" {
		return order.DraftLine{}, fmt.Errorf("%w: %q", errBadLine, s)
	}
	return order.DraftLine{ProductCode: code, Tier: tier, Quantity: qty}, nil
}

type orderFlags struct {
	client    string
	lines     []string
	comments  string
	locality  catalog.Locality
	noReceipt bool
	out       string
}

func (f orderFlags) draft(cmd *cobra.Command) (order.Draft, error) {
	d := order.Draft{ClientCode: f.client, Comments: f.comments}
	if cmd.Flags().Changed("municipio") || cmd.Flags().Changed("departamento") || cmd.Flags().Changed("distrito") {
		loc := f.locality
		d.Locality = &loc
	}
	for _, raw := range f.lines {
		l, err := parseLine(raw)
		if err != nil {
			return order.Draft{}, err
		}
		d.Lines = append(d.Lines, l)
	}
	return d, nil
}

func newOrderCmd(a *app) *cobra.Command {
	var f orderFlags
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Send an order for a client",
		Example: `  pedidos order --client C001 --line P10=3 --line P11@2=12 --comments "entregar lunes"
  pedidos order --client C001 --line P10=1 --no-receipt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := a.deps.Sessions.Current(ctx)
			if err != nil {
				return err
			}
			if sess.NeedsVendor() {
				return errVendorPending
			}

			d, err := f.draft(cmd)
			if err != nil {
				return err
			}
			form, err := order.FormFromDraft(a.loadCatalog(ctx), d)
			if err != nil {
				return err
			}

			res, err := a.deps.Submitter.Submit(ctx, form, sess.Vendor, sess.TenantID())
			if res == nil {
				return err
			}
			w := cmd.OutOrStdout()
			if perr := a.printResult(w, res); perr != nil {
				return perr
			}
			if err != nil {
				return err
			}

			if f.noReceipt {
				return nil
			}
			art, err := a.deps.Receipts.Generate(ctx, res.Submission, sess.Tenant)
			if err != nil {
				return fmt.Errorf("order sent but the receipt failed: %w", err)
			}
			if art.File != nil {
				fmt.Fprintf(w, "recibo: %s\n", a.deps.Files.Location(receipt.Owner(sess.Tenant), art.File))
			}
			if art.EmailID != "" {
				fmt.Fprintf(w, "recibo enviado por correo (%s)\n", art.EmailID)
			}
			if f.out != "" {
				if err := os.WriteFile(f.out, art.PDF, 0o644); err != nil {
					return fmt.Errorf("failed to write receipt: %w", err)
				}
				fmt.Fprintf(w, "recibo copiado a %s\n", f.out)
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.client, "client", "", "client code")
	fl.StringArrayVar(&f.lines, "line", nil, "order line CODE=QTY or CODE@TIER=QTY, repeatable")
	fl.StringVar(&f.comments, "comments", "", "order comments")
	fl.StringVar(&f.locality.Municipio, "municipio", "", "override the client's municipio")
	fl.StringVar(&f.locality.Departamento, "departamento", "", "override the client's departamento")
	fl.StringVar(&f.locality.Distrito, "distrito", "", "override the client's distrito")
	fl.BoolVar(&f.noReceipt, "no-receipt", false, "skip the PDF receipt")
	fl.StringVar(&f.out, "out", "", "also write the receipt PDF to this path")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("line")
	return cmd
}

func (a *app) printResult(w io.Writer, res *order.Result) error {
	if a.json {
		return printJSON(w, order.EntriesFor(res))
	}

	sub := res.Submission
	fmt.Fprintf(w, "pedido %s para %s (%s)\n", sub.Reference, sub.Client.Name, sub.Client.Code)
	t := newTable(w, "CODIGO", "PRODUCTO", "CANT", "LISTA", "PRECIO", "TOTAL", "ESTADO")
	for _, lr := range res.Lines {
		status := order.LedgerSent
		if lr.Err != nil {
			status = order.LedgerFailed + ": " + lr.Err.Error()
		}
		l := lr.Line
		t.row(l.ProductCode, l.ProductName, l.Quantity, l.Tier, money.Format(l.UnitPrice), money.Format(l.Total()), status)
	}
	if err := t.flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "total: %s\n", money.Format(sub.Total))
	if res.Failed > 0 {
		fmt.Fprintf(w, "%d de %d lineas fallaron\n", res.Failed, len(res.Lines))
	}
	return nil
}

func newLedgerCmd(a *app) *cobra.Command {
	var failed bool
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "List submitted order lines recorded locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l := a.deps.Ledger
			if l == nil {
				return errNoLedger
			}
			read := l.ReadAll
			if failed {
				read = l.Failed
			}
			entries, err := read()
			if err != nil {
				return err
			}
			if a.json {
				return printJSON(cmd.OutOrStdout(), entries)
			}

			t := newTable(cmd.OutOrStdout(), "FECHA", "PEDIDO", "CLIENTE", "VENDEDOR", "CODIGO", "CANT", "LISTA", "TOTAL", "ESTADO", "ERROR")
			for _, e := range entries {
				t.row(e.SubmittedAt, e.Reference, e.Client, e.Vendor, e.ProductCode, e.Quantity, e.Tier, e.LineTotal, e.Status, e.Error)
			}
			return t.flush()
		},
	}
	cmd.Flags().BoolVar(&failed, "failed", false, "only lines that were not accepted")
	return cmd
}
