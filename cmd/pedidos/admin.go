package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartdata/pedidos/internal/domain/admin"
	"github.com/smartdata/pedidos/internal/domain/tenant"
	"github.com/smartdata/pedidos/pkg/money"
)

var errNoPassword = errors.New("password is required (--password or stdin)")

func newAdminCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administer tenants and their access tokens",
	}

	tenantCmd := &cobra.Command{Use: "tenant", Short: "Create, edit and toggle tenants"}
	tenantCmd.AddCommand(
		newTenantShowCmd(a),
		newTenantCreateCmd(a),
		newTenantUpdateCmd(a),
		newTenantToggleCmd(a),
	)

	tokenCmd := &cobra.Command{Use: "token", Short: "Issue, toggle and delete vendor tokens"}
	tokenCmd.AddCommand(
		newTokenCreateCmd(a),
		newTokenToggleCmd(a),
		newTokenDeleteCmd(a),
	)

	cmd.AddCommand(
		newAdminLoginCmd(a),
		newAdminLogoutCmd(a),
		newDashboardCmd(a),
		newTenantsCmd(a),
		tenantCmd,
		newTokensCmd(a),
		tokenCmd,
	)
	return cmd
}

func newAdminLoginCmd(a *app) *cobra.Command {
	var user, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in as administrator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				p, err := readPassword(cmd.InOrStdin())
				if err != nil {
					return err
				}
				password = p
			}
			if err := a.deps.Admin.Login(cmd.Context(), user, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sesion de administrador iniciada (%s)\n", strings.TrimSpace(user))
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "admin user")
	cmd.Flags().StringVar(&password, "password", "", "admin password, read from stdin when empty")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// readPassword takes the first line of r.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errNoPassword
	}
	return line, nil
}

func newAdminLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the administrator session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.deps.Admin.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sesion de administrador cerrada")
			return nil
		},
	}
}

func newDashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show subscription metrics and KPIs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ov, err := a.deps.Admin.Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if a.json {
				return printJSON(w, ov)
			}

			m, k := ov.Metrics, ov.KPIs
			t := newTable(w)
			t.row("empresas:", fmt.Sprintf("%d (%d activas)", m.TotalTenants, m.ActiveTenants))
			t.row("vendedores activos:", m.TotalActiveVendors)
			t.row("al dia / por vencer / en gracia / vencidas:", fmt.Sprintf("%d / %d / %d / %d", m.Current, m.DueSoon, m.InGrace, m.Overdue))
			t.row("MRR:", money.FormatFloat(k.MRR))
			t.row("ARR:", money.FormatFloat(k.ARR))
			t.row("ARPU:", money.FormatFloat(k.ARPU))
			t.row("descuentos:", money.FormatFloat(m.TotalDiscounts))
			t.row("vendedores por empresa:", fmt.Sprintf("%.1f", k.AvgVendors))
			t.row("tasa de activacion:", fmt.Sprintf("%.1f%%", k.ActivationRate))
			t.row("churn:", fmt.Sprintf("%.1f%%", k.Churn))
			return t.flush()
		},
	}
}

func newTenantsCmd(a *app) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "tenants [QUERY]",
		Short: "List tenants matching a search and filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := a.deps.Admin.Tenants(cmd.Context(), strings.Join(args, " "), filter)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if a.json {
				return printJSON(w, view)
			}

			t := newTable(w, "ID", "NOMBRE", "ACTIVA", "TIPO", "PAGO", "VENCE", "DIAS", "ESTADO")
			for _, tn := range view.Tenants {
				t.row(tn.ID, tn.Name, yesNo(tn.Active), tn.CustomerType, tn.PaymentType, tn.DueDate, tn.DaysRemaining, admin.PaymentStateLabel(tn.PaymentState))
			}
			if err := t.flush(); err != nil {
				return err
			}
			fmt.Fprintf(w, "\n%d de %d empresas, ingreso estimado %s\n", len(view.Tenants), view.Total, money.FormatFloat(view.Revenue))
			fmt.Fprintf(w, "por vencer: %s\n", tenantNames(view.Buckets.DueSoon))
			fmt.Fprintf(w, "en gracia:  %s\n", tenantNames(view.Buckets.InGrace))
			fmt.Fprintf(w, "vencidas:   %s\n", tenantNames(view.Buckets.Overdue))
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", admin.FilterAll, "one of "+strings.Join(admin.Filters(), ", "))
	return cmd
}

func tenantNames(ts []tenant.Tenant) string {
	if len(ts) == 0 {
		return "-"
	}
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Name
	}
	return strings.Join(names, ", ")
}

func newTenantShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.deps.Admin.Tenant(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), t)
		},
	}
}

// tenantFlags binds the editable tenant fields. Only flags given on the
// command line are applied.
type tenantFlags struct {
	vals         tenant.Tenant
	customerType string
}

func (f *tenantFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.vals.Name, "name", "", "company name")
	fl.StringVar(&f.vals.Plan, "plan", "", "plan name")
	fl.StringVar(&f.vals.SpreadsheetID, "spreadsheet", "", "orders spreadsheet ID")
	fl.StringVar(&f.vals.OrdersSheet, "sheet", "", "orders sheet name")
	fl.StringVar(&f.vals.Address, "address", "", "address")
	fl.StringVar(&f.vals.Phone, "phone", "", "phone, stored as dddd-dddd")
	fl.StringVar(&f.vals.Email, "email", "", "email receipts are sent to")
	fl.StringVar(&f.vals.LogoURL, "logo-url", "", "logo image URL")
	fl.StringVar(&f.vals.ClientsCSVURL, "clients-url", "", "clients list URL")
	fl.StringVar(&f.vals.ProductsCSVURL, "products-url", "", "products list URL")
	fl.StringVar(&f.vals.StartDate, "start", "", "start date YYYY-MM-DD")
	fl.StringVar(&f.vals.DueDate, "due", "", "due date YYYY-MM-DD, computed from start when omitted")
	fl.StringVar(&f.vals.PaymentType, "payment", "", tenant.PaymentMonthly+" or "+tenant.PaymentYearly)
	fl.StringVar(&f.customerType, "customer-type", "", tenant.CustomerRegular+" or "+tenant.CustomerFounder+", resets pricing")
	fl.Float64Var(&f.vals.BasePrice, "base-price", 0, "monthly base price")
	fl.Float64Var(&f.vals.ExtraVendorPrice, "extra-vendor-price", 0, "price per extra vendor")
	fl.IntVar(&f.vals.IncludedVendors, "included-vendors", 0, "vendors included in the base price")
	fl.Float64Var(&f.vals.Discount, "discount", 0, "monthly discount")
	fl.BoolVar(&f.vals.Active, "active", true, "tenant is active")
}

func (f *tenantFlags) apply(cmd *cobra.Command, t *tenant.Tenant) {
	changed := cmd.Flags().Changed
	v := f.vals

	if changed("customer-type") {
		admin.ApplyCustomerType(t, strings.ToUpper(f.customerType))
	}
	if changed("name") {
		t.Name = v.Name
	}
	if changed("plan") {
		t.Plan = v.Plan
	}
	if changed("spreadsheet") {
		t.SpreadsheetID = v.SpreadsheetID
	}
	if changed("sheet") {
		t.OrdersSheet = v.OrdersSheet
	}
	if changed("address") {
		t.Address = v.Address
	}
	if changed("phone") {
		t.Phone = v.Phone
	}
	if changed("email") {
		t.Email = v.Email
	}
	if changed("logo-url") {
		t.LogoURL = v.LogoURL
	}
	if changed("clients-url") {
		t.ClientsCSVURL = v.ClientsCSVURL
	}
	if changed("products-url") {
		t.ProductsCSVURL = v.ProductsCSVURL
	}
	if changed("payment") {
		t.PaymentType = strings.ToUpper(v.PaymentType)
	}
	if changed("start") {
		t.StartDate = v.StartDate
	}
	if changed("due") {
		t.DueDate = v.DueDate
	} else if changed("start") || changed("payment") {
		t.DueDate = admin.DueDate(t.StartDate, t.PaymentType)
	}
	if changed("base-price") {
		t.BasePrice = v.BasePrice
	}
	if changed("extra-vendor-price") {
		t.ExtraVendorPrice = v.ExtraVendorPrice
	}
	if changed("included-vendors") {
		t.IncludedVendors = v.IncludedVendors
	}
	if changed("discount") {
		t.Discount = v.Discount
	}
	if changed("active") {
		t.Active = v.Active
	}
}

func newTenantCreateCmd(a *app) *cobra.Command {
	var f tenantFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := admin.NewTenantDraft(time.Now())
			f.apply(cmd, &t)
			id, err := a.deps.Admin.CreateTenant(cmd.Context(), t)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "empresa creada: %s\n", id)
			return nil
		},
	}
	f.register(cmd)
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newTenantUpdateCmd(a *app) *cobra.Command {
	var f tenantFlags
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Edit a tenant; fields not given keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]
			t, err := a.deps.Admin.Tenant(ctx, id)
			if err != nil {
				return err
			}
			f.apply(cmd, t)
			if err := a.deps.Admin.UpdateTenant(ctx, id, *t); err != nil {
				return err
			}
			// the tenant's logo may have changed
			if err := a.deps.Logos.Forget(ctx, id); err != nil {
				a.logger.Warn("failed to drop cached logo", slog.String("tenant", id), slog.Any("error", err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "empresa actualizada: %s\n", id)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newTenantToggleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle ID",
		Short: "Activate or deactivate a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			active, err := a.deps.Admin.ToggleTenant(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "empresa %s activa: %s\n", args[0], yesNo(active))
			return nil
		},
	}
}

func newTokensCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tokens TENANT_ID",
		Short: "List the access tokens of a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := a.deps.Admin.Tokens(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if a.json {
				return printJSON(w, tokens)
			}
			t := newTable(w, "TOKEN", "VENDEDOR", "ACTIVO")
			for _, tok := range tokens {
				t.row(tok.Token, tok.Vendor, yesNo(tok.Active))
			}
			return t.flush()
		},
	}
}

func newTokenCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create TENANT_ID VENDOR",
		Short: "Issue a token for a vendor",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := a.deps.Admin.CreateToken(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
}

func newTokenToggleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle TENANT_ID TOKEN",
		Short: "Activate or deactivate a token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			active, err := a.deps.Admin.ToggleToken(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token activo: %s\n", yesNo(active))
			return nil
		},
	}
}

func newTokenDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete TOKEN",
		Short: "Delete a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.deps.Admin.DeleteToken(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "token eliminado")
			return nil
		},
	}
}
