package main

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/smartdata/pedidos/internal/domain/admin"
	"github.com/smartdata/pedidos/internal/domain/catalog"
	"github.com/smartdata/pedidos/internal/domain/gateway"
	"github.com/smartdata/pedidos/internal/domain/order"
	"github.com/smartdata/pedidos/internal/domain/receipt"
	"github.com/smartdata/pedidos/internal/domain/session"
	"github.com/smartdata/pedidos/pkg/config"
	"github.com/smartdata/pedidos/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry

	// Storage
	State  *storage.BoltStore
	Files  *storage.FileStorage
	Ledger *order.Ledger

	// Services
	Gateway   *gateway.Client
	Codec     *session.Codec
	Sessions  *session.Manager
	Catalog   *catalog.Cache
	Submitter *order.Submitter
	Logos     *receipt.LogoCache
	Mailer    *receipt.Mailer
	Receipts  *receipt.Service
	Admin     *admin.Service
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := deps.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	deps.initGateway()

	if err := deps.initServices(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	logger.Debug("all dependencies initialized successfully")
	return deps, nil
}

// initStorage opens the local state file and the receipt directory
func (d *Dependencies) initStorage() error {
	state, err := storage.OpenBoltStore(d.Config.Storage.StatePath)
	if err != nil {
		return err
	}
	d.State = state

	files, err := storage.NewFileStorage(d.Config.Storage.ReceiptsPath)
	if err != nil {
		d.State.Close()
		return fmt.Errorf("failed to init receipt storage: %w", err)
	}
	d.Files = files

	if d.Config.Storage.LedgerPath != "" {
		d.Ledger = order.NewLedger(d.Config.Storage.LedgerPath)
	}

	d.Logger.Debug("storage initialized",
		slog.String("state", d.Config.Storage.StatePath),
		slog.String("receipts", d.Config.Storage.ReceiptsPath),
	)
	return nil
}

func (d *Dependencies) initGateway() {
	cfg := d.Config
	d.Gateway = gateway.New(gateway.Options{
		OrdersURL: cfg.Gateway.URL,
		AdminURL:  cfg.Gateway.AdminURL,
		Timeout:   cfg.Gateway.Timeout,
		RateLimit: cfg.Gateway.RateLimitPerSecond,
		Burst:     cfg.Gateway.RateLimitBurst,
		Retry: gateway.RetryPolicy{
			MaxAttempts:    cfg.Validation.MaxAttempts,
			AttemptTimeout: cfg.Validation.AttemptTimeout,
			BackoffUnit:    cfg.Validation.BackoffUnit,
		},
		Registerer: d.Registry,
	}, d.Logger)
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	cfg := d.Config

	d.Codec = session.NewCodec(cfg.Session.Secret)
	d.Sessions = session.NewManager(d.State, d.Gateway, d.Codec, d.SessionOptions(), d.Logger)

	loader := catalog.NewLoader(d.Gateway, cfg.Catalog.ClientsURL, cfg.Catalog.ProductsURL, d.Logger)
	d.Catalog = catalog.NewCache(loader, d.Logger)

	d.Submitter = order.NewSubmitter(d.Gateway, order.Mode(cfg.Order.Mode), d.Ledger, d.Logger)

	d.Logos = receipt.NewLogoCache(d.State, d.Gateway, receipt.DefaultLogoWidth, d.Logger)
	d.Mailer = receipt.NewMailer(cfg.Mail.ResendAPIKey, cfg.Mail.From, d.Logger)
	d.Receipts = receipt.NewService(d.Files, d.Logos, d.Mailer,
		receipt.Branding{Company: cfg.Company.Name},
		cfg.Company.LogoURL,
		d.Logger,
	)

	adminSessions := session.NewAdminStore(d.State, cfg.Session.AdminKey, cfg.Session.AdminTimeout)
	d.Admin = admin.NewService(d.Gateway, adminSessions, d.Logger)

	d.Logger.Debug("services initialized",
		slog.String("order_mode", cfg.Order.Mode),
		slog.Bool("mail_enabled", d.Mailer.Enabled()),
	)
	return nil
}

func (d *Dependencies) SessionOptions() session.Options {
	return session.Options{TTL: d.Config.Session.TTL, Vendors: d.Config.Company.Vendors}
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.State != nil {
		if err := d.State.Close(); err != nil {
			d.Logger.Warn("failed to close state file", slog.Any("error", err))
		}
	}
	d.Logger.Debug("cleanup completed")
}
