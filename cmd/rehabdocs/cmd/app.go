package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/hamshmas/personal-rehabilitation-docs/config"
	"github.com/hamshmas/personal-rehabilitation-docs/credential"
	"github.com/hamshmas/personal-rehabilitation-docs/gateway"
	"github.com/hamshmas/personal-rehabilitation-docs/internal/database"
	"github.com/hamshmas/personal-rehabilitation-docs/internal/logging"
	"github.com/hamshmas/personal-rehabilitation-docs/orchestrator"
	"github.com/hamshmas/personal-rehabilitation-docs/vault"
)

// app lazily builds the components a command needs and closes them when the
// command returns.
type app struct {
	cfg *config.Config
	log *logrus.Logger
	reg *prometheus.Registry

	vault   *vault.Vault
	db      *gorm.DB
	gateway *gateway.Client

	closers []func()
}

func newApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	ctx := cmd.Context()
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	if cfg.HasReferences() {
		r, err := cfg.NewResolver(ctx)
		if err != nil {
			return nil, err
		}
		if err := cfg.Resolve(ctx, r); err != nil {
			return nil, err
		}
	}
	log, err := logging.NewWithOutput(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a := &app{cfg: cfg, log: log, reg: reg}
	if opts.metricsAddr != "" {
		if err := a.serveMetrics(opts.metricsAddr); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Warn("metrics server stopped")
		}
	}()
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	a.log.WithField("addr", ln.Addr().String()).Info("serving metrics")
	return nil
}

func (a *app) Vault() (*vault.Vault, error) {
	if a.vault != nil {
		return a.vault, nil
	}
	v, err := vault.New(a.cfg.Vault.MasterSecret)
	if err != nil {
		return nil, err
	}
	a.vault = v
	return v, nil
}

func (a *app) DB() (*gorm.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := database.Open(a.cfg.Database.Driver, a.cfg.Database.DSN, a.log)
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		if a.cfg.Database.Driver == database.DriverSQLite {
			sqlDB.SetMaxOpenConns(1)
		}
		a.closers = append(a.closers, func() { _ = sqlDB.Close() })
	}
	a.db = db
	return db, nil
}

func (a *app) Statuses() (*orchestrator.GormStore, error) {
	db, err := a.DB()
	if err != nil {
		return nil, err
	}
	return orchestrator.NewGormStore(db), nil
}

func (a *app) CertificateRepository() (*credential.GormRepository, error) {
	db, err := a.DB()
	if err != nil {
		return nil, err
	}
	return credential.NewGormRepository(db, credential.DefaultTable)
}

func (a *app) Credentials() (*credential.Service, error) {
	v, err := a.Vault()
	if err != nil {
		return nil, err
	}
	repo, err := a.CertificateRepository()
	if err != nil {
		return nil, err
	}
	return credential.New(v, repo, credential.WithLogger(a.log)), nil
}

func (a *app) Gateway(ctx context.Context) (*gateway.Client, error) {
	if a.gateway != nil {
		return a.gateway, nil
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	opts := []gateway.Option{
		gateway.WithLogger(a.log),
		gateway.WithMetrics(gateway.NewMetrics(a.reg)),
	}
	if a.cfg.Redis.URL != "" {
		rdb, err := gateway.NewRedisClient(ctx, a.cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		opts = append(opts, gateway.WithTokenStore(gateway.NewRedisTokenStore(rdb, a.cfg.Hyphen.ClientID)))
	}
	c, err := gateway.New(a.cfg.GatewayConfig(), opts...)
	if err != nil {
		return nil, err
	}
	a.gateway = c
	return c, nil
}

func (a *app) Orchestrator(ctx context.Context) (*orchestrator.Orchestrator, error) {
	v, err := a.Vault()
	if err != nil {
		return nil, err
	}
	gw, err := a.Gateway(ctx)
	if err != nil {
		return nil, err
	}
	store, err := a.Statuses()
	if err != nil {
		return nil, err
	}
	creds, err := a.Credentials()
	if err != nil {
		return nil, err
	}
	return orchestrator.New(orchestrator.Dependencies{
		Identities:   v,
		Gateway:      gw,
		Statuses:     store,
		Artifacts:    store,
		Certificates: creds,
	},
		orchestrator.WithLogger(a.log),
		orchestrator.WithMetrics(orchestrator.NewMetrics(a.reg)),
		orchestrator.WithConcurrency(a.cfg.Issuance.Concurrency),
		orchestrator.WithRetry(a.cfg.Issuance.RetryAttempts, a.cfg.Issuance.RetryBackoff),
	)
}

// withApp runs fn with a fresh app and closes it afterwards.
func withApp(opts *rootOptions, fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, opts)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}
