// Package app wires the Parley server runtime: config, logging, auth, and the realtime gateway.
package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"parley/cmd/identity"
	"parley/cmd/internal/auth/accesstoken"
	authapi "parley/cmd/internal/auth/api"
	"parley/cmd/internal/auth/device"
	"parley/cmd/internal/auth/guard"
	"parley/cmd/internal/auth/issuer"
	"parley/cmd/internal/auth/token"
	"parley/cmd/internal/auth/twofactor"
	"parley/cmd/internal/realtime"
	"parley/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
)

// stores groups the persistence surfaces the runtime needs. Both backends
// satisfy it: Postgres when PARLEY_DATABASE_URL is set, in-memory otherwise.
type stores struct {
	users        identity.Store
	devices      device.Registry
	ledger       token.Ledger
	status       realtime.StatusStore
	participants realtime.ParticipantStore
}

// App is the Parley server runtime. It owns the HTTP wiring, the session
// issuer, and the background token sweep.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	issuer *issuer.Service
	auth   *authapi.Handler
	ws     *realtime.Gateway
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	st, dbPool, dbEnabled, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	accessKey, err := accessTokenKey(cfg, log)
	if err != nil {
		closePool(dbPool)
		return nil, err
	}

	access, err := accesstoken.NewManager(accessKey, cfg.AccessTokenTTL)
	if err != nil {
		closePool(dbPool)
		return nil, err
	}

	pw, err := password.FromEnv()
	if err != nil {
		closePool(dbPool)
		return nil, err
	}

	gate := twofactor.NewGate(st.users)

	svc, err := issuer.New(st.users, st.devices, st.ledger, access, gate, pw, cfg.RefreshTokenTTL, log)
	if err != nil {
		closePool(dbPool)
		return nil, err
	}

	g := guard.New(access, st.users)
	auth := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), svc, g, gate)
	ws := realtime.NewGateway(log, g, st.status, st.participants, st.users)

	return &App{
		cfg:       cfg,
		log:       log,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		issuer:    svc,
		auth:      auth,
		ws:        ws,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.ws, a.auth)

	handler := WithCORS(mux, a.cfg, a.log)
	handler = WithSecurityHeaders(handler)
	handler = WithRequestLogging(handler, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.sweepLoop(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	closePool(a.dbPool)

	a.log.Info("server.stopped")
	return nil
}

// sweepLoop deletes long-dead refresh-token rows on a fixed cadence.
// Revoked rows are kept for SweepRetention so reuse of a stale token is
// still recognized as a breach for that long.
func (a *App) sweepLoop(ctx context.Context) {
	interval := nonZeroDuration(a.cfg.SweepInterval, time.Hour)
	retention := nonZeroDuration(a.cfg.SweepRetention, 30*24*time.Hour)

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := a.issuer.SweepExpired(ctx, retention)
			if err != nil {
				a.log.Error("token.sweep.fail", "err", err)
				continue
			}
			if n > 0 {
				a.log.Info("token.sweep", "deleted", n)
			}
		}
	}
}

// accessTokenKey resolves the HS256 signing key. An unset key yields an
// ephemeral random one so dev instances start without config, at the cost
// of invalidating every access token on restart.
func accessTokenKey(cfg Config, log Logger) ([]byte, error) {
	if cfg.AccessTokenKey != "" {
		return []byte(cfg.AccessTokenKey), nil
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate ephemeral access-token key: %w", err)
	}
	log.Warn("auth.access_key.ephemeral", "hint", "set PARLEY_ACCESS_TOKEN_KEY for stable tokens")
	return key, nil
}

// newStores decides between Postgres-backed persistence and the in-memory dev stores.
func newStores(ctx context.Context, cfg Config, log Logger) (stores, *pgxpool.Pool, bool, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_stores")
		return stores{
			users:        identity.NewMemoryStore(),
			devices:      device.NewMemoryRegistry(),
			ledger:       token.NewMemoryLedger(),
			status:       realtime.NewMemoryStatusStore(),
			participants: realtime.NewMemoryParticipantStore(),
		}, nil, false, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return stores{}, nil, false, err
	}

	log.Info("db.enabled.postgres_stores")

	return stores{
		users:        identity.NewPostgresStore(pool),
		devices:      device.NewPostgresRegistry(pool),
		ledger:       token.NewPostgresLedger(pool),
		status:       realtime.NewPostgresStatusStore(pool),
		participants: realtime.NewPostgresParticipantStore(pool),
	}, pool, true, nil
}

func closePool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
