// Package server initializes and runs the otpauth application: it wires the
// account store, OTP store, notifier and token codec into the HTTP API and
// handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/otpauth/internal/cryptox"
	"github.com/dmitrijs2005/otpauth/internal/logging"
	"github.com/dmitrijs2005/otpauth/internal/server/auth"
	"github.com/dmitrijs2005/otpauth/internal/server/config"
	"github.com/dmitrijs2005/otpauth/internal/server/httpapi"
	"github.com/dmitrijs2005/otpauth/internal/server/notify"
	"github.com/dmitrijs2005/otpauth/internal/server/otp"
	"github.com/dmitrijs2005/otpauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/otpauth/internal/server/services"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	closers  []io.Closer
	accounts *services.AccountService
}

// openDB is a seam for tests.
var openDB = repomanager.Open

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger, err := newLogger(os.Stdout, c.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := openDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db, closers: []io.Closer{db}}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		app.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	store, closer, err := newStore(ctx, c, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.closers = append(app.closers, closer)

	accounts, err := newAccountService(db, rm, store, c, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.accounts = accounts

	return app, nil
}

func newLogger(w io.Writer, level string) (logging.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return logging.NewSlogLogger(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))), nil
}

// newStore picks the shared Redis store when an address is configured and
// the process-local store otherwise.
func newStore(ctx context.Context, c *config.Config, l logging.Logger) (otp.Store, io.Closer, error) {
	if c.RedisAddr == "" {
		l.Info(ctx, "using in-memory otp store")
		s := otp.NewMemoryStore()
		return s, s, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis init error: %w", err)
	}
	l.Info(ctx, "using redis otp store", "address", c.RedisAddr)
	return otp.NewRedisStore(client, otp.DefaultRedisPrefix), client, nil
}

func newNotifier(ctx context.Context, c *config.Config, l logging.Logger) notify.Notifier {
	if c.SMTPHost == "" {
		l.Warn(ctx, "smtp host not configured, otp codes will only be logged")
		return notify.NewLogNotifier(l)
	}
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUser,
		Password: c.SMTPPassword,
		From:     c.SMTPFrom,
	}, l)
}

func newAccountService(db *sql.DB, rm repomanager.RepositoryManager, store otp.Store, c *config.Config, l logging.Logger) (*services.AccountService, error) {
	secret, err := otp.DecodeSecret(c.OTPSecret)
	if err != nil {
		return nil, fmt.Errorf("otp secret: %w", err)
	}
	gen, err := otp.NewGenerator(secret, c.OTPWindow, otp.DefaultDigits)
	if err != nil {
		return nil, fmt.Errorf("otp generator: %w", err)
	}
	tokens, err := auth.NewTokenCodec([]byte(c.SecretKey), c.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	return services.NewAccountService(db, rm, services.AccountServiceDeps{
		Store:       store,
		Codes:       gen,
		Hasher:      cryptox.NewBcryptHasher(c.BcryptCost),
		Notifier:    newNotifier(context.Background(), c, l),
		Tokens:      tokens,
		OTPValidity: c.OTPValidity,
		Logger:      l,
	}), nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := httpapi.NewHTTPServer(httpapi.Options{
		Address:      app.config.HTTPAddr,
		CookieSecure: app.config.CookieSecure,
	}, app.logger, app.accounts)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// releases all resources.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.Close()
	app.logger.Info(context.Background(), "App stopped")
}

// Close releases resources in reverse acquisition order.
func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			app.logger.Error(context.Background(), "close", "error", err)
		}
	}
	app.closers = nil
}
