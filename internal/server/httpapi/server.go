// Package httpapi exposes the account service over JSON HTTP with a session
// cookie.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/otpauth/internal/logging"
	"github.com/dmitrijs2005/otpauth/internal/server/models"
	"github.com/dmitrijs2005/otpauth/internal/server/services"
	"github.com/gorilla/mux"
)

const shutdownTimeout = 10 * time.Second

// Accounts is the subset of services.AccountService used by the handlers.
type Accounts interface {
	Signup(ctx context.Context, in services.SignupInput) error
	VerifyOTP(ctx context.Context, email, code string) (string, time.Time, error)
	Login(ctx context.Context, email, password string) (string, time.Time, error)
	CurrentUser(ctx context.Context, token string) (*models.Profile, error)
	Logout(ctx context.Context, token string) error
}

type Options struct {
	Address      string
	CookieSecure bool
}

type HTTPServer struct {
	address      string
	accounts     Accounts
	logger       logging.Logger
	cookieSecure bool
	now          func() time.Time
}

func NewHTTPServer(opts Options, l logging.Logger, a Accounts) *HTTPServer {
	return &HTTPServer{
		address:      opts.Address,
		accounts:     a,
		logger:       l.With("module", "http_server"),
		cookieSecure: opts.CookieSecure,
		now:          time.Now,
	}
}

// Router builds the route table. Exposed for tests.
func (s *HTTPServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestIDMiddleware, s.recoverMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "Not found")
	})
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = methodNotAllowed

	// A subrouter resolves its own mismatches; the parent's handlers never
	// see them.
	a := r.PathPrefix("/auth").Subrouter()
	a.NotFoundHandler = notFound
	a.MethodNotAllowedHandler = methodNotAllowed
	a.HandleFunc("/signup", s.handleSignup).Methods(http.MethodPost)
	a.HandleFunc("/verify-otp", s.handleVerifyOTP).Methods(http.MethodPost)
	a.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	a.HandleFunc("/current_user", s.handleCurrentUser).Methods(http.MethodGet)
	a.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)

	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests. It
// returns only after the drain finished or shutdownTimeout elapsed.
func (s *HTTPServer) Run(ctx context.Context) error {

	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping HTTP server...")
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			s.logger.Error(context.Background(), "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Serve returns as soon as Shutdown starts.
	<-stopped
	return nil
}
