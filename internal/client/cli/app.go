package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/otpauth/internal/client/apiclient"
	"github.com/dmitrijs2005/otpauth/internal/client/config"
)

// apiService is the subset of the HTTP client the commands rely on.
type apiService interface {
	Signup(ctx context.Context, email, username, password string) (string, error)
	VerifyOTP(ctx context.Context, email, code string) (string, error)
	Login(ctx context.Context, email, password string) (string, error)
	CurrentUser(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
	Health(ctx context.Context) error
}

type App struct {
	config *config.Config
	api    apiService
	reader *bufio.Reader
	out    io.Writer

	// email remembers the last signup address so verify can default to it.
	email    string
	userName string
}

func NewApp(c *config.Config) (*App, error) {
	api, err := apiclient.New(c.ServerURL, c.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return &App{config: c, api: api, reader: bufio.NewReader(os.Stdin), out: os.Stdout}, nil
}

func (a *App) isLoggedIn() bool {
	return a.userName != ""
}

func (a *App) getStatus() string {
	if a.userName == "" {
		return ""
	}
	return fmt.Sprintf("(%s)", a.userName)
}

// Run probes the server once and then hands control to the REPL.
func (a *App) Run(ctx context.Context) {
	fmt.Fprintf(a.out, "Welcome to otpauth CLI, server %s (type 'help' for commands)\n", a.config.ServerURL)
	if err := a.api.Health(ctx); err != nil {
		fmt.Fprintf(a.out, "warning: server is not reachable: %v\n", err)
	}
	runREPL(ctx, a, a.getStatus, a.reader)
}
