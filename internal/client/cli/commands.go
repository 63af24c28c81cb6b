package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/otpauth/internal/client/apiclient"
)

func (a *App) report(err error) error {
	fmt.Fprintln(a.out, "Error:", err.Error())
	return err
}

func (a *App) Signup(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return a.report(err)
	}
	username, err := GetSimpleText(a.reader, "Enter user name", a.out)
	if err != nil {
		return a.report(err)
	}
	password, err := GetPassword(a.reader, a.out)
	if err != nil {
		return a.report(err)
	}

	msg, err := a.api.Signup(ctx, email, username, password)
	if err != nil {
		return a.report(err)
	}
	a.email = email
	fmt.Fprintln(a.out, msg)
	fmt.Fprintln(a.out, "Check your inbox and run 'verify'.")
	return nil
}

func (a *App) Verify(ctx context.Context) error {
	prompt := "Enter email"
	if a.email != "" {
		prompt = fmt.Sprintf("Enter email [%s]", a.email)
	}
	email, err := GetSimpleText(a.reader, prompt, a.out)
	if err != nil {
		return a.report(err)
	}
	if email == "" {
		email = a.email
	}
	code, err := GetSimpleText(a.reader, "Enter one-time code", a.out)
	if err != nil {
		return a.report(err)
	}

	msg, err := a.api.VerifyOTP(ctx, email, code)
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, msg)
	return a.refreshUser(ctx)
}

func (a *App) Login(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return a.report(err)
	}
	password, err := GetPassword(a.reader, a.out)
	if err != nil {
		return a.report(err)
	}

	msg, err := a.api.Login(ctx, email, password)
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, msg)
	return a.refreshUser(ctx)
}

func (a *App) WhoAmI(ctx context.Context) error {
	if err := a.refreshUser(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged in as", a.userName)
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	err := a.api.Logout(ctx)
	a.userName = ""
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) Health(ctx context.Context) error {
	if err := a.api.Health(ctx); err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, "Server is up")
	return nil
}

// refreshUser asks the server who the session belongs to. A rejected
// session clears the local login state.
func (a *App) refreshUser(ctx context.Context) error {
	name, err := a.api.CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, apiclient.ErrNotLoggedIn) {
			a.userName = ""
		}
		return a.report(err)
	}
	a.userName = name
	return nil
}
