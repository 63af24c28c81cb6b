// Package services contains server-side business logic. This file implements
// AccountService: signup with emailed OTP verification, login, and the
// stateless session operations built on signed tokens.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/otpauth/internal/common"
	"github.com/dmitrijs2005/otpauth/internal/cryptox"
	"github.com/dmitrijs2005/otpauth/internal/dbx"
	"github.com/dmitrijs2005/otpauth/internal/logging"
	"github.com/dmitrijs2005/otpauth/internal/server/auth"
	"github.com/dmitrijs2005/otpauth/internal/server/models"
	"github.com/dmitrijs2005/otpauth/internal/server/notify"
	"github.com/dmitrijs2005/otpauth/internal/server/otp"
	"github.com/dmitrijs2005/otpauth/internal/server/repositories/repomanager"
)

// CodeGenerator produces the next one-time code.
type CodeGenerator interface {
	Code() (string, error)
}

type AccountServiceDeps struct {
	Store       otp.Store
	Codes       CodeGenerator
	Hasher      cryptox.PasswordHasher
	Notifier    notify.Notifier
	Tokens      *auth.TokenCodec
	OTPValidity time.Duration
	Logger      logging.Logger
}

type AccountService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       otp.Store
	codes       CodeGenerator
	hasher      cryptox.PasswordHasher
	notifier    notify.Notifier
	tokens      *auth.TokenCodec
	otpValidity time.Duration
	logger      logging.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, deps AccountServiceDeps) *AccountService {
	l := deps.Logger
	if l == nil {
		l = logging.Discard()
	}
	return &AccountService{
		db:          db,
		repomanager: m,
		store:       deps.Store,
		codes:       deps.Codes,
		hasher:      deps.Hasher,
		notifier:    deps.Notifier,
		tokens:      deps.Tokens,
		otpValidity: deps.OTPValidity,
		logger:      l.With("module", "accounts"),
	}
}

// SignupInput is the caller supplied registration data.
type SignupInput struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Signup registers an unverified account and sends it an OTP. Repeating
// Signup for an unverified email leaves the account untouched and issues a
// fresh code. A verified email yields common.ErrAlreadyExists.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) error {
	if err := in.Validate(); err != nil {
		return err
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)

		existing, err := repo.GetByEmail(ctx, in.Email)
		switch {
		case err == nil && existing.Verified:
			return common.ErrAlreadyExists
		case err == nil:
			s.logger.Info(ctx, "signup repeated for pending account", "email", in.Email)
			return nil
		case !errors.Is(err, common.ErrorNotFound):
			return err
		}

		hash, err := s.hasher.HashPassword(in.Password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}

		_, err = repo.Create(ctx, &models.Account{
			Username:     in.Username,
			Email:        in.Email,
			PasswordHash: []byte(hash),
		})
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			s.logger.Warn(ctx, "signup for existing account", "email", in.Email)
			return common.ErrAlreadyExists
		}
		return s.dependency(ctx, "signup", in.Email, err)
	}

	return s.issueOTP(ctx, in.Email)
}

func (s *AccountService) issueOTP(ctx context.Context, email string) error {
	code, err := s.codes.Code()
	if err != nil {
		return s.dependency(ctx, "generate otp", email, err)
	}
	if err := s.store.Put(ctx, email, code, s.otpValidity); err != nil {
		return s.dependency(ctx, "store otp", email, err)
	}
	if err := s.notifier.SendOTP(ctx, email, code, s.otpValidity); err != nil {
		return s.dependency(ctx, "send otp", email, err)
	}
	s.logger.Info(ctx, "otp issued", "email", email)
	return nil
}

// VerifyOTP consumes the pending code for email, marks the account
// verified and opens a session for it.
func (s *AccountService) VerifyOTP(ctx context.Context, email, code string) (string, time.Time, error) {
	if err := validateVerify(email, code); err != nil {
		return "", time.Time{}, err
	}

	res, err := s.store.Take(ctx, email, code)
	if err != nil {
		return "", time.Time{}, s.dependency(ctx, "take otp", email, err)
	}

	switch res {
	case otp.Absent:
		s.logger.Warn(ctx, "otp expired or not found", "email", email)
		return "", time.Time{}, common.ErrOTPExpired
	case otp.Mismatch:
		s.logger.Warn(ctx, "invalid otp", "email", email)
		return "", time.Time{}, common.ErrInvalidOTP
	}

	account, err := s.repomanager.Accounts(s.db).MarkVerified(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Error(ctx, "otp matched but account is missing", "email", email)
			return "", time.Time{}, common.ErrorNotFound
		}
		return "", time.Time{}, s.dependency(ctx, "mark verified", email, err)
	}

	s.logger.Info(ctx, "email verified", "email", email)
	return s.issueSession(ctx, account)
}

// Login checks email and password. Empty input, unknown emails and wrong
// passwords all yield common.ErrInvalidCredentials.
func (s *AccountService) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	if email == "" || password == "" {
		return "", time.Time{}, s.rejectLogin(ctx, email, password)
	}

	account, err := s.repomanager.Accounts(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", time.Time{}, s.rejectLogin(ctx, email, password)
		}
		return "", time.Time{}, s.dependency(ctx, "login", email, err)
	}

	if err := s.hasher.ComparePasswordAndHash(password, string(account.PasswordHash)); err != nil {
		if errors.Is(err, common.ErrPasswordMismatch) {
			s.logger.Warn(ctx, "login failed", "email", email)
			return "", time.Time{}, common.ErrInvalidCredentials
		}
		s.logger.Error(ctx, "stored password hash unusable", "email", email, "error", err)
		return "", time.Time{}, common.ErrorInternal
	}

	s.logger.Info(ctx, "user logged in", "email", email)
	return s.issueSession(ctx, account)
}

// CurrentUser resolves a session token to the public profile of its owner.
func (s *AccountService) CurrentUser(ctx context.Context, token string) (*models.Profile, error) {
	if token == "" {
		return nil, common.ErrUnauthenticated
	}

	id, err := s.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnauthenticated, err)
	}

	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, s.dependency(ctx, "current user", "", err)
	}

	return &models.Profile{Username: account.Username}, nil
}

// Logout ends a session. Sessions are stateless, so the only server side
// check is that a token was presented at all.
func (s *AccountService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return common.ErrUnauthenticated
	}
	s.logger.Info(ctx, "user logged out")
	return nil
}

func (s *AccountService) issueSession(ctx context.Context, account *models.Account) (string, time.Time, error) {
	token, exp, err := s.tokens.Issue(account.ID)
	if err != nil {
		s.logger.Error(ctx, "failed to issue session token", "email", account.Email, "error", err)
		return "", time.Time{}, common.ErrorInternal
	}
	return token, exp, nil
}

// rejectLogin runs a throwaway comparison so a miss costs about as much as
// a wrong password.
func (s *AccountService) rejectLogin(ctx context.Context, email, password string) error {
	_ = s.hasher.ComparePasswordAndHash(password, s.dummyDigest())
	s.logger.Warn(ctx, "login failed", "email", email)
	return common.ErrInvalidCredentials
}

func (s *AccountService) dummyDigest() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.HashPassword("otpauth-dummy-password")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

func (s *AccountService) dependency(ctx context.Context, op, email string, err error) error {
	s.logger.Error(ctx, "dependency failure", "op", op, "email", email, "error", err)
	if errors.Is(err, common.ErrDependency) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", common.ErrDependency, op, err)
}
