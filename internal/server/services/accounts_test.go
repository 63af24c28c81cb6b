package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/otpauth/internal/common"
	"github.com/dmitrijs2005/otpauth/internal/cryptox"
	"github.com/dmitrijs2005/otpauth/internal/dbx"
	"github.com/dmitrijs2005/otpauth/internal/server/auth"
	"github.com/dmitrijs2005/otpauth/internal/server/models"
	"github.com/dmitrijs2005/otpauth/internal/server/otp"
	"github.com/dmitrijs2005/otpauth/internal/server/repositories/accounts"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- fakes ---

type fakeAccountsRepo struct {
	mu        sync.Mutex
	byEmail   map[string]*models.Account
	nextID    int
	creates   int
	getErr    error
	createErr error
	markErr   error
}

func newFakeAccountsRepo() *fakeAccountsRepo {
	return &fakeAccountsRepo{byEmail: map[string]*models.Account{}}
}

func (f *fakeAccountsRepo) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.byEmail[a.Email]; ok {
		return nil, common.ErrAlreadyExists
	}
	for _, other := range f.byEmail {
		if other.Username == a.Username {
			return nil, common.ErrAlreadyExists
		}
	}
	f.nextID++
	f.creates++
	cp := *a
	cp.ID = fmt.Sprintf("acc-%d", f.nextID)
	f.byEmail[a.Email] = &cp
	a.ID = cp.ID
	return a, nil
}

func (f *fakeAccountsRepo) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccountsRepo) GetByID(_ context.Context, id string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, a := range f.byEmail {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeAccountsRepo) MarkVerified(_ context.Context, email string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return nil, f.markErr
	}
	a, ok := f.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	a.Verified = true
	cp := *a
	return &cp, nil
}

func (f *fakeAccountsRepo) delete(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byEmail, email)
}

type fakeRepoManager struct {
	a *fakeAccountsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository        { return m.a }

type fakeCodes struct {
	codes []string
	i     int
	err   error
}

func (g *fakeCodes) Code() (string, error) {
	if g.err != nil {
		return "", g.err
	}
	c := g.codes[g.i%len(g.codes)]
	g.i++
	return c, nil
}

type sentOTP struct {
	email, code string
	validity    time.Duration
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentOTP
	err  error
}

func (n *fakeNotifier) SendOTP(_ context.Context, email, code string, validity time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentOTP{email: email, code: code, validity: validity})
	return nil
}

func (n *fakeNotifier) last() sentOTP {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[len(n.sent)-1]
}

type failingStore struct{ err error }

func (s failingStore) Put(context.Context, string, string, time.Duration) error { return s.err }
func (s failingStore) Take(context.Context, string, string) (otp.Result, error) {
	return otp.Absent, s.err
}

// --- harness ---

type harness struct {
	svc      *AccountService
	mock     sqlmock.Sqlmock
	repo     *fakeAccountsRepo
	store    *otp.MemoryStore
	codes    *fakeCodes
	notifier *fakeNotifier
	tokens   *auth.TokenCodec
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenCodec([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	require.NoError(t, err)

	h := &harness{
		mock:     mock,
		repo:     newFakeAccountsRepo(),
		store:    otp.NewMemoryStore(),
		codes:    &fakeCodes{codes: []string{"111111", "222222", "333333"}},
		notifier: &fakeNotifier{},
		tokens:   tokens,
	}
	t.Cleanup(func() { h.store.Close() })

	h.svc = NewAccountService(db, &fakeRepoManager{a: h.repo}, AccountServiceDeps{
		Store:       h.store,
		Codes:       h.codes,
		Hasher:      cryptox.NewBcryptHasher(bcrypt.MinCost),
		Notifier:    h.notifier,
		Tokens:      tokens,
		OTPValidity: 5 * time.Minute,
	})
	return h
}

func (h *harness) expectTx(commit bool) {
	h.mock.ExpectBegin()
	if commit {
		h.mock.ExpectCommit()
	} else {
		h.mock.ExpectRollback()
	}
}

var alice = SignupInput{Email: "a@x.com", Username: "alice", Password: "secret1"}

// --- signup ---

func TestSignup_CreatesUnverifiedAccountAndIssuesOTP(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.expectTx(true)

	require.NoError(t, h.svc.Signup(context.Background(), alice))

	acc, err := h.repo.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.False(t, acc.Verified)
	assert.Equal(t, "alice", acc.Username)
	assert.NotEqual(t, "secret1", string(acc.PasswordHash), "password must be hashed")
	assert.NoError(t, bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte("secret1")))

	assert.Equal(t, 1, h.repo.creates)
	assert.Equal(t, 1, h.store.Len())
	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, sentOTP{email: "a@x.com", code: "111111", validity: 5 * time.Minute}, h.notifier.last())
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestSignup_RepeatBeforeVerificationReissues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.expectTx(true)
	h.expectTx(true)

	require.NoError(t, h.svc.Signup(ctx, alice))
	require.NoError(t, h.svc.Signup(ctx, SignupInput{Email: "a@x.com", Username: "other", Password: "changed!"}))

	assert.Equal(t, 1, h.repo.creates)
	acc, err := h.repo.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.Username, "pending account is not mutated")

	require.Len(t, h.notifier.sent, 2)
	assert.Equal(t, "222222", h.notifier.last().code)

	_, _, err = h.svc.VerifyOTP(ctx, "a@x.com", "111111")
	assert.ErrorIs(t, err, common.ErrInvalidOTP, "superseded code is no longer valid")
	_, _, err = h.svc.VerifyOTP(ctx, "a@x.com", "222222")
	assert.NoError(t, err)
}

func TestSignup_AfterVerificationConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.expectTx(true)
	h.expectTx(false)

	require.NoError(t, h.svc.Signup(ctx, alice))
	_, _, err := h.svc.VerifyOTP(ctx, "a@x.com", "111111")
	require.NoError(t, err)

	err = h.svc.Signup(ctx, alice)
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
	assert.Len(t, h.notifier.sent, 1)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestSignup_UsernameTakenConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.expectTx(true)
	h.expectTx(false)

	require.NoError(t, h.svc.Signup(ctx, alice))
	err := h.svc.Signup(ctx, SignupInput{Email: "b@x.com", Username: "alice", Password: "secret2"})
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestSignup_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    SignupInput
		field string
	}{
		{"missing email", SignupInput{Username: "alice", Password: "secret1"}, "email"},
		{"bad email", SignupInput{Email: "not-an-email", Username: "alice", Password: "secret1"}, "email"},
		{"missing username", SignupInput{Email: "a@x.com", Password: "secret1"}, "username"},
		{"short username", SignupInput{Email: "a@x.com", Username: "al", Password: "secret1"}, "username"},
		{"missing password", SignupInput{Email: "a@x.com", Username: "alice"}, "password"},
		{"short password", SignupInput{Email: "a@x.com", Username: "alice", Password: "12345"}, "password"},
		{"password over bcrypt limit", SignupInput{Email: "a@x.com", Username: "alice", Password: strings.Repeat("p", MaxPasswordBytes+1)}, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)

			err := h.svc.Signup(context.Background(), tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrValidation)

			var verrs validation.Errors
			require.True(t, errors.As(err, &verrs))
			assert.Contains(t, verrs, tt.field)

			assert.Equal(t, 0, h.repo.creates)
			assert.Equal(t, 0, h.store.Len())
			assert.Empty(t, h.notifier.sent)
			require.NoError(t, h.mock.ExpectationsWereMet(), "no transaction for invalid input")
		})
	}
}

func TestSignup_NotifierFailureKeepsAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.expectTx(true)
	h.notifier.err = errors.New("smtp down")

	err := h.svc.Signup(ctx, alice)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDependency)

	acc, err := h.repo.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, acc.Verified)

	// a repeated signup re-issues once delivery works again
	h.notifier.err = nil
	h.expectTx(true)
	require.NoError(t, h.svc.Signup(ctx, alice))
	assert.Equal(t, 1, h.repo.creates)
	assert.Len(t, h.notifier.sent, 1)
}

func TestSignup_RepositoryFailureIsDependency(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.expectTx(false)
	h.repo.getErr = errors.New("db error: conn refused")

	err := h.svc.Signup(context.Background(), alice)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDependency)
	assert.Empty(t, h.notifier.sent)
	assert.Equal(t, 0, h.store.Len())
}

func TestSignup_BeginFailureIsDependency(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	err := h.svc.Signup(context.Background(), alice)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDependency)
	assert.Contains(t, err.Error(), "pool exhausted")
}

func TestSignup_GeneratorFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.expectTx(true)
	h.codes.err = errors.New("clock broken")

	err := h.svc.Signup(context.Background(), alice)
	assert.ErrorIs(t, err, common.ErrDependency)
	assert.Empty(t, h.notifier.sent)
}

func TestSignup_StoreFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.expectTx(true)
	h.svc.store = failingStore{err: errors.New("redis gone")}

	err := h.svc.Signup(context.Background(), alice)
	assert.ErrorIs(t, err, common.ErrDependency)
	assert.Empty(t, h.notifier.sent)
}

// --- verify ---

func TestVerifyOTP_MatchVerifiesAndIssuesSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.expectTx(true)
	require.NoError(t, h.svc.Signup(ctx, alice))

	token, exp, err := h.svc.VerifyOTP(ctx, "a@x.com", "111111")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	acc, err := h.repo.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, acc.Verified)

	id, err := h.tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, id)
}

func TestVerifyOTP_SingleUse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.expectTx(true)
	require.NoError(t, h.svc.Signup(ctx, alice))

	_, _, err := h.svc.VerifyOTP(ctx, "a@x.com", "111111")
	require.NoError(t, err)

	_, _, err = h.svc.VerifyOTP(ctx, "a@x.com", "111111")
	assert.ErrorIs(t, err, common.ErrOTPExpired)
}

func TestVerifyOTP_MismatchKeepsAccountUnverified(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.expectTx(true)
	require.NoError(t, h.svc.Signup(ctx, alice))

	_, _, err := h.svc.VerifyOTP(ctx, "a@x.com", "000000")
	assert.ErrorIs(t, err, common.ErrInvalidOTP)

	acc, err := h.repo.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, acc.Verified)

	// the live code survives a wrong attempt
	_, _, err = h.svc.VerifyOTP(ctx, "a@x.com", "111111")
	assert.NoError(t, err)
}

func TestVerifyOTP_ExactComparison(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.codes.codes = []string{"012345"}
	h.expectTx(true)
	require.NoError(t, h.svc.Signup(ctx, alice))

	for _, c := range []string{"12345", " 012345", "012345 "} {
		_, _, err := h.svc.VerifyOTP(ctx, "a@x.com", c)
		assert.ErrorIs(t, err, common.ErrInvalidOTP, "candidate %q", c)
	}
}

func TestVerifyOTP_Expired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.svc.otpValidity = 20 * time.Millisecond
	h.expectTx(true)
	require.NoError(t, h.svc.Signup(ctx, alice))

	require.Eventually(t, func() bool { return h.store.Len() == 0 }, time.Second, 5*time.Millisecond)

	_, _, err := h.svc.VerifyOTP(ctx, "a@x.com", "111111")
	assert.ErrorIs(t, err, common.ErrOTPExpired)
}

func TestVerifyOTP_NeverIssued(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, _, err := h.svc.VerifyOTP(context.Background(), "nobody@x.com", "123456")
	assert.ErrorIs(t, err, common.ErrOTPExpired)
}

func TestVerifyOTP_AccountGone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.expectTx(true)
	require.NoError(t, h.svc.Signup(ctx, alice))
	h.repo.delete("a@x.com")

	_, _, err := h.svc.VerifyOTP(ctx, "a@x.com", "111111")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestVerifyOTP_MissingFields(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, _, err := h.svc.VerifyOTP(context.Background(), "", "123456")
	assert.ErrorIs(t, err, common.ErrValidation)
	_, _, err = h.svc.VerifyOTP(context.Background(), "a@x.com", "")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestVerifyOTP_RepositoryFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.expectTx(true)
	require.NoError(t, h.svc.Signup(ctx, alice))
	h.repo.markErr = errors.New("db error: timeout")

	_, _, err := h.svc.VerifyOTP(ctx, "a@x.com", "111111")
	assert.ErrorIs(t, err, common.ErrDependency)
}

func TestVerifyOTP_StoreFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.svc.store = failingStore{err: errors.New("redis gone")}

	_, _, err := h.svc.VerifyOTP(context.Background(), "a@x.com", "111111")
	assert.ErrorIs(t, err, common.ErrDependency)
}

// --- login / session ---

func signupAndVerify(t *testing.T, h *harness) {
	t.Helper()
	h.expectTx(true)
	require.NoError(t, h.svc.Signup(context.Background(), alice))
	_, _, err := h.svc.VerifyOTP(context.Background(), alice.Email, h.notifier.last().code)
	require.NoError(t, err)
}

func TestLogin_RoundTripToCurrentUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	signupAndVerify(t, h)

	token, _, err := h.svc.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	p, err := h.svc.CurrentUser(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, &models.Profile{Username: "alice"}, p)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	signupAndVerify(t, h)

	_, _, errWrong := h.svc.Login(ctx, "a@x.com", "wrong-pass")
	_, _, errUnknown := h.svc.Login(ctx, "ghost@x.com", "secret1")

	require.Error(t, errWrong)
	require.Error(t, errUnknown)
	assert.ErrorIs(t, errWrong, common.ErrInvalidCredentials)
	assert.ErrorIs(t, errUnknown, common.ErrInvalidCredentials)
	assert.Equal(t, errWrong.Error(), errUnknown.Error())
}

func TestLogin_UnverifiedAccountAllowed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.expectTx(true)
	require.NoError(t, h.svc.Signup(ctx, alice))

	_, _, err := h.svc.Login(ctx, "a@x.com", "secret1")
	assert.NoError(t, err)
}

func TestSignup_LongestPasswordAccepted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.expectTx(true)

	pw := strings.Repeat("p", MaxPasswordBytes)
	require.NoError(t, h.svc.Signup(ctx, SignupInput{Email: "a@x.com", Username: "alice", Password: pw}))

	_, _, err := h.svc.Login(ctx, "a@x.com", pw)
	assert.NoError(t, err)
}

func TestLogin_MalformedInputIsInvalidCredentials(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	signupAndVerify(t, h)

	_, _, want := h.svc.Login(ctx, "a@x.com", "wrong-pass")
	require.ErrorIs(t, want, common.ErrInvalidCredentials)

	for _, in := range [][2]string{
		{"", "secret1"},
		{"alice", "secret1"},
		{"not-an-email", "secret1"},
		{"a@x.com", ""},
		{"", ""},
	} {
		_, _, err := h.svc.Login(ctx, in[0], in[1])
		assert.ErrorIs(t, err, common.ErrInvalidCredentials, "input %q", in)
		assert.NotErrorIs(t, err, common.ErrValidation, "input %q", in)
		assert.Equal(t, want.Error(), err.Error(), "input %q", in)
	}
}

func TestLogin_RepositoryFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.repo.getErr = errors.New("db error: boom")

	_, _, err := h.svc.Login(context.Background(), "a@x.com", "secret1")
	assert.ErrorIs(t, err, common.ErrDependency)
	assert.NotErrorIs(t, err, common.ErrInvalidCredentials)
}

func TestCurrentUser_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	signupAndVerify(t, h)

	_, err := h.svc.CurrentUser(ctx, "")
	assert.ErrorIs(t, err, common.ErrUnauthenticated)

	_, err = h.svc.CurrentUser(ctx, "garbage")
	assert.ErrorIs(t, err, common.ErrUnauthenticated)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	stale, err := auth.NewTokenCodec([]byte("0123456789abcdef0123456789abcdef"), -time.Minute)
	require.NoError(t, err)
	expired, _, err := stale.Issue("acc-1")
	require.NoError(t, err)
	_, err = h.svc.CurrentUser(ctx, expired)
	assert.ErrorIs(t, err, common.ErrUnauthenticated)
	assert.ErrorIs(t, err, common.ErrTokenExpired)

	token, _, err := h.svc.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	h.repo.delete("a@x.com")
	_, err = h.svc.CurrentUser(ctx, token)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestLogout_DoesNotRevoke(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	signupAndVerify(t, h)

	token, _, err := h.svc.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, h.svc.Logout(ctx, token))

	p, err := h.svc.CurrentUser(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)

	assert.ErrorIs(t, h.svc.Logout(ctx, ""), common.ErrUnauthenticated)
}

func TestSignup_CreateFailureIsDependency(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.expectTx(false)
	h.repo.createErr = errors.New("db error: disk full")

	err := h.svc.Signup(context.Background(), alice)
	assert.ErrorIs(t, err, common.ErrDependency)
	assert.NotErrorIs(t, err, common.ErrAlreadyExists)
	assert.Empty(t, h.notifier.sent)
}
