package teamgate

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/teamgate/password"
	"github.com/MrEthical07/teamgate/secret"
)

var (
	testKey   = []byte("0123456789abcdef0123456789abcdef")
	testStart = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	passcodePattern  = regexp.MustCompile(`\b(\d{6})\b`)
	resetLinkPattern = regexp.MustCompile(`/reset-password/([0-9a-f]{64})`)
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []Message
	fail error
}

func (m *recordingMailer) Deliver(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) setFailure(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *recordingMailer) last(t *testing.T) Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no message sent")
	}
	return m.sent[len(m.sent)-1]
}

func (m *recordingMailer) lastPasscode(t *testing.T) string {
	t.Helper()
	match := passcodePattern.FindStringSubmatch(m.last(t).TextBody)
	if match == nil {
		t.Fatal("no passcode in last message")
	}
	return match[1]
}

func (m *recordingMailer) lastResetToken(t *testing.T) string {
	t.Helper()
	match := resetLinkPattern.FindStringSubmatch(m.last(t).TextBody)
	if match == nil {
		t.Fatal("no reset link in last message")
	}
	return match[1]
}

type mockDirectory struct {
	mu      sync.Mutex
	byID    map[string]Account
	byEmail   map[string]string
	findErr   error
	updateErr error
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		byID:    map[string]Account{},
		byEmail: map[string]string{},
	}
}

func (d *mockDirectory) put(acct Account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[acct.ID] = acct
	d.byEmail[acct.Email] = acct.ID
}

func (d *mockDirectory) FindByEmail(_ context.Context, email string) (Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.findErr != nil {
		return Account{}, d.findErr
	}
	id, ok := d.byEmail[email]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return d.byID[id], nil
}

func (d *mockDirectory) FindByID(_ context.Context, id string) (Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.findErr != nil {
		return Account{}, d.findErr
	}
	acct, ok := d.byID[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acct, nil
}

func (d *mockDirectory) Create(_ context.Context, in NewAccount) (Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, taken := d.byEmail[in.Email]; taken {
		return Account{}, ErrAccountExists
	}
	acct := Account{
		ID:           in.ID,
		Email:        in.Email,
		Name:         in.Name,
		Role:         in.Role,
		PasswordHash: in.PasswordHash,
		CreatedAt:    in.CreatedAt,
		UpdatedAt:    in.CreatedAt,
	}
	d.byID[acct.ID] = acct
	d.byEmail[acct.Email] = acct.ID
	return acct, nil
}

func (d *mockDirectory) UpdatePasswordHash(_ context.Context, id, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.updateErr != nil {
		return d.updateErr
	}
	acct, ok := d.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	acct.PasswordHash = hash
	d.byID[id] = acct
	return nil
}

func (d *mockDirectory) UpdateProfile(_ context.Context, id string, u AccountUpdate) (Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	acct, ok := d.byID[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	if u.Email != nil && *u.Email != acct.Email {
		if _, taken := d.byEmail[*u.Email]; taken {
			return Account{}, ErrAccountExists
		}
		delete(d.byEmail, acct.Email)
		acct.Email = *u.Email
		d.byEmail[acct.Email] = id
	}
	if u.Name != nil {
		acct.Name = *u.Name
	}
	if u.Role != nil {
		acct.Role = *u.Role
	}
	d.byID[id] = acct
	return acct, nil
}

func (d *mockDirectory) List(context.Context) ([]Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Account, 0, len(d.byID))
	for _, a := range d.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// failingStore wraps a Store and fails the selected operations.
type failingStore struct {
	secret.Store
	failFind bool
}

var errStoreDown = errors.New("connection refused")

func (s *failingStore) Find(ctx context.Context, accountID string, purpose secret.Purpose) (secret.Secret, bool, error) {
	if s.failFind {
		return secret.Secret{}, false, errStoreDown
	}
	return s.Store.Find(ctx, accountID, purpose)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.PrivateKey = testKey
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	return cfg
}

type testEnv struct {
	engine   *Engine
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	clock    *testClock
	mailer   *recordingMailer
	accounts *mockDirectory
	secrets  *secret.RedisStore
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return newTestEnvWith(t, cfg, nil)
}

func newTestEnvWith(t *testing.T, cfg Config, configure func(*Builder, *testEnv)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	env := &testEnv{
		mr:       mr,
		rdb:      rdb,
		clock:    &testClock{now: testStart},
		mailer:   &recordingMailer{},
		accounts: newMockDirectory(),
		secrets:  secret.NewRedisStore(rdb),
	}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccounts(env.accounts).
		WithSecretStore(env.secrets).
		WithMailer(env.mailer).
		WithClock(env.clock)
	if configure != nil {
		configure(b, env)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

// seedAccount stores an account with an argon2id hash of plain.
func (env *testEnv) seedAccount(t *testing.T, id, email, plain string, role Role) Account {
	t.Helper()

	v, err := password.NewVerifier(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}
	hash, err := v.Hash(plain)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	acct := Account{
		ID:           id,
		Email:        email,
		Name:         "User " + id,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    testStart,
		UpdatedAt:    testStart,
	}
	env.accounts.put(acct)
	return acct
}
