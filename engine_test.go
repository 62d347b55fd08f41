package userauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memCredentialStore enforces email/username uniqueness like the SQL schema does.
type memCredentialStore struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]CredentialRecord
	saveErr error
	saves   int
}

func newMemCredentialStore() *memCredentialStore {
	return &memCredentialStore{records: map[int64]CredentialRecord{}}
}

func (s *memCredentialStore) find(match func(CredentialRecord) bool) *CredentialRecord {
	for _, r := range s.records {
		if match(r) {
			out := r
			return &out
		}
	}
	return nil
}

func (s *memCredentialStore) FindByEmail(_ context.Context, email string) (*CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(r CredentialRecord) bool { return r.Email == email }), nil
}

func (s *memCredentialStore) FindByUsername(_ context.Context, username string) (*CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(r CredentialRecord) bool { return r.Username == username }), nil
}

func (s *memCredentialStore) FindByID(_ context.Context, id int64) (*CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *memCredentialStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	r, err := s.FindByEmail(ctx, email)
	return r != nil, err
}

func (s *memCredentialStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	r, err := s.FindByUsername(ctx, username)
	return r != nil, err
}

func (s *memCredentialStore) Save(_ context.Context, rec *CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	for id, r := range s.records {
		if id != rec.ID && (r.Email == rec.Email || r.Username == rec.Username) {
			return ErrAlreadyExists
		}
	}
	if rec.ID == 0 {
		s.nextID++
		rec.ID = s.nextID
	}
	s.records[rec.ID] = *rec
	return nil
}

func (s *memCredentialStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *memCredentialStore) get(t *testing.T, email string) CredentialRecord {
	t.Helper()
	r, _ := s.FindByEmail(context.Background(), email)
	require.NotNil(t, r, "no record for %s", email)
	return *r
}

func (s *memCredentialStore) update(email string, mutate func(*CredentialRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.records {
		if r.Email == email {
			mutate(&r)
			s.records[id] = r
		}
	}
}

// atomicCredentialStore adds the single-statement failure counter.
type atomicCredentialStore struct {
	*memCredentialStore
	calls int
}

func (s *atomicCredentialStore) RecordLoginFailure(_ context.Context, id int64, maxAttempts int, lockedUntil time.Time) (int, *time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	r := s.records[id]
	r.FailedLoginAttempts++
	if r.FailedLoginAttempts >= maxAttempts {
		until := lockedUntil
		r.AccountLockedUntil = &until
	}
	s.records[id] = r
	return r.FailedLoginAttempts, r.AccountLockedUntil, nil
}

type sentMail struct {
	kind, email, username, token string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *recordingNotifier) record(m sentMail) {
	n.mu.Lock()
	n.sent = append(n.sent, m)
	n.mu.Unlock()
}

func (n *recordingNotifier) NotifyPasswordChanged(email, username string) {
	n.record(sentMail{kind: "changed", email: email, username: username})
}

func (n *recordingNotifier) NotifyVerification(email, username, token string) {
	n.record(sentMail{kind: "verify", email: email, username: username, token: token})
}

func (n *recordingNotifier) NotifyPasswordReset(email, username, token string) {
	n.record(sentMail{kind: "reset", email: email, username: username, token: token})
}

func (n *recordingNotifier) last(t *testing.T, kind string) sentMail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind == kind {
			return n.sent[i]
		}
	}
	t.Fatalf("no %q notification sent", kind)
	return sentMail{}
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.sent {
		if m.kind == kind {
			c++
		}
	}
	return c
}

type testEnv struct {
	engine   *Engine
	clock    *fakeClock
	store    *memCredentialStore
	atomic   *atomicCredentialStore
	notifier *recordingNotifier
	mr       *miniredis.Miniredis
	redis    *redis.Client
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = testSecret
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Throttle.MaxRequests = 0
	return cfg
}

type envOption func(*testEnv, *Config, *Builder)

func withAtomicFailureCounter() envOption {
	return func(env *testEnv, _ *Config, b *Builder) {
		env.atomic = &atomicCredentialStore{memCredentialStore: env.store}
		b.WithCredentialStore(env.atomic)
	}
}

func withConfig(mutate func(*Config)) envOption {
	return func(_ *testEnv, cfg *Config, _ *Builder) { mutate(cfg) }
}

func withAuditSink(sink AuditSink) envOption {
	return func(_ *testEnv, cfg *Config, b *Builder) {
		cfg.Audit.Enabled = true
		cfg.Audit.DropIfFull = false
		b.WithAuditSink(sink)
	}
}

func newTestEnv(t testing.TB, opts ...envOption) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := &testEnv{
		clock:    newFakeClock(),
		store:    newMemCredentialStore(),
		notifier: &recordingNotifier{},
		mr:       mr,
		redis:    client,
	}

	cfg := fastConfig()
	b := New().
		WithRedis(client).
		WithCredentialStore(env.store).
		WithNotifier(env.notifier).
		WithClock(env.clock.Now)
	for _, opt := range opts {
		opt(env, &cfg, b)
	}
	b.WithConfig(cfg)

	engine, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) register(t testing.TB, email, username, pw string) *TokenBundle {
	t.Helper()
	bundle, err := env.engine.Register(context.Background(), RegisterInput{
		Email:    email,
		Username: username,
		Password: pw,
	})
	require.NoError(t, err)
	return bundle
}
