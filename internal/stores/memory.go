package stores

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps tokens in process memory. A janitor goroutine evicts expired
// entries every sweep interval until Close is called.
type MemoryStore struct {
	mu      sync.Mutex
	records map[Kind]map[string]tokenRecord
	now     func() time.Time

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore starts a store whose janitor runs every interval (default 1m)
// and evicts what has expired by now(). now may be nil; it should be the clock
// callers pass to Issue and Peek.
func NewMemoryStore(interval time.Duration, now func() time.Time) *MemoryStore {
	if interval <= 0 {
		interval = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	s := &MemoryStore{
		records: map[Kind]map[string]tokenRecord{
			KindVerification: {},
			KindReset:        {},
		},
		now:  now,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.janitor(interval)
	return s
}

func (s *MemoryStore) Issue(_ context.Context, kind Kind, email string, ttl time.Duration, now time.Time) (string, error) {
	if !kind.valid() {
		return "", ErrUnknownKind
	}
	token, record, err := newTokenRecord(email, ttl, now)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records == nil {
		return "", ErrStoreClosed
	}
	s.records[kind][tokenKey(token)] = record
	return token, nil
}

func (s *MemoryStore) Peek(_ context.Context, kind Kind, token string, now time.Time) (string, error) {
	return s.lookup(kind, token, now, false)
}

func (s *MemoryStore) Consume(_ context.Context, kind Kind, token string, now time.Time) (string, error) {
	return s.lookup(kind, token, now, true)
}

func (s *MemoryStore) Invalidate(_ context.Context, kind Kind, token string) error {
	if !kind.valid() {
		return ErrUnknownKind
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records != nil {
		delete(s.records[kind], tokenKey(token))
	}
	return nil
}

func (s *MemoryStore) lookup(kind Kind, token string, now time.Time, consume bool) (string, error) {
	if !kind.valid() {
		return "", ErrUnknownKind
	}
	key := tokenKey(token)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records == nil {
		return "", ErrStoreClosed
	}

	record, ok := s.records[kind][key]
	if !ok {
		return "", ErrTokenNotFoundOrExpired
	}
	if record.expired(now) {
		delete(s.records[kind], key)
		return "", ErrTokenNotFoundOrExpired
	}
	if consume {
		delete(s.records[kind], key)
	}
	return record.Email, nil
}

// Len reports the number of live records of kind, expired ones included.
func (s *MemoryStore) Len(kind Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[kind])
}

// Sweep evicts every record expired at now and returns how many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, bucket := range s.records {
		for key, record := range bucket {
			if record.expired(now) {
				delete(bucket, key)
				removed++
			}
		}
	}
	return removed
}

func (s *MemoryStore) janitor(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

// Close stops the janitor and drops every record. Safe to call more than once.
func (s *MemoryStore) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done

		s.mu.Lock()
		s.records = nil
		s.mu.Unlock()
	})
}
