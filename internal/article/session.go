package article

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrSuperseded is returned by a Session request that was replaced by a
	// newer one, or cancelled, before it finished.
	ErrSuperseded = errors.New("article request superseded")
	// ErrNoArticle means the page had nothing to show in reader view.
	ErrNoArticle = errors.New("no article")
)

// Session serializes article views: only the most recent Open may deliver
// a result. Opening a new article cancels the request in flight.
type Session struct {
	ex *Extractor

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// NewSession creates a session over an extractor.
func NewSession(ex *Extractor) *Session {
	return &Session{ex: ex}
}

// Open extracts rawURL. If another Open or Cancel happens before it
// completes, its result is discarded and ErrSuperseded is returned.
func (s *Session) Open(ctx context.Context, rawURL string) (*Article, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	token := s.seq
	s.cancel = cancel
	s.mu.Unlock()

	a, ok := s.ex.Extract(ctx, rawURL)

	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.seq {
		return nil, ErrSuperseded
	}
	s.cancel = nil
	if !ok {
		return nil, ErrNoArticle
	}
	return a, nil
}

// Cancel abandons the request in flight, if any.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.seq++
}
