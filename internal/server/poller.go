package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/TobiSchelling/benreader/internal/pipeline"
)

// Refresher refreshes every feed.
type Refresher interface {
	RefreshAll(ctx context.Context) *pipeline.Result
}

// Poller runs refresh-all on a fixed interval. At most one refresh runs at
// a time, whether started by the ticker or on demand.
type Poller struct {
	refresher Refresher
	interval  time.Duration
	onStartup bool

	running  sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPoller creates a background poller.
func NewPoller(r Refresher, interval time.Duration, onStartup bool) *Poller {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Poller{
		refresher: r,
		interval:  interval,
		onStartup: onStartup,
		stopChan:  make(chan struct{}),
	}
}

// RunOnce refreshes all feeds unless a refresh is already in progress, in
// which case it returns nil, false.
func (p *Poller) RunOnce(ctx context.Context) (*pipeline.Result, bool) {
	if !p.running.TryLock() {
		return nil, false
	}
	defer p.running.Unlock()
	return p.refresher.RefreshAll(ctx), true
}

// Start begins the polling loop.
func (p *Poller) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-p.stopChan:
				cancel()
			case <-ctx.Done():
			}
		}()

		wait := p.interval
		if p.onStartup {
			wait = 0
		}
		for {
			select {
			case <-p.stopChan:
				return
			case <-time.After(wait):
			}
			wait = p.interval

			log.Printf("Poller: refreshing all feeds (interval: %s)", p.interval)
			if _, ok := p.RunOnce(ctx); !ok {
				log.Println("Poller: refresh already running, skipping")
			}
		}
	}()
}

// Stop stops the poller, cancelling a refresh in progress, and waits for
// it to exit.
func (p *Poller) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}
