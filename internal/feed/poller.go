package feed

import (
	"context"
	"time"
)

// DefaultInterval is how often the feed is polled.
const DefaultInterval = 5 * time.Second

// Handler receives one feed record. fallbackID names the device when the
// record has no id of its own.
type Handler func(rec Record, fallbackID string)

// Poller fetches a Source at a fixed interval and hands each new record to
// a Handler. The receiver's log only grows, so a cursor remembers how many
// records were already delivered; if the feed shrinks it was rotated and
// delivery starts over.
type Poller struct {
	src      Source
	interval time.Duration
	handle   Handler
	seen     int
}

// NewPoller creates a Poller. A non-positive interval uses DefaultInterval.
func NewPoller(src Source, interval time.Duration, handle Handler) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{src: src, interval: interval, handle: handle}
}

// Poll fetches once and delivers the records not seen before. It returns
// how many were delivered. On error nothing is delivered and the cursor is
// left alone.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	records, err := p.src.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	if len(records) < p.seen {
		Logf("feed: feed shrank from %d to %d records, replaying", p.seen, len(records))
		p.seen = 0
	}
	fresh := records[p.seen:]
	for _, rec := range fresh {
		p.handle(rec, "")
	}
	p.seen = len(records)
	return len(fresh), nil
}

// Run polls until ctx is done. Polls never overlap: the next tick is only
// taken after the current poll returns. Failures are logged and the loop
// keeps going.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
				Logf("feed: poll failed: %v", err)
			}
		}
	}
}
