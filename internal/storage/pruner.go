package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RetentionPruner deletes uploads older than the retention period. Uploads
// are only needed until their transcription finishes, so nothing is kept
// past retention.
type RetentionPruner struct {
	store     Pruner
	retention time.Duration
	interval  time.Duration
	log       zerolog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

// NewRetentionPruner creates a pruner for the given store.
func NewRetentionPruner(store Pruner, retention time.Duration, log zerolog.Logger) *RetentionPruner {
	interval := time.Hour
	if retention > 0 && retention < 4*time.Hour {
		interval = retention / 4
	}
	return &RetentionPruner{
		store:     store,
		retention: retention,
		interval:  interval,
		log:       log.With().Str("component", "upload-pruner").Logger(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (p *RetentionPruner) Start() {
	go p.loop()
}

// Stop signals the loop to exit and waits for it.
func (p *RetentionPruner) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

func (p *RetentionPruner) loop() {
	defer close(p.done)

	// Run once on startup to clear any backlog from downtime
	p.prune()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.prune()
		case <-p.stop:
			return
		}
	}
}

func (p *RetentionPruner) prune() {
	if p.retention <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	count, freed, err := p.store.PruneOlderThan(ctx, time.Now().Add(-p.retention))
	if err != nil {
		p.log.Warn().Err(err).Msg("upload prune failed")
	}
	if count > 0 {
		p.log.Info().
			Int("pruned", count).
			Str("freed", humanizeBytes(freed)).
			Msg("upload prune complete")
	}
}

func humanizeBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
