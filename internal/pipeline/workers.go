package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"moodatlas/internal/scheduler"
	"moodatlas/internal/storage"
	"moodatlas/internal/types"
)

// Fetcher pulls recent posts for one country from the upstream source.
// External collaborator; implementations live outside this module.
type Fetcher interface {
	Fetch(ctx context.Context, country string) ([]*types.Post, error)
}

type FetchPoolConfig struct {
	Workers         int
	RetentionWindow time.Duration
	CleanupInterval time.Duration
}

// FetchPool runs fetch workers against the scheduler. Each worker loops:
// acquire a lease, fetch that country, submit what came back, report the
// outcome. The scheduler owns all prioritization; workers are dumb hands.
type FetchPool struct {
	config      FetchPoolConfig
	scheduler   *scheduler.Scheduler
	fetcher     Fetcher
	coordinator *Coordinator
	posts       storage.PostStore

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewFetchPool(config FetchPoolConfig, sched *scheduler.Scheduler, fetcher Fetcher,
	coordinator *Coordinator, posts storage.PostStore) *FetchPool {

	if config.Workers <= 0 {
		config.Workers = 3
	}
	if config.RetentionWindow <= 0 {
		config.RetentionWindow = 28 * 24 * time.Hour
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Hour
	}

	return &FetchPool{
		config:      config,
		scheduler:   sched,
		fetcher:     fetcher,
		coordinator: coordinator,
		posts:       posts,
		stopCh:      make(chan struct{}),
	}
}

func (p *FetchPool) Start() {
	log.Printf("FetchPool: starting %d workers", p.config.Workers)
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(fmt.Sprintf("fetch-worker-%d", i))
	}

	p.wg.Add(1)
	go p.cleanupLoop()
}

func (p *FetchPool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	log.Println("FetchPool: stopped")
}

// workerLoop idles on the scheduler's adaptive poll interval when no
// country is eligible, so a quiet system does not spin.
func (p *FetchPool) workerLoop(workerID string) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		lease, ok := p.scheduler.AcquireLease(workerID)
		if !ok {
			select {
			case <-p.stopCh:
				return
			case <-time.After(p.scheduler.NextPollInterval()):
			}
			continue
		}

		p.fetchOne(workerID, lease)
	}
}

func (p *FetchPool) fetchOne(workerID string, lease scheduler.Lease) {
	ctx, cancel := context.WithDeadline(context.Background(), lease.Expiry)
	defer cancel()

	posts, err := p.fetcher.Fetch(ctx, lease.Country)
	if err != nil {
		log.Printf("FetchPool: %s failed to fetch %s: %v", workerID, lease.Country, err)
		if reportErr := p.scheduler.ReportResult(lease.Country, lease.Token, false, 0); reportErr != nil {
			if types.IsStaleLease(reportErr) {
				log.Printf("FetchPool: %s held a stale lease for %s, result discarded", workerID, lease.Country)
			} else {
				log.Printf("FetchPool: %s could not report failure for %s: %v", workerID, lease.Country, reportErr)
			}
		}
		return
	}

	submitted := 0
	for _, post := range posts {
		if err := p.coordinator.SubmitPost(ctx, post); err != nil {
			// Fetch-origin events are droppable under backpressure; the
			// post reappears on the next poll of this country.
			log.Printf("FetchPool: dropping post %s for %s: %v", post.ID, lease.Country, err)
			continue
		}
		submitted++
	}

	if err := p.scheduler.ReportResult(lease.Country, lease.Token, true, submitted); err != nil {
		if types.IsStaleLease(err) {
			log.Printf("FetchPool: %s held a stale lease for %s, result discarded", workerID, lease.Country)
			return
		}
		log.Printf("FetchPool: %s could not report success for %s: %v", workerID, lease.Country, err)
	}

	p.refreshActivity(lease.Country)
}

// refreshActivity replaces the per-fetch rate estimate with the durable
// post count over the trailing hour, so the priority score tracks what
// the log actually holds rather than one fetch's yield.
func (p *FetchPool) refreshActivity(country string) {
	if p.posts == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := p.posts.CountFetchedSince(ctx, country, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		log.Printf("FetchPool: activity count for %s failed: %v", country, err)
		return
	}
	p.scheduler.RecordActivity(country, float64(count))
}

// cleanupLoop prunes the durable post log past the retention window.
func (p *FetchPool) cleanupLoop() {
	defer p.wg.Done()

	if p.posts == nil {
		return
	}

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := p.posts.DeleteOlderThan(ctx, p.config.RetentionWindow); err != nil {
				log.Printf("FetchPool: retention cleanup failed: %v", err)
			}
			cancel()
		}
	}
}
