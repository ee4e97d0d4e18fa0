package scheduler

import (
	"container/heap"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"moodatlas/internal/countries"
	"moodatlas/internal/metrics"
	"moodatlas/internal/types"
)

type Config struct {
	LeaseDuration   time.Duration
	SweepInterval   time.Duration
	StarvationBound int
	MinInterval     time.Duration
	MaxInterval     time.Duration
	Now             func() time.Time
}

// Lease is a time-bounded exclusive claim on fetching one country.
type Lease struct {
	Country string
	Token   string
	Expiry  time.Time
}

type leaseInfo struct {
	holder string
	token  string
	expiry time.Time
}

type countryState struct {
	country             string
	score               float64
	importance          float64
	lastFetch           time.Time
	consecutiveFailures int
	recentPostRate      float64
	cyclesSinceFetch    int
	nextEligible        time.Time
	lease               *leaseInfo
}

// Scheduler decides which country to fetch next under limited capacity.
// One mutex guards all state; scores are recomputed on every scheduling
// decision so decisions always see fresh priorities.
type Scheduler struct {
	config Config
	now    func() time.Time

	mu      sync.Mutex
	states  map[string]*countryState
	stopCh  chan struct{}
	stopped bool
}

func New(config Config) *Scheduler {
	if config.LeaseDuration <= 0 {
		config.LeaseDuration = 90 * time.Second
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 30 * time.Second
	}
	if config.StarvationBound <= 0 {
		config.StarvationBound = 10
	}
	if config.MinInterval <= 0 {
		config.MinInterval = 30 * time.Second
	}
	if config.MaxInterval <= 0 {
		config.MaxInterval = 10 * time.Minute
	}

	now := config.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		config: config,
		now:    now,
		states: make(map[string]*countryState),
		stopCh: make(chan struct{}),
	}
}

// Track registers a country. Idempotent; states are reset, never deleted.
func (s *Scheduler) Track(country string) {
	key := countries.Normalize(country)
	if key == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.states[key]; exists {
		return
	}
	s.states[key] = &countryState{
		country:    key,
		importance: countries.Importance(key),
	}
	metrics.CountriesTracked.Set(float64(len(s.states)))
}

// RecordActivity feeds observed post volume back into the priority score.
func (s *Scheduler) RecordActivity(country string, postsPerHour float64) {
	key := countries.Normalize(country)

	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.states[key]; ok {
		state.recentPostRate = postsPerHour
	}
}

// AcquireLease pops the highest-priority country that is eligible (no
// live lease, past its failure backoff) and leases it to workerID. The
// second return is false when nothing is eligible right now.
func (s *Scheduler) AcquireLease(workerID string) (Lease, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	candidates := &priorityQueue{}
	heap.Init(candidates)

	for _, state := range s.states {
		if state.lease != nil && state.lease.expiry.After(now) {
			continue
		}
		if state.nextEligible.After(now) {
			continue
		}
		state.score = s.priorityScore(state, now)
		heap.Push(candidates, state)
	}

	if candidates.Len() == 0 {
		return Lease{}, false
	}

	chosen := heap.Pop(candidates).(*countryState)

	// Reclaim silently if a previous holder let this lease expire.
	if chosen.lease != nil {
		chosen.lease = nil
	}

	lease := Lease{
		Country: chosen.country,
		Token:   uuid.NewString(),
		Expiry:  now.Add(s.config.LeaseDuration),
	}
	chosen.lease = &leaseInfo{holder: workerID, token: lease.Token, expiry: lease.Expiry}

	// One scheduling decision = one cycle for everyone passed over.
	for _, state := range s.states {
		if state.country != chosen.country {
			state.cyclesSinceFetch++
		}
	}

	metrics.LeasesAcquired.Inc()
	log.Printf("Scheduler: leased %s to worker %s (score=%.2f)", chosen.country, workerID, chosen.score)
	return lease, true
}

// ReportResult closes out a lease. A stale or unknown token means another
// worker already finished or the sweep reclaimed the lease; that is a
// no-op reported through the returned error for observability only.
func (s *Scheduler) ReportResult(country, token string, success bool, postCount int) error {
	key := countries.Normalize(country)

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[key]
	if !ok || state.lease == nil || state.lease.token != token {
		metrics.StaleLeaseReports.Inc()
		return types.NewStaleLeaseError(key, token)
	}

	now := s.now()
	state.lease = nil

	if success {
		if !state.lastFetch.IsZero() {
			hours := now.Sub(state.lastFetch).Hours()
			if hours > 0 {
				state.recentPostRate = float64(postCount) / hours
			}
		} else {
			state.recentPostRate = float64(postCount)
		}
		state.lastFetch = now
		state.consecutiveFailures = 0
		state.cyclesSinceFetch = 0
		state.nextEligible = time.Time{}
		log.Printf("Scheduler: %s fetched successfully (%d posts)", key, postCount)
		return nil
	}

	state.consecutiveFailures++
	backoff := s.failureBackoff(state.consecutiveFailures)
	state.nextEligible = now.Add(backoff)
	metrics.FetchFailures.WithLabelValues(key).Inc()
	log.Printf("Scheduler: %s fetch failed (%d consecutive), backing off %v",
		key, state.consecutiveFailures, backoff)
	return nil
}

func (s *Scheduler) failureBackoff(failures int) time.Duration {
	backoff := s.config.MinInterval * time.Duration(1<<uint(min(failures-1, 6)))
	if backoff > s.config.MaxInterval {
		backoff = s.config.MaxInterval
	}
	return backoff
}

// priorityScore combines activity, staleness, the awake-window boost and
// the failure penalty. A country skipped StarvationBound times is forced
// to the front regardless of everything else.
func (s *Scheduler) priorityScore(state *countryState, now time.Time) float64 {
	if state.cyclesSinceFetch >= s.config.StarvationBound {
		return math.Inf(1)
	}

	activity := math.Min(state.recentPostRate/10.0, 3.0)

	var timeDecay float64
	if state.lastFetch.IsZero() {
		timeDecay = 5.0
	} else {
		timeDecay = math.Min(now.Sub(state.lastFetch).Hours()/24.0, 3.0)
	}

	var awake float64
	if isAwake(state.country, now) {
		awake = 1.5
	}

	penalty := float64(state.consecutiveFailures) * 1.25

	return activity*2.0 + state.importance*1.5 + timeDecay + awake - penalty
}

// isAwake reports whether the country's local time falls in the window
// where its audience produces posts (07:00-23:00).
func isAwake(country string, now time.Time) bool {
	localHour := (now.UTC().Hour() + countries.UTCOffset(country) + 24) % 24
	return localHour >= 7 && localHour < 23
}

// Sweep reclaims expired, unreported leases, treating each as a failure
// so crashed workers do not hold a country hostage.
func (s *Scheduler) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	reclaimed := 0
	for _, state := range s.states {
		if state.lease == nil || state.lease.expiry.After(now) {
			continue
		}
		log.Printf("Scheduler: reclaiming expired lease on %s (holder %s)",
			state.country, state.lease.holder)
		state.lease = nil
		state.consecutiveFailures++
		state.nextEligible = now.Add(s.failureBackoff(state.consecutiveFailures))
		reclaimed++
		metrics.LeasesReclaimed.Inc()
	}
	return reclaimed
}

// Run drives the periodic sweep until Stop or context-free shutdown.
func (s *Scheduler) Run() {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
	}
}

// NextPollInterval adapts the fetch cadence to pending urgency: many
// high-priority countries shorten the interval, an idle table lengthens
// it. Bounds come from config.
func (s *Scheduler) NextPollInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	urgent := 0
	for _, state := range s.states {
		if score := s.priorityScore(state, now); score > 15.0 || math.IsInf(score, 1) {
			urgent++
		}
	}

	switch {
	case urgent > 20:
		return s.config.MinInterval
	case urgent > 10:
		return clampInterval(time.Minute, s.config.MinInterval, s.config.MaxInterval)
	case urgent > 0:
		return clampInterval(2*time.Minute, s.config.MinInterval, s.config.MaxInterval)
	default:
		return s.config.MaxInterval
	}
}

func clampInterval(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// Stats is the operator-facing snapshot served by the HTTP surface.
type Stats struct {
	Countries     int            `json:"countries"`
	ActiveLeases  int            `json:"active_leases"`
	Distribution  map[string]int `json:"priority_distribution"`
	OldestWaiting string         `json:"oldest_waiting,omitempty"`
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stats := Stats{
		Countries:    len(s.states),
		Distribution: map[string]int{"critical": 0, "high": 0, "medium": 0, "low": 0},
	}

	var oldest *countryState
	for _, state := range s.states {
		if state.lease != nil && state.lease.expiry.After(now) {
			stats.ActiveLeases++
		}
		score := s.priorityScore(state, now)
		switch {
		case math.IsInf(score, 1) || score > 20:
			stats.Distribution["critical"]++
		case score > 10:
			stats.Distribution["high"]++
		case score > 5:
			stats.Distribution["medium"]++
		default:
			stats.Distribution["low"]++
		}
		if oldest == nil || state.cyclesSinceFetch > oldest.cyclesSinceFetch {
			oldest = state
		}
	}
	if oldest != nil {
		stats.OldestWaiting = oldest.country
	}
	return stats
}

// priorityQueue is a max-heap over countryState, ties broken by name so
// scheduling decisions are deterministic.
type priorityQueue []*countryState

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].score != pq[j].score {
		return pq[i].score > pq[j].score
	}
	return pq[i].country < pq[j].country
}

func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *priorityQueue) Push(x any) {
	*pq = append(*pq, x.(*countryState))
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}
