package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"moodatlas/internal/aggregate"
	"moodatlas/internal/cache"
	"moodatlas/internal/countries"
	"moodatlas/internal/scheduler"
)

type Config struct {
	Port     string
	CacheTTL time.Duration
}

// Server is the read-only HTTP surface: country aggregates, scheduler
// stats, health and Prometheus metrics. Aggregate responses go through a
// short TTL cache so dashboard polling does not contend with the write
// path.
type Server struct {
	config    Config
	engine    *aggregate.Engine
	scheduler *scheduler.Scheduler
	cache     *cache.Cache[aggregate.CountryAggregate]
	server    *http.Server
	started   time.Time
}

func New(config Config, engine *aggregate.Engine, sched *scheduler.Scheduler) *Server {
	if config.Port == "" {
		config.Port = "8080"
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 2 * time.Minute
	}

	return &Server{
		config:    config,
		engine:    engine,
		scheduler: sched,
		cache:     cache.New[aggregate.CountryAggregate](config.CacheTTL),
	}
}

func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/countries", s.handleCountries)
	mux.HandleFunc("/country/", s.handleCountry)
	mux.HandleFunc("/scheduler/stats", s.handleSchedulerStats)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:    ":" + s.config.Port,
		Handler: mux,
	}
	s.started = time.Now().UTC()

	go func() {
		log.Printf("API server: starting on port %s", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("API server: error: %v", err)
		}
	}()

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server: shutdown error: %v", err)
		}
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","uptime":"%s","time":"%s"}`,
		time.Since(s.started).Round(time.Second),
		time.Now().UTC().Format(time.RFC3339))
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	aggs := s.engine.ListAggregates()
	sort.Slice(aggs, func(i, j int) bool {
		return aggs[i].Country < aggs[j].Country
	})

	type summary struct {
		Country         string  `json:"country"`
		DisplayName     string  `json:"display_name"`
		DominantEmotion string  `json:"dominant_emotion"`
		Confidence      float64 `json:"confidence"`
		PostCount       int     `json:"post_count"`
	}

	out := make([]summary, 0, len(aggs))
	for _, agg := range aggs {
		out = append(out, summary{
			Country:         agg.Country,
			DisplayName:     countries.Display(agg.Country),
			DominantEmotion: string(agg.DominantEmotion),
			Confidence:      agg.Confidence,
			PostCount:       agg.TotalPosts,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCountry(w http.ResponseWriter, r *http.Request) {
	name := countries.Normalize(strings.TrimPrefix(r.URL.Path, "/country/"))
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "country name is required"})
		return
	}

	if agg, ok := s.cache.Get(name); ok {
		writeJSON(w, http.StatusOK, agg)
		return
	}

	agg, ok := s.engine.GetCountryAggregate(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("no data for country %q", name)})
		return
	}

	s.cache.Set(name, agg)
	writeJSON(w, http.StatusOK, agg)
}

func (s *Server) handleSchedulerStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.Stats())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("API server: failed to encode response: %v", err)
	}
}
