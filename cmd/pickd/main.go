// pickd is the pick lifecycle daemon. It collects consensus lines, generates
// pick candidates through an LLM backend chain, validates and persists them,
// and settles pending picks against final scores.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/rrajkowski/pickline/pkg/engine/generate"
	"github.com/rrajkowski/pickline/pkg/engine/llm"
	"github.com/rrajkowski/pickline/pkg/engine/metrics"
	"github.com/rrajkowski/pickline/pkg/engine/policy"
	"github.com/rrajkowski/pickline/pkg/engine/runner"
	"github.com/rrajkowski/pickline/pkg/engine/settle"
	"github.com/rrajkowski/pickline/pkg/engine/sportcfg"
	"github.com/rrajkowski/pickline/pkg/engine/streaming"
	"github.com/rrajkowski/pickline/pkg/feeds/consensus"
	"github.com/rrajkowski/pickline/pkg/feeds/scores"
	"github.com/rrajkowski/pickline/pkg/feeds/teams"
	"github.com/rrajkowski/pickline/pkg/pick"
	"github.com/rrajkowski/pickline/pkg/pick/store"
)

var (
	// Flags
	httpAddr       = flag.String("http", ":8080", "HTTP server address for status API")
	dsn            = flag.String("dsn", "", "Postgres DSN (or DATABASE_URL env)")
	redisAddr      = flag.String("redis", "", "Redis address for the scores cache (or REDIS_ADDR env; empty disables)")
	sportsFlag     = flag.String("sports", "basketball_nba,americanfootball_nfl", "Comma-separated sport keys")
	sourcesFlag    = flag.String("sources", "", "Comma-separated consensus sources as id=url (or PICK_SOURCES env)")
	genInterval    = flag.Duration("gen-interval", 6*time.Hour, "Generation loop interval")
	settleInterval = flag.Duration("settle-interval", 30*time.Minute, "Settlement loop interval")
	targetCount    = flag.Int("target", 5, "Picks to request per generation run")
	riskProfile    = flag.String("risk", "balanced", "Risk profile passed to the generator")
	minConfidence  = flag.Int("min-confidence", 3, "Minimum confidence on the 1-5 scale")
	maxOdds        = flag.Int("max-odds", 150, "Maximum American odds magnitude")
	requireConsens = flag.Bool("require-consensus", false, "Reject totals picks without enough consensus votes")
	verbose        = flag.Bool("verbose", false, "Verbose logging")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("Starting pick lifecycle daemon")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	d, err := newDaemon(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize daemon: %v", err)
	}

	go d.hub.Run()

	server := d.startHTTP()

	go d.runner.Start(ctx)

	log.Printf("Daemon running (sports=%s, http=%s)", *sportsFlag, *httpAddr)
	log.Printf("WebSocket stream available at ws://%s/ws", *httpAddr)

	<-sigCh
	log.Println("Shutting down...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	d.db.Close()
	log.Println("Goodbye!")
}

type daemon struct {
	db      *storeDB
	store   *store.Store
	runner  *runner.Runner
	hub     *streaming.Hub
	metrics *metrics.PipelineMetrics
	sports  []string
}

// storeDB wraps the sqlx handle so main can close it without importing sqlx.
type storeDB struct {
	close func() error
}

func (s *storeDB) Close() {
	if err := s.close(); err != nil {
		log.Printf("DB close error: %v", err)
	}
}

func newDaemon(ctx context.Context) (*daemon, error) {
	d := &daemon{
		hub:     streaming.NewHub(),
		metrics: metrics.Default(),
	}

	// Database.
	connStr := *dsn
	if connStr == "" {
		connStr = os.Getenv("DATABASE_URL")
	}
	if connStr == "" {
		return nil, fmt.Errorf("no Postgres DSN: set -dsn or DATABASE_URL")
	}
	db, err := store.Open(connStr)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	d.db = &storeDB{close: db.Close}
	d.store = store.NewStore(db)
	if err := d.store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	// Sports.
	for _, key := range strings.Split(*sportsFlag, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if !sportcfg.Known(key) {
			log.Printf("Warning: unknown sport key %q, using generic windowing", key)
		}
		d.sports = append(d.sports, key)
	}
	if len(d.sports) == 0 {
		return nil, fmt.Errorf("no sports configured")
	}

	resolver := teams.NewResolver()

	// Consensus sources.
	sources, err := parseSources()
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		log.Println("Warning: no consensus sources configured, generation runs will be empty")
	}
	collector := consensus.NewCollector(consensus.NewNormalizer(resolver), sources, 30*time.Second)

	// LLM backend chain.
	chain, err := llm.BuildChain(llm.DefaultChainConfigs(
		os.Getenv("ANTHROPIC_API_KEY"),
		os.Getenv("GEMINI_API_KEY"),
		os.Getenv("OPENAI_API_KEY"),
	))
	if err != nil {
		return nil, fmt.Errorf("build backend chain: %w", err)
	}
	log.Printf("Backend chain ready with %d backends", len(chain))
	generator := generate.NewGenerator(chain, generate.DefaultConfig())

	// Acceptance policy.
	pol := policy.DefaultAcceptancePolicy()
	pol.MinConfidence = *minConfidence
	pol.MaxOddsMagnitude = *maxOdds
	pol.RequireConsensus = *requireConsens
	validator := policy.NewEngine(pol, resolver)

	// Scores feed with optional Redis cache.
	scoresKey := os.Getenv("ODDS_API_KEY")
	if scoresKey == "" {
		log.Println("Warning: ODDS_API_KEY not set, settlement passes will fail")
	}
	var provider scores.Provider = scores.NewClient(scoresKey)
	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("Warning: Redis unreachable at %s, scores cache disabled: %v", addr, err)
		} else {
			provider = scores.NewCachedProvider(provider, scores.NewCache(rdb))
			log.Printf("Scores cache enabled (redis=%s)", addr)
		}
	}
	settler := settle.NewEngine(d.store, provider, resolver, settle.Config{})

	// Runner.
	cfg := runner.Config{
		Sports:           d.sports,
		GenerateInterval: *genInterval,
		SettleInterval:   *settleInterval,
		Params: generate.Params{
			TargetCount: *targetCount,
			RiskProfile: *riskProfile,
		},
	}
	d.runner = runner.New(collector, generator, validator, settler, d.store, cfg, runner.Callbacks{
		OnPickAccepted: func(p pick.Pick) {
			log.Printf("[PICK] %s", p.String())
			d.hub.BroadcastPick(p)
		},
		OnRejection: func(rej policy.Rejection) {
			if *verbose {
				log.Printf("[REJECT] %s %s: %s", rej.Candidate.Game, rej.Candidate.Market, rej.Reason)
			}
			d.hub.BroadcastRejection(rej)
		},
		OnSettlement: func(ev settle.Event) {
			log.Printf("[SETTLED] %s -> %s", ev.Pick.String(), ev.Result)
			d.hub.BroadcastSettlement(ev)
		},
		OnRunComplete: func(s runner.RunSummary) {
			log.Printf("[RUN] done in %s: %d records, %d contexts, %d candidates, %d accepted, %d rejected",
				s.Duration.Round(time.Millisecond), s.Records, s.Contexts, s.Candidates, s.Accepted, s.Rejected)
			d.hub.BroadcastRun(s)
		},
		OnError: func(stage runner.Stage, err error) {
			d.hub.BroadcastError(err, string(stage))
		},
	})
	d.runner.AttachHistory(d.store, provider, resolver)

	return d, nil
}

// parseSources reads "id=url,id=url" from the flag or PICK_SOURCES env.
func parseSources() ([]consensus.Source, error) {
	raw := *sourcesFlag
	if raw == "" {
		raw = os.Getenv("PICK_SOURCES")
	}
	if raw == "" {
		return nil, nil
	}
	var sources []consensus.Source
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, url, ok := strings.Cut(entry, "=")
		if !ok || id == "" || url == "" {
			return nil, fmt.Errorf("bad source entry %q, want id=url", entry)
		}
		sources = append(sources, consensus.NewHTTPSource(id, url))
	}
	return sources, nil
}

func (d *daemon) startHTTP() *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		status := map[string]interface{}{
			"sports":     d.sports,
			"ws_clients": d.hub.ClientCount(),
		}
		if last := d.runner.LastRun(); last != nil {
			status["last_run"] = last
		}
		writeJSON(w, http.StatusOK, status)
	})

	r.Get("/picks/pending", func(w http.ResponseWriter, req *http.Request) {
		picks, err := d.store.ListPending(req.Context(), req.URL.Query().Get("sport"))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, picks)
	})

	r.Get("/picks/recent", func(w http.ResponseWriter, req *http.Request) {
		picks, err := d.store.ListRecent(req.Context(), 50)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, picks)
	})

	r.Get("/picks/{id}", func(w http.ResponseWriter, req *http.Request) {
		id, err := uuid.Parse(chi.URLParam(req, "id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad pick id"})
			return
		}
		p, err := d.store.GetByID(req.Context(), id)
		if err != nil {
			code := http.StatusInternalServerError
			if pick.IsNotFound(err) {
				code = http.StatusNotFound
			}
			writeJSON(w, code, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, p)
	})

	// Operator override for a mis-graded pick.
	r.Post("/picks/{id}/result", func(w http.ResponseWriter, req *http.Request) {
		id, err := uuid.Parse(chi.URLParam(req, "id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad pick id"})
			return
		}
		var body struct {
			Result pick.Result `json:"result"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
			return
		}
		switch body.Result {
		case pick.ResultWin, pick.ResultLoss, pick.ResultPush, pick.ResultPending:
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad result"})
			return
		}
		if err := d.store.OverrideResult(req.Context(), id, body.Result); err != nil {
			code := http.StatusInternalServerError
			if pick.IsNotFound(err) {
				code = http.StatusNotFound
			}
			writeJSON(w, code, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("[OVERRIDE] pick %s set to %s", id, body.Result)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		counts, err := d.store.ResultCounts(req.Context(), req.URL.Query().Get("sport"))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, counts)
	})

	r.Handle("/metrics", promhttp.HandlerFor(d.metrics.Registry(), promhttp.HandlerOpts{}))
	r.Get("/ws", d.hub.ServeWS)

	server := &http.Server{
		Addr:         *httpAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP server listening on %s", *httpAddr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()
	return server
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
