package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/tile-fetch/pkg/batch"
	"github.com/Sternrassler/tile-fetch/pkg/cache"
	"github.com/Sternrassler/tile-fetch/pkg/config"
	"github.com/Sternrassler/tile-fetch/pkg/fetch"
	"github.com/Sternrassler/tile-fetch/pkg/logging"
	"github.com/Sternrassler/tile-fetch/pkg/metrics"
	"github.com/Sternrassler/tile-fetch/pkg/redact"
	"github.com/Sternrassler/tile-fetch/pkg/transport"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load(os.Getenv(config.FileEnv))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Setup(cfg.LoggingConfig())
	logger := logging.NewLogger(logging.ComponentProxy)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisURL,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis", cfg.Cache.RedisURL).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("redis", cfg.Cache.RedisURL).Msg("Connected to Redis")
	}

	client, err := newClient(cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create fetch client")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newMux(client, redisClient, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	logger.Info().
		Str("addr", server.Addr).
		Str("user_agent", cfg.UserAgent).
		Bool("cache", cfg.Cache.Enabled).
		Msg("Starting tile proxy server")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Server stopped")
}

// newClient builds the transport chain and the fetch client. The Redis
// cache wraps the HTTP transport when redisClient is not nil.
func newClient(cfg config.Config, redisClient *redis.Client) (*fetch.Client, error) {
	httpCfg := transport.DefaultHTTPConfig()
	httpCfg.UserAgent = cfg.UserAgent
	httpCfg.PollInterval = cfg.PollInterval

	var t transport.Transport = transport.NewHTTPTransport(httpCfg, logging.NewLogger(logging.ComponentHTTPTransport))
	if redisClient != nil {
		managerCfg := cache.ManagerConfig{
			MaxTTL:        cfg.Cache.MaxTTL,
			MaxEntryBytes: cfg.Cache.MaxEntryBytes,
		}
		t = cache.NewTransport(t, cache.NewManager(redisClient, managerCfg), logging.NewLogger(logging.ComponentCacheTransport))
	}

	fetchCfg := fetch.DefaultConfig(t)
	fetchCfg.MaxRedirects = cfg.MaxRedirects
	return fetch.New(fetchCfg)
}

func newMux(client *fetch.Client, redisClient *redis.Client, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(redisClient))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/exists", existsHandler(client))
	mux.HandleFunc("/load", loadHandler(client))
	mux.HandleFunc("/batch", batchHandler(client, logger))
	return logRequests(mux, logger)
}

func logRequests(next http.Handler, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("url", redactedTarget(r)).
			Dur("duration", time.Since(start)).
			Msg("Handled request")
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports 503 while the cache backend is unreachable.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

type existsResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error"`
	FinalURL string `json:"final_url"`
}

func existsHandler(client *fetch.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("url")
		if target == "" {
			http.Error(w, "missing url parameter", http.StatusBadRequest)
			return
		}

		res := client.CheckExists(r.Context(), target)
		writeJSON(w, http.StatusOK, existsResponse{
			Success:  res.Success,
			Error:    res.Error,
			FinalURL: res.FinalURL,
		})
	}
}

type loadResponse struct {
	StatusCode int    `json:"status_code"`
	Content    string `json:"content"`
}

func loadHandler(client *fetch.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("url")
		if target == "" {
			http.Error(w, "missing url parameter", http.StatusBadRequest)
			return
		}

		res := client.Load(r.Context(), target)
		writeJSON(w, http.StatusOK, loadResponse{
			StatusCode: res.StatusCode,
			Content:    res.Content,
		})
	}
}

type batchRequest struct {
	Requests []struct {
		Label string `json:"label"`
		URL   string `json:"url"`
	} `json:"requests"`
}

type batchResponse struct {
	// Results values are base64 encoded by encoding/json.
	Results   map[string][]byte `json:"results"`
	Cancelled bool              `json:"cancelled"`
}

// batchHandler runs one FetchAll per request. A client disconnect cancels
// the batch through the request context.
func batchHandler(client *fetch.Client, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var body batchRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}

		requests := make([]batch.Request[string], 0, len(body.Requests))
		for _, req := range body.Requests {
			requests = append(requests, batch.Request[string]{Label: req.Label, URL: req.URL})
		}

		onProgress := func(completed int) {
			logger.Debug().
				Int("completed", completed).
				Int("total", len(requests)).
				Msg("Batch progress")
		}

		out, err := fetch.Fetch(r.Context(), client, requests, onProgress, nil)
		if err != nil {
			if errors.Is(err, batch.ErrDuplicateLabel) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if out.Cancelled {
			logger.Info().Int("total", len(requests)).Msg("Batch cancelled by client")
		}

		writeJSON(w, http.StatusOK, batchResponse{
			Results:   out.Results,
			Cancelled: out.Cancelled,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

// redactedTarget is used when logging proxy targets.
func redactedTarget(r *http.Request) string {
	return redact.SensitiveKey(r.URL.Query().Get("url"))
}
