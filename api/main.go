package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rewind/api/config"
	"rewind/api/handler"
	"rewind/api/hub"
	"rewind/api/logging"
	"rewind/api/metrics"
	"rewind/api/model"
	"rewind/api/setup"
)

var Version = "dev"

func main() {
	cfg := config.Load()
	log := logging.Must(cfg.LogLevel)
	defer log.Sync()

	var project *model.Project
	if p, err := model.LoadProject(cfg.Project); err == nil {
		project = p
		log.Info("project loaded", zap.String("path", cfg.Project), zap.String("service", p.Service))
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Fatal("project", zap.String("path", cfg.Project), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	allowedOrigins := append([]string{"http://localhost:5173", "http://localhost:3000"}, cfg.Origins()...)
	ws := hub.New(allowedOrigins, log.Named("hub"))
	go ws.Run(ctx)

	m := metrics.New(prometheus.DefaultRegisterer)
	c, err := setup.Build(ctx, cfg, project, "api", log, m, ws)
	if err != nil {
		log.Fatal("setup", zap.Error(err))
	}

	checks := make(map[string]handler.HealthCheck, len(c.Checks))
	for name, fn := range c.Checks {
		checks[name] = fn
	}
	h := handler.New(c.Rollback, c.Events, ws, cfg, project, checks, log.Named("handler"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	if cfg.APIToken != "" {
		r.Use(bearerAuth(cfg.APIToken))
		log.Info("API token auth enabled")
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"version": Version, "provider": cfg.Provider, "region": cfg.Region})
		})
		h.Routes(r)
	})
	r.Get("/ws", ws.HandleConnect)
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.BindAddr + ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info("rewind api listening", zap.String("version", Version), zap.String("addr", srv.Addr), zap.String("provider", cfg.Provider))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	if err := h.Wait(shutdownCtx); err != nil {
		log.Warn("rollbacks still running at shutdown; their stacks keep converging remotely", zap.Error(err))
	}
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/ws" || r.URL.Path == "/api/health" || r.URL.Path == "/api/version" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(auth[7:]), []byte(token)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
