package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/qhly2010/MoviePilot/internal"
	"github.com/qhly2010/MoviePilot/internal/cache"
	"github.com/qhly2010/MoviePilot/internal/common"
	"github.com/qhly2010/MoviePilot/internal/config"
	"github.com/qhly2010/MoviePilot/internal/loki"
	"github.com/qhly2010/MoviePilot/pkg/douban"
	"github.com/qhly2010/MoviePilot/pkg/schema"
	slogchi "github.com/samber/slog-chi"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "douban-gateway"

func main() {

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.Load()
	if err != nil {
		println("Failed to config.Load:", err.Error())
		os.Exit(1)
	}

	loggerShutdown, err := common.InitLogger(serviceName, cfg.ServiceVersion, cfg.Environment, cfg.OTELExporterEndpoint)
	if err != nil {
		println("Failed to common.InitLogger:", err.Error())
		os.Exit(1)
	}

	instrumentationShutdown, err := common.InitInstrumentation(serviceName, cfg.ServiceVersion, cfg.Environment, cfg.OTELExporterEndpoint)
	if err != nil {
		common.Log.Error("Failed to common.InitInstrumentation", "err", err)
		os.Exit(1)
	}

	doubanClient := douban.NewDouban(douban.DefaultConfig(cfg.UserAgent))
	lokiClient := loki.NewLoki(cfg.LokiHost)

	metadataService := internal.NewMetadataService(cfg.StatsWebsocketChannel, doubanClient, lokiClient)
	go metadataService.StartPollingStats(cfg.StatsPollingInterval)

	app, err := internal.NewApp(metadataService, cfg.APIToken)
	if err != nil {
		common.Log.Error("Failed to internal.NewApp", "err", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(slogchi.New(common.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{
			"Content-Type",
			"X-Requested-With",
			"Accept",
			"Accept-Language",
			"Accept-Encoding",
			"Content-Language",
			"Origin",
			"Authorization",
		},
		MaxAge: 300,
	}))

	r.Get("/api/v1/douban/img", app.ImageHandler)
	r.Group(func(r chi.Router) {
		r.Use(app.VerifyToken)
		r.Get("/api/v1/douban/person/{person_id}", app.PersonHandler)
		r.Get("/api/v1/douban/person/credits/{person_id}", app.PersonCreditsHandler)
		r.Get("/api/v1/douban/showing", app.ShowingHandler())
		r.Get("/api/v1/douban/movies", app.DiscoverHandler(schema.MediaTypeMovie))
		r.Get("/api/v1/douban/tvs", app.DiscoverHandler(schema.MediaTypeTV))
		r.Get("/api/v1/douban/movie_top250", app.MovieTop250Handler())
		r.Get("/api/v1/douban/movie_hot", app.MovieHotHandler())
		r.Get("/api/v1/douban/tv_hot", app.TVHotHandler())
		r.Get("/api/v1/douban/tv_weekly_chinese", app.TVWeeklyChineseHandler())
		r.Get("/api/v1/douban/tv_weekly_global", app.TVWeeklyGlobalHandler())
		r.Get("/api/v1/douban/tv_animation", app.TVAnimationHandler())
		r.Get("/api/v1/douban/credits/{douban_id}/{type_name}", app.CreditsHandler)
		r.Get("/api/v1/douban/recommend/{douban_id}/{type_name}", app.RecommendHandler)
		r.Get("/api/v1/douban/{douban_id}", app.MediaDetailHandler)
	})
	r.Get("/ws", app.WebsocketHandler)

	srv := &http.Server{
		Addr:    cfg.ServerListenAddr,
		Handler: otelhttp.NewHandler(r, "http"),
	}
	go func() {
		common.Log.Info("Listening", "addr", cfg.ServerListenAddr, "public_host", cfg.PublicHost)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			common.Log.Error("Failed to http.Server.ListenAndServe", "err", err)
		}
	}()

	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		common.Log.Error("Failed to http server shutdown", "err", err)
	}

	if err := cache.Close(); err != nil {
		common.Log.Error("Failed to cache.Close", "err", err)
	}

	instrumentationShutdown(ctx)
	if err := loggerShutdown(ctx); err != nil {
		common.Log.Error("Failed to logger shutdown", "err", err)
	}

	common.Log.Info("Bye!")
}
