package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/fixpoint/fixpoint-api/internal/config"
	"github.com/fixpoint/fixpoint-api/internal/domain/booking"
	"github.com/fixpoint/fixpoint-api/internal/domain/catalog"
	"github.com/fixpoint/fixpoint-api/internal/domain/geocode"
	"github.com/fixpoint/fixpoint-api/internal/domain/inventory"
	"github.com/fixpoint/fixpoint-api/internal/domain/location"
	"github.com/fixpoint/fixpoint-api/internal/middleware"
	"github.com/fixpoint/fixpoint-api/internal/pkg/database"
	"github.com/fixpoint/fixpoint-api/internal/pkg/jwt"
	"github.com/fixpoint/fixpoint-api/internal/pkg/logger"
	"github.com/fixpoint/fixpoint-api/internal/pkg/response"

	"github.com/google/uuid"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting FixPoint API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)
	authMiddleware := middleware.Auth(jwtService)

	// ---------- Geocoding ----------
	mapbox := geocode.NewMapboxProvider(cfg.MapboxBaseURL, cfg.MapboxAccessToken, cfg.GeocodeTimeout)
	nominatim := geocode.NewNominatimProvider(cfg.NominatimBaseURL, cfg.GeocodeTimeout)
	if !mapbox.Configured() {
		log.Warn().Msg("Mapbox token not set, forward search uses fallback provider only")
	}

	primary := geocode.WithReverseCache(mapbox, redis, cfg.ReverseCacheTTL)
	fallback := geocode.WithReverseCache(nominatim, redis, cfg.ReverseCacheTTL)

	resolver := location.NewResolver(primary, fallback, location.Config{
		Fence: location.Geofence{
			MinLat: cfg.GeofenceMinLat,
			MaxLat: cfg.GeofenceMaxLat,
			MinLng: cfg.GeofenceMinLng,
			MaxLng: cfg.GeofenceMaxLng,
		},
		Anchor:        location.Coordinate{Lat: cfg.AnchorLat, Lng: cfg.AnchorLng},
		AnchorAddress: cfg.AnchorAddress,
		RegionHint:    "lk",
		DeviceWait:    cfg.DevicePositionWait,
		Cities:        location.DefaultCities(),
	})

	// ---------- Inventory ----------
	inventoryRepo := inventory.NewRepository(db)
	snapshot := inventory.NewSnapshot(inventoryRepo, func(ctx context.Context) bool {
		return middleware.GetUserID(ctx) != uuid.Nil
	})

	stockHub := inventory.NewHub(redis)
	go stockHub.Run()
	snapshot.OnChange(stockHub.Publish)

	inventoryHandler := inventory.NewHandler(snapshot, stockHub, cfg.AllowedOrigins)

	// ---------- Catalog ----------
	catalogRepo := catalog.NewRepository(db)
	catalogHandler := catalog.NewHandler(catalogRepo)

	// ---------- Booking ----------
	hours, err := booking.ParseServiceHours(cfg.ServiceHoursOpen, cfg.ServiceHoursClose)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid service hours configuration")
	}

	sessionStore := booking.NewRedisSessionStore(redis, cfg.SessionTTL)
	bookingRepo := booking.NewRepository(db)
	bookingService := booking.NewService(
		sessionStore,
		catalogRepo,
		resolver,
		snapshot,
		booking.NewAssembler(hours),
		bookingRepo,
		cfg.ReconcileMinInterval,
	)
	bookingHandler := booking.NewHandler(bookingService)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	// WebSocket endpoint (before Compress); browsers cannot set headers on
	// websocket dials, so the token rides a query parameter.
	r.Get("/ws/materials", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		authMiddleware(http.HandlerFunc(inventoryHandler.Watch)).ServeHTTP(w, r)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(chimw.Compress(5))

		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			response.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/services", catalogHandler.Routes())
		r.Mount("/materials", inventoryHandler.Routes(authMiddleware))
		r.Mount("/booking", bookingHandler.Routes(authMiddleware))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stockHub.Shutdown()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}
