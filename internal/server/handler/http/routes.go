package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/middleware"
)

// Login attempts per client IP and minute; the brute-force budget of the
// password endpoint.
const (
	loginRateLimit  = 10
	loginRateWindow = time.Minute
)

// NewRouter constructs and returns the HTTP handler serving the app
// interface.
//
// Public routes:
//
//	GET  /version        → server identification for the connection check
//	GET  /organizations  → organizations offered on the login screen
//	POST /login          → credential check and token issuance (rate limited)
//
// All other routes require a live bearer token; the middleware resolves it
// to a user and rejects everything else with an undifferentiated 401.
func NewRouter(
	authHandler *AuthHandler,
	missionHandler *MissionHandler,
	locationHandler *LocationHandler,
	validator middleware.TokenValidator,
	limiter *redis.Client,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Log each request and its metadata
	r.Use(middleware.WithRequestLogging(logger))

	// Public endpoints
	r.Get("/version", authHandler.Version)
	r.Get("/organizations", authHandler.Organizations)
	r.With(middleware.LoginRateLimit(limiter, loginRateLimit, loginRateWindow, logger)).
		Post("/login", authHandler.Login)

	// Protected group: requires a valid session token
	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(validator, logger))

		r.Get("/logout", authHandler.Logout)
		r.Get("/initialization", missionHandler.Initialization)
		r.Post("/missionselect", missionHandler.SelectMission)
		r.Post("/roleselect", missionHandler.SelectRole)
		r.Post("/stateselect", missionHandler.SelectState)
		r.Post("/quickaction", missionHandler.QuickAction)
		r.Get("/missionactive", missionHandler.MissionActive)
		r.Get("/missiondetails", missionHandler.Details)
		r.Get("/searchareas", missionHandler.SearchAreas)
		r.Post("/uploadpoi", missionHandler.UploadPOI)
		r.Post("/locationupdate", locationHandler.Update)
	})

	return r
}
