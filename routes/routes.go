package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prizmbets/pickem/handlers"
	"github.com/prizmbets/pickem/metrics"
	"github.com/prizmbets/pickem/middleware"
	"github.com/prizmbets/pickem/models"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/prizmbets/pickem/docs"
)

type Handlers struct {
	Auth      *handlers.AuthHandler
	Pool      *handlers.PoolHandler
	Pick      *handlers.PickHandler
	NFL       *handlers.NFLHandler
	Admin     *handlers.AdminHandler
	Health    *handlers.HealthHandler
	WebSocket *handlers.WebSocketHandler
}

type Options struct {
	JWTSecret      string
	AllowedOrigins []string
}

func SetupRoutes(r chi.Router, h Handlers, opts Options) {
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(opts.JWTSecret)

	r.Get("/health", h.Health.Health)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	r.Route("/api", func(r chi.Router) {
		r.Use(timeoutUnlessUpgrade(30 * time.Second))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Auth.Register)
			r.Post("/login", h.Auth.Login)
		})

		r.Route("/pickem", func(r chi.Router) {
			r.Get("/health", h.Health.Health)

			r.Group(func(r chi.Router) {
				r.Use(authenticate)

				r.Route("/pools", func(r chi.Router) {
					r.Get("/", h.Pool.ListPools)
					r.Post("/", h.Pool.CreatePool)
					r.Post("/join", h.Pool.JoinPool)

					r.Route("/{poolID}", func(r chi.Router) {
						r.Get("/", h.Pool.GetPool)
						r.Patch("/", h.Pool.UpdatePool)
						r.Delete("/", h.Pool.DeactivatePool)
						r.Post("/leave", h.Pool.LeavePool)
						r.Post("/invite-code", h.Pool.RegenerateInviteCode)
						r.Put("/logo", h.Pool.UploadLogo)

						r.Get("/picks", h.Pick.GetPicks)
						r.Post("/picks", h.Pick.SubmitPicks)
						r.Get("/leaderboard", h.Pick.GetLeaderboard)
						r.Get("/weeks/{weekNumber}/standings", h.Pick.GetWeeklyStandings)

						r.Get("/live", h.WebSocket.ServeWs)
					})
				})

				r.Route("/nfl", func(r chi.Router) {
					r.Get("/weeks/current", h.NFL.GetCurrentWeek)
					r.Get("/weeks/{weekNumber}/games", h.NFL.GetWeekGames)
				})

				r.Route("/admin", func(r chi.Router) {
					r.Use(middleware.Authorize(models.RoleAdmin))

					r.Post("/sync", h.Admin.SyncSchedule)
					r.Post("/finalize", h.Admin.FinalizeWeeks)
					r.Post("/pools/{poolID}/weeks/{weekID}/recalculate", h.Admin.RecalculateWeek)
				})
			})
		})
	})
}

// timeoutUnlessUpgrade ограничивает время обычных запросов; websocket-соединение живет дольше.
func timeoutUnlessUpgrade(d time.Duration) func(http.Handler) http.Handler {
	timeout := chimiddleware.Timeout(d)
	return func(next http.Handler) http.Handler {
		limited := timeout(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if websocket.IsWebSocketUpgrade(r) {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}
