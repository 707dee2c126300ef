package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"gt06gateway/internal/api/handler"
	"gt06gateway/internal/api/middleware"
	"gt06gateway/internal/api/util"
	"gt06gateway/internal/core/service"
)

type Options struct {
	JWTSecret      string
	AllowedOrigins []string
}

func NewRouter(
	opts Options,
	deviceService service.DeviceService,
	positionService service.PositionService,
) http.Handler {
	deviceHandler := handler.NewDeviceHandler(deviceService)
	positionHandler := handler.NewPositionHandler(positionService)
	authMiddleware := middleware.NewAuthMiddleware(opts.JWTSecret)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.LoggingMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		devices, err := deviceService.GetDevices(r.Context())
		if err != nil {
			util.WriteJSON(w, util.StatusFor(err), map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		util.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"connections": len(devices),
		})
	})

	r.Route("/api/devices", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Get("/", deviceHandler.GetDevices)
		r.Get("/known", deviceHandler.GetKnownDevices)
		r.Get("/known/{imei}", deviceHandler.GetKnownDevice)
		r.Get("/{imei}", deviceHandler.GetDevice)
		r.Post("/{imei}/commands", deviceHandler.SendCommand)
		r.Get("/{imei}/positions", positionHandler.GetPositions)
		r.Get("/{imei}/positions/latest", positionHandler.GetLatestPosition)
	})

	return r
}
