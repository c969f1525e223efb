package booking

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the booking router. Everything requires auth: a session is
// always owned by a user.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)

		r.Post("/sessions", h.Open)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.Abandon)

			r.Put("/service", h.SetService)

			r.Post("/location/search", h.SearchLocation)
			r.Post("/location/candidate", h.PickCandidate)
			r.Put("/location/coordinate", h.SetCoordinate)
			r.Put("/location/city", h.SetCity)
			r.Post("/location/device", h.UseDevicePosition)
			r.Delete("/location", h.ClearLocation)

			r.Post("/materials/toggle", h.ToggleMaterial)
			r.Put("/materials/quantity", h.SetQuantity)
			r.Delete("/materials/{itemID}", h.RemoveMaterial)

			r.Put("/payment", h.SetPayment)
			r.Put("/schedule", h.SetSchedule)
			r.Put("/description", h.SetDescription)

			r.Get("/preview", h.Preview)
			r.Post("/submit", h.Submit)
		})
	})

	return r
}
