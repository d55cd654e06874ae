package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. The
// WebSocket endpoint lives outside /api so proxies can apply different
// timeout rules to it.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/ws", h.HandleWS)
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/realtime/stats", h.Stats)

		// Event bus
		r.Post("/events", h.PublishEvent)
		r.Get("/events/{id}", h.GetEvent)

		// Oracle integration
		r.Post("/oracle/webhook", h.OracleWebhook)
		r.Post("/oracle/mappings", h.RegisterOracleMapping)

		// Market data streams
		r.Post("/streams/{marketId}/start", h.StartStream)
		r.Post("/streams/{marketId}/stop", h.StopStream)

		// Chat
		r.Get("/markets/{marketId}/messages", h.ListMessages)
		r.Post("/messages/{id}/like", h.LikeMessage)

		// Notifications
		r.Get("/users/{userId}/notifications", h.ListNotifications)
		r.Post("/notifications/{id}/read", h.MarkNotificationRead)

		// Leaderboards
		r.Post("/leagues/{leagueId}/leaderboard", h.UpdateLeaderboard)
	})
}
