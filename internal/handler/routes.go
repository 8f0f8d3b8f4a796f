package handler

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/chatcore/internal/middleware"
	"github.com/capitalize-ai/chatcore/pkg/logger"
)

// Routes mounts the session API on r. Reads need a valid token; calls that
// change state also need the write scope. Callers add authentication and
// rate limiting around it.
func Routes(r chi.Router, s Session, log *logger.Logger, heartbeat time.Duration) {
	threads := NewThreadHandler(s, log)
	messages := NewMessageHandler(s, log)
	stream := NewStreamHandler(s, log, heartbeat)
	write := middleware.RequireScope(middleware.ScopeWrite)

	r.Get("/session", threads.Session)
	r.Get("/stream", stream.Stream)
	r.With(write).Post("/refresh", threads.Refresh)
	r.With(write).Delete("/selection", threads.Deselect)
	r.With(write).Post("/typing", messages.Typing)

	r.Route("/threads", func(r chi.Router) {
		r.Get("/", threads.List)
		r.With(write).Post("/", threads.Open)

		r.Route("/{id}", func(r chi.Router) {
			r.Use(write)
			r.Delete("/", threads.Delete)
			r.Post("/select", threads.Select)
			r.Post("/accept", threads.Accept)
			r.Post("/reject", threads.Reject)
			r.Post("/block", threads.Block)
			r.Post("/unblock", threads.Unblock)
			r.Post("/leave", threads.Leave)
			r.Put("/name", threads.Rename)

			r.Post("/members", threads.AddMembers)
			r.Delete("/members/{member}", threads.RemoveMember)
			r.Post("/admins", threads.PromoteAdmin)
			r.Delete("/admins/{member}", threads.DemoteAdmin)
		})
	})

	r.Route("/messages", func(r chi.Router) {
		r.Get("/", messages.List)

		r.Group(func(r chi.Router) {
			r.Use(write)
			r.Post("/", messages.Send)
			r.Post("/older", messages.Older)
			r.Put("/{id}", messages.Edit)
			r.Delete("/{id}", messages.Delete)
		})
	})
}
