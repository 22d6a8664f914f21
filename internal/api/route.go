package api

import (
	"github.com/go-chi/chi/v5"
)

func (c *ClaimController) Mount(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/claims/last", c.LastRound)
		r.Post("/claims/round", c.RunRound)
		r.Get("/partitions", c.Partitions)
	})
}
