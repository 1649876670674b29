package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/alcaldia-digital/memoria/internal/profile"
	"github.com/alcaldia-digital/memoria/store"
)

// APIV1Service exposes the conversational memory API consumed by the chat
// orchestration layer of the elderly-care platform.
type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store) *APIV1Service {
	return &APIV1Service{
		Profile: profile,
		Store:   store,
	}
}

// RegisterRoutes mounts the memory API under /api/v1.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")

	g.POST("/users/:userID/memories", s.UpsertMemories)
	g.GET("/users/:userID/memories", s.GetTopMemories)
	g.GET("/users/:userID/summary", s.GetConversationSummary)
	g.PUT("/users/:userID/summary", s.SaveConversationSummary)
	// Right-to-erasure: removes memories and summary atomically.
	g.DELETE("/users/:userID/memory", s.PurgeUser)
}
