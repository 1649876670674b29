package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/alcaldia-digital/memoria/server/metrics"
	"github.com/alcaldia-digital/memoria/store"
)

type memoryCandidatePayload struct {
	Type       string     `json:"type"`
	Content    string     `json:"content"`
	Importance *int32     `json:"importance,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// toCandidate is nil-safe: a JSON null batch element decodes to a nil
// payload and must flow through per-item validation like any other
// malformed candidate, not crash the handler.
func (p *memoryCandidatePayload) toCandidate() *store.MemoryCandidate {
	if p == nil {
		return nil
	}
	candidate := &store.MemoryCandidate{
		Type:       p.Type,
		Content:    p.Content,
		Importance: p.Importance,
	}
	if p.ExpiresAt != nil {
		expiresTs := p.ExpiresAt.Unix()
		candidate.ExpiresTs = &expiresTs
	}
	return candidate
}

type upsertMemoriesRequest struct {
	Memories []*memoryCandidatePayload `json:"memories"`
}

type rejectedCandidatePayload struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

type upsertMemoriesResponse struct {
	Upserted int                         `json:"upserted"`
	Rejected []*rejectedCandidatePayload `json:"rejected,omitempty"`
}

// UpsertMemories writes a batch of extracted facts for a user. Malformed
// items are reported per-item in the response; they never fail the batch.
func (s *APIV1Service) UpsertMemories(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Param("userID")

	request := &upsertMemoriesRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}

	candidates := make([]*store.MemoryCandidate, 0, len(request.Memories))
	for _, payload := range request.Memories {
		candidates = append(candidates, payload.toCandidate())
	}

	result, err := s.Store.UpsertMemories(ctx, userID, candidates)
	if err != nil {
		return toHTTPError(err, "failed to upsert memories")
	}

	metrics.CandidatesUpserted.Add(float64(result.Upserted))
	metrics.CandidatesRejected.Add(float64(len(result.Rejected)))

	response := &upsertMemoriesResponse{Upserted: result.Upserted}
	for _, rejected := range result.Rejected {
		response.Rejected = append(response.Rejected, &rejectedCandidatePayload{
			Index:  rejected.Index,
			Reason: rejected.Reason,
		})
	}
	return c.JSON(http.StatusOK, response)
}

type topMemoriesResponse struct {
	Memories []*store.MemoryFact `json:"memories"`
}

// GetTopMemories returns the highest-ranked live facts for a user. A
// storage failure is an error status, never an empty 200: the caller must
// be able to tell "no memories" apart from "ranking failed" when it decides
// to degrade the assistant context.
func (s *APIV1Service) GetTopMemories(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Param("userID")

	limit := store.DefaultTopMemories
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	start := time.Now()
	facts, err := s.Store.GetTopMemories(ctx, userID, limit)
	if err != nil {
		return toHTTPError(err, "failed to rank memories")
	}
	metrics.TopMemoryQueries.Inc()
	metrics.RankingDuration.Observe(time.Since(start).Seconds())

	if facts == nil {
		facts = []*store.MemoryFact{}
	}
	return c.JSON(http.StatusOK, &topMemoriesResponse{Memories: facts})
}

type conversationSummaryPayload struct {
	Summary   string    `json:"summary"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GetConversationSummary returns the rolling summary for a user, 404 when
// none exists yet.
func (s *APIV1Service) GetConversationSummary(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Param("userID")

	summary, err := s.Store.GetConversationSummary(ctx, userID)
	if err != nil {
		return toHTTPError(err, "failed to get conversation summary")
	}
	if summary == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no conversation summary")
	}
	return c.JSON(http.StatusOK, &conversationSummaryPayload{
		Summary:   summary.SummaryText,
		UpdatedAt: time.Unix(summary.UpdatedTs, 0),
	})
}

type saveSummaryRequest struct {
	Summary string `json:"summary"`
}

// SaveConversationSummary overwrites the rolling summary for a user.
func (s *APIV1Service) SaveConversationSummary(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Param("userID")

	request := &saveSummaryRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}

	summary, err := s.Store.UpsertConversationSummary(ctx, &store.UpsertConversationSummary{
		UserID:      userID,
		SummaryText: request.Summary,
	})
	if err != nil {
		return toHTTPError(err, "failed to save conversation summary")
	}
	return c.JSON(http.StatusOK, &conversationSummaryPayload{
		Summary:   summary.SummaryText,
		UpdatedAt: time.Unix(summary.UpdatedTs, 0),
	})
}

// PurgeUser removes all memories and the conversation summary for a user.
// Backs consent withdrawal, so it must never partially succeed.
func (s *APIV1Service) PurgeUser(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Param("userID")

	if err := s.Store.PurgeUser(ctx, userID); err != nil {
		return toHTTPError(err, "failed to purge user memory")
	}
	metrics.UserPurges.Inc()
	return c.NoContent(http.StatusNoContent)
}

// toHTTPError maps store errors onto HTTP statuses: validation to 400,
// unreachable storage to 503, anything else to 500.
func toHTTPError(err error, message string) error {
	var validationErr *store.ValidationError
	if errors.As(err, &validationErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validationErr.Error())
	}
	if errors.Is(err, store.ErrStorageUnavailable) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, message).SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, message).SetInternal(err)
}
