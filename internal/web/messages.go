package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Agalaxie/shadesupport/internal/auth"
	"github.com/Agalaxie/shadesupport/internal/core"
	"github.com/Agalaxie/shadesupport/internal/store"
)

// headerDemoMessage flags a synthesized, non-persisted message response
const headerDemoMessage = "X-Demo-Message"

// GET /api/tickets/:id/messages
func (s *Server) handleListMessages(c *gin.Context) {
	id, ok := s.identify(c)
	if !ok {
		return
	}

	ref := core.ParseRef(c.Param("id"))
	if ref.Ephemeral() {
		if ticket, found := s.fb.FindTicket(ref.ID); found && len(ticket.Messages) > 0 {
			c.JSON(http.StatusOK, ticket.Messages)
			return
		}
		c.JSON(http.StatusOK, []core.Message{core.WelcomeMessage(ref.ID, s.now())})
		return
	}

	ticket, err := s.ds.GetTicket(c.Request.Context(), ref.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errTicketNotFound})
			return
		}
		s.degradedMessages(c, ref.ID, err)
		return
	}

	admin, err := s.isAdmin(c, id.UserID)
	if err != nil {
		s.degradedMessages(c, ref.ID, err)
		return
	}
	if ticket.UserID != id.UserID && !admin {
		c.JSON(http.StatusForbidden, gin.H{"error": errTicketForbidden})
		return
	}

	messages, err := s.ds.ListMessages(c.Request.Context(), ref.ID, admin)
	if err != nil {
		s.degradedMessages(c, ref.ID, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

// degradedMessages mirrors degradedTicket for the thread endpoint
func (s *Server) degradedMessages(c *gin.Context, ticketID string, err error) {
	s.log.Error().Err(err).Str("ticket", ticketID).Msg("datastore failure, serving degraded thread")
	s.metrics.DegradedResponses.Inc()
	c.Header(headerDegraded, "true")
	c.JSON(http.StatusOK, []core.Message{core.WelcomeMessage(ticketID, s.now())})
}

type createMessageRequest struct {
	Content    string `json:"content"`
	IsInternal bool   `json:"isInternal"`
}

// POST /api/tickets/:id/messages
func (s *Server) handleCreateMessage(c *gin.Context) {
	id, ok := s.identify(c)
	if !ok {
		return
	}

	var req createMessageRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errContentRequired})
		return
	}
	if req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errContentRequired})
		return
	}

	ref := core.ParseRef(c.Param("id"))
	if ref.Ephemeral() {
		s.createFallbackMessage(c, ref, id, req)
		return
	}

	ticket, err := s.ds.GetTicket(c.Request.Context(), ref.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errTicketNotFound})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": errServer})
		return
	}

	if !s.authorizeOwnerOrAdmin(c, ticket.UserID, id.UserID) {
		return
	}

	now := s.now()
	message := &core.Message{
		ID:         uuid.New().String(),
		Content:    req.Content,
		TicketID:   ref.ID,
		UserID:     id.UserID,
		IsInternal: req.IsInternal,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.ds.CreateMessage(c.Request.Context(), message); err != nil {
		s.log.Error().Err(err).Str("ticket", ref.ID).Msg("message creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errServer})
		return
	}

	// New client activity reopens a closed ticket.
	if ticket.Status == core.StatusClosed {
		if _, err := s.ds.UpdateTicketStatus(c.Request.Context(), ref.ID, core.StatusOpen); err != nil {
			s.log.Error().Err(err).Str("ticket", ref.ID).Msg("ticket reopen failed")
		}
	}

	c.JSON(http.StatusCreated, message)
}

// createFallbackMessage appends to the flat-file store when the ticket
// exists there; otherwise it answers with a synthesized, non-persisted
// message flagged via a response header.
func (s *Server) createFallbackMessage(c *gin.Context, ref core.Ref, id *auth.Identity, req createMessageRequest) {
	now := s.now()
	message := core.Message{
		ID:         fmt.Sprintf("msg-%d-%s", now.UnixMilli(), uuid.New().String()[:13]),
		Content:    req.Content,
		CreatedAt:  now,
		UpdatedAt:  now,
		UserID:     id.UserID,
		TicketID:   ref.ID,
		IsInternal: req.IsInternal,
		User:       fallbackAuthor(id.UserID),
	}

	found, err := s.fb.AppendMessage(ref.ID, message)
	if err != nil {
		s.log.Error().Err(err).Str("ticket", ref.ID).Msg("fallback store write failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errServer})
		return
	}
	if found {
		c.JSON(http.StatusCreated, message)
		return
	}

	demo := core.Message{
		ID:         fmt.Sprintf("demo-message-%d", now.UnixMilli()),
		Content:    req.Content,
		CreatedAt:  now,
		UpdatedAt:  now,
		UserID:     id.UserID,
		TicketID:   ref.ID,
		IsInternal: req.IsInternal,
		User:       fallbackAuthor(id.UserID),
	}
	c.Header(headerDemoMessage, "true")
	c.JSON(http.StatusCreated, demo)
}

// fallbackAuthor synthesizes the author profile for fallback messages
func fallbackAuthor(userID string) *core.User {
	if userID == auth.DemoUserID {
		return &core.User{
			ID:        userID,
			FirstName: "Utilisateur",
			LastName:  "Démo",
			Email:     "demo@example.com",
			Role:      core.RoleClient,
		}
	}
	return &core.User{
		ID:        userID,
		FirstName: "Client",
		LastName:  "Temporaire",
		Email:     "client@temporaire.com",
		Role:      core.RoleClient,
	}
}
