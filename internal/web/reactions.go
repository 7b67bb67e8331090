package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Agalaxie/shadesupport/internal/core"
	"github.com/Agalaxie/shadesupport/internal/store"
)

const (
	errReactionRequired  = "messageId et emoji sont requis"
	errMessageNotFound   = "Message non trouvé"
	errReactionNotFound  = "Réaction non trouvée"
	errReactionForbidden = "Non autorisé à supprimer cette réaction"
)

type toggleReactionRequest struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// POST /api/messages/reactions
//
// Toggle semantics: reposting the same emoji on the same message removes the
// existing reaction instead of duplicating it.
func (s *Server) handleToggleReaction(c *gin.Context) {
	id, ok := s.identify(c)
	if !ok {
		return
	}

	var req toggleReactionRequest
	if err := c.BindJSON(&req); err != nil || req.MessageID == "" || req.Emoji == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errReactionRequired})
		return
	}

	if _, err := s.ds.GetMessage(c.Request.Context(), req.MessageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errMessageNotFound})
			return
		}
		s.log.Error().Err(err).Str("message", req.MessageID).Msg("message lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errServer})
		return
	}

	existing, err := s.ds.FindReaction(c.Request.Context(), req.MessageID, id.UserID, req.Emoji)
	switch {
	case err == nil:
		if err := s.ds.DeleteReaction(c.Request.Context(), existing.ID); err != nil {
			s.log.Error().Err(err).Str("reaction", existing.ID).Msg("reaction removal failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": errServer})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Réaction supprimée", "id": existing.ID})
		return
	case !errors.Is(err, store.ErrNotFound):
		s.log.Error().Err(err).Str("message", req.MessageID).Msg("reaction lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errServer})
		return
	}

	reaction := &core.Reaction{
		ID:        uuid.New().String(),
		Emoji:     req.Emoji,
		MessageID: req.MessageID,
		UserID:    id.UserID,
		CreatedAt: s.now(),
	}
	if err := s.ds.CreateReaction(c.Request.Context(), reaction); err != nil {
		s.log.Error().Err(err).Str("message", req.MessageID).Msg("reaction creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errServer})
		return
	}

	c.JSON(http.StatusOK, reaction)
}

// DELETE /api/messages/reactions/:id
func (s *Server) handleDeleteReaction(c *gin.Context) {
	id, ok := s.identify(c)
	if !ok {
		return
	}

	reaction, err := s.ds.GetReaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errReactionNotFound})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": errServer})
		return
	}

	// Only the reacting user may remove it.
	if reaction.UserID != id.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": errReactionForbidden})
		return
	}

	if err := s.ds.DeleteReaction(c.Request.Context(), reaction.ID); err != nil {
		s.log.Error().Err(err).Str("reaction", reaction.ID).Msg("reaction deletion failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errServer})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Réaction supprimée avec succès"})
}
