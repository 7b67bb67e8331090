package web

import (
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Agalaxie/shadesupport/internal/core"
	"github.com/Agalaxie/shadesupport/internal/store"
)

// GET /api/tickets/:id/attachments
func (s *Server) handleListAttachments(c *gin.Context) {
	_, ok := s.identify(c)
	if !ok {
		return
	}

	attachments, err := s.ds.ListAttachments(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.log.Error().Err(err).Msg("attachment list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errServer})
		return
	}

	c.JSON(http.StatusOK, gin.H{"attachments": attachments})
}

type createAttachmentRequest struct {
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
	FileData string `json:"fileData"` // data URL or raw base64
}

// POST /api/tickets/:id/attachments
func (s *Server) handleCreateAttachment(c *gin.Context) {
	id, ok := s.identify(c)
	if !ok {
		return
	}

	var req createAttachmentRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidData})
		return
	}
	if req.FileName == "" || req.FileType == "" || req.FileData == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidData})
		return
	}

	ticketID := c.Param("id")
	ticket, err := s.ds.GetTicket(c.Request.Context(), ticketID)
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

	// Strip a data-URL prefix if present.
	raw := req.FileData
	if i := strings.Index(raw, ";base64,"); i >= 0 {
		raw = raw[i+len(";base64,"):]
	}
	content, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidData})
		return
	}

	ext := filepath.Ext(req.FileName)
	uniqueName := uuid.New().String() + ext
	fileURL := "/uploads/" + uniqueName

	if err := os.MkdirAll(s.uploadsDir, 0755); err != nil {
		s.log.Error().Err(err).Msg("uploads directory creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errServer})
		return
	}
	if err := os.WriteFile(filepath.Join(s.uploadsDir, uniqueName), content, 0644); err != nil {
		s.log.Error().Err(err).Msg("attachment write failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errServer})
		return
	}

	attachment := &core.Attachment{
		ID:        uuid.New().String(),
		FileName:  req.FileName,
		FileType:  req.FileType,
		FileSize:  req.FileSize,
		FilePath:  fileURL,
		TicketID:  ticketID,
		UserID:    id.UserID,
		CreatedAt: s.now(),
	}

	if err := s.ds.CreateAttachment(c.Request.Context(), attachment); err != nil {
		s.log.Error().Err(err).Msg("attachment row creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errServer})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attachment": attachment,
		"fileUrl":    fileURL,
	})
}

type deleteAttachmentRequest struct {
	AttachmentID string `json:"attachmentId"`
}

// DELETE /api/tickets/:id/attachments
func (s *Server) handleDeleteAttachment(c *gin.Context) {
	id, ok := s.identify(c)
	if !ok {
		return
	}

	var req deleteAttachmentRequest
	if err := c.BindJSON(&req); err != nil || req.AttachmentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errAttachmentID})
		return
	}

	attachment, err := s.ds.GetAttachment(c.Request.Context(), req.AttachmentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errAttachmentAbsent})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": errServer})
		return
	}

	// Uploader or ticket owner may delete; otherwise the caller must be
	// an admin.
	if attachment.UserID != id.UserID {
		ticket, err := s.ds.GetTicket(c.Request.Context(), attachment.TicketID)
		if err != nil || ticket.UserID != id.UserID {
			if !s.authorizeOwnerOrAdmin(c, attachment.UserID, id.UserID) {
				return
			}
		}
	}

	// Remove the file; a missing file is not an error.
	name := strings.TrimPrefix(attachment.FilePath, "/uploads/")
	if err := os.Remove(filepath.Join(s.uploadsDir, name)); err != nil && !os.IsNotExist(err) {
		s.log.Error().Err(err).Msg("attachment file removal failed")
	}

	if err := s.ds.DeleteAttachment(c.Request.Context(), req.AttachmentID); err != nil {
		s.log.Error().Err(err).Msg("attachment deletion failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errServer})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
