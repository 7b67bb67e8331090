package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Agalaxie/shadesupport/internal/core"
	"github.com/Agalaxie/shadesupport/internal/store"
)

// headerCacheHit reports whether sync-user answered from the user cache
const headerCacheHit = "X-Cache-Hit"

const errUserNotFound = "Utilisateur non trouvé"

// GET /api/user/profile
func (s *Server) handleGetProfile(c *gin.Context) {
	id, ok := s.identify(c)
	if !ok {
		return
	}

	user, err := s.ds.GetUser(c.Request.Context(), id.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errUserNotFound})
			return
		}
		s.log.Error().Err(err).Str("user", id.UserID).Msg("profile lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errServer})
		return
	}

	c.JSON(http.StatusOK, user)
}

type updateProfileRequest struct {
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	Company     *string `json:"company"`
	PhoneNumber *string `json:"phoneNumber"`
	Address     *string `json:"address"`
	City        *string `json:"city"`
	PostalCode  *string `json:"postalCode"`
	Country     *string `json:"country"`
}

// PUT /api/user/profile
//
// Only fields present in the body are changed. Role is never writable here;
// it belongs to sync.
func (s *Server) handleUpdateProfile(c *gin.Context) {
	id, ok := s.identify(c)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidData})
		return
	}

	user, err := s.ds.GetUser(c.Request.Context(), id.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errUserNotFound})
			return
		}
		s.log.Error().Err(err).Str("user", id.UserID).Msg("profile lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errServer})
		return
	}

	applyString(&user.FirstName, req.FirstName)
	applyString(&user.LastName, req.LastName)
	applyString(&user.Company, req.Company)
	applyString(&user.PhoneNumber, req.PhoneNumber)
	applyString(&user.Address, req.Address)
	applyString(&user.City, req.City)
	applyString(&user.PostalCode, req.PostalCode)
	applyString(&user.Country, req.Country)

	if err := s.ds.UpdateUserProfile(c.Request.Context(), user); err != nil {
		s.log.Error().Err(err).Str("user", id.UserID).Msg("profile update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errServer})
		return
	}

	c.JSON(http.StatusOK, user)
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// POST /api/sync-user
func (s *Server) handleSyncUser(c *gin.Context) {
	id, ok := s.identify(c)
	if !ok {
		return
	}

	user, cacheHit, err := s.syncer.Sync(c.Request.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Str("user", id.UserID).Msg("user sync failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errServer})
		return
	}

	if cacheHit {
		c.Header(headerCacheHit, "true")
	} else {
		c.Header(headerCacheHit, "false")
	}
	c.JSON(http.StatusOK, user)
}

type recordPaymentRequest struct {
	OrderID  string  `json:"orderId"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Status   string  `json:"status"`
	PlanID   string  `json:"planId"`
}

// POST /api/payments/record
func (s *Server) handleRecordPayment(c *gin.Context) {
	id, ok := s.identify(c)
	if !ok {
		return
	}

	var req recordPaymentRequest
	if err := c.BindJSON(&req); err != nil || req.OrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidData})
		return
	}

	payment := &core.Payment{
		ID:        uuid.New().String(),
		UserID:    id.UserID,
		OrderID:   req.OrderID,
		Amount:    req.Amount,
		Currency:  defaultString(req.Currency, "EUR"),
		Status:    defaultString(req.Status, "completed"),
		PlanID:    req.PlanID,
		CreatedAt: s.now(),
	}

	if err := s.ds.CreatePayment(c.Request.Context(), payment); err != nil {
		s.log.Error().Err(err).Msg("payment record failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errServer})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "payment": payment})
}
