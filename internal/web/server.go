package web

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Agalaxie/shadesupport/internal/auth"
	"github.com/Agalaxie/shadesupport/internal/core"
	"github.com/Agalaxie/shadesupport/internal/fallback"
	"github.com/Agalaxie/shadesupport/internal/metrics"
)

// Datastore is the slice of the relational store the handlers use
type Datastore interface {
	UserRole(ctx context.Context, id string) (string, error)
	GetUser(ctx context.Context, id string) (*core.User, error)
	UpdateUserProfile(ctx context.Context, u *core.User) error

	ListTickets(ctx context.Context, userID string, admin bool) ([]core.Ticket, error)
	GetTicket(ctx context.Context, id string) (*core.Ticket, error)
	GetTicketWithRelations(ctx context.Context, id string, includeInternal bool) (*core.Ticket, error)
	CreateTicket(ctx context.Context, t *core.Ticket) error
	UpdateTicketStatus(ctx context.Context, id, status string) (*core.Ticket, error)
	DeleteTicket(ctx context.Context, id string) error

	ListMessages(ctx context.Context, ticketID string, includeInternal bool) ([]core.Message, error)
	CreateMessage(ctx context.Context, m *core.Message) error
	GetMessage(ctx context.Context, id string) (*core.Message, error)

	FindReaction(ctx context.Context, messageID, userID, emoji string) (*core.Reaction, error)
	GetReaction(ctx context.Context, id string) (*core.Reaction, error)
	CreateReaction(ctx context.Context, r *core.Reaction) error
	DeleteReaction(ctx context.Context, id string) error

	ListAttachments(ctx context.Context, ticketID string) ([]core.Attachment, error)
	GetAttachment(ctx context.Context, id string) (*core.Attachment, error)
	CreateAttachment(ctx context.Context, a *core.Attachment) error
	DeleteAttachment(ctx context.Context, id string) error

	CreatePayment(ctx context.Context, p *core.Payment) error
}

// Server is the shadesupport web server
type Server struct {
	ds       Datastore
	fb       *fallback.Store
	provider auth.Provider
	syncer   *auth.Syncer
	router   *gin.Engine
	log      zerolog.Logger
	metrics  *metrics.Metrics

	devMode    bool
	uploadsDir string
	now        func() time.Time
}

// ServerOptions collects the server's collaborators
type ServerOptions struct {
	Datastore  Datastore
	Fallback   *fallback.Store
	Provider   auth.Provider
	Syncer     *auth.Syncer
	Log        zerolog.Logger
	Metrics    *metrics.Metrics
	Registry   *prometheus.Registry // nil disables the /metrics endpoint
	DevMode    bool
	UploadsDir string
}

// NewServer creates a new web server
func NewServer(opts ServerOptions) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		ds:         opts.Datastore,
		fb:         opts.Fallback,
		provider:   opts.Provider,
		syncer:     opts.Syncer,
		router:     router,
		log:        opts.Log,
		metrics:    opts.Metrics,
		devMode:    opts.DevMode,
		uploadsDir: opts.UploadsDir,
		now:        time.Now,
	}

	router.Use(s.measure)

	router.GET("/healthz", s.handleHealth)
	if opts.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))
	}
	router.Static("/uploads", s.uploadsDir)

	api := router.Group("/api")
	{
		api.GET("/tickets", s.handleListTickets)
		api.POST("/tickets", s.handleCreateTicket)
		api.GET("/tickets/:id", s.handleGetTicket)
		api.PATCH("/tickets/:id", s.handleUpdateTicket)
		api.DELETE("/tickets/:id", s.handleDeleteTicket)

		api.GET("/tickets/:id/messages", s.handleListMessages)
		api.POST("/tickets/:id/messages", s.handleCreateMessage)

		api.GET("/tickets/:id/attachments", s.handleListAttachments)
		api.POST("/tickets/:id/attachments", s.handleCreateAttachment)
		api.DELETE("/tickets/:id/attachments", s.handleDeleteAttachment)

		api.POST("/messages/reactions", s.handleToggleReaction)
		api.DELETE("/messages/reactions/:id", s.handleDeleteReaction)

		api.GET("/user/profile", s.handleGetProfile)
		api.PUT("/user/profile", s.handleUpdateProfile)

		api.POST("/sync-user", s.handleSyncUser)
		api.POST("/payments/record", s.handleRecordPayment)
	}

	return s
}

// Run starts the web server
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Router exposes the underlying handler for tests and custom listeners
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

// measure records request latency per route
func (s *Server) measure(c *gin.Context) {
	start := time.Now()
	c.Next()
	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	s.metrics.RequestDuration.WithLabelValues(
		c.Request.Method, path, statusLabel(c.Writer.Status()),
	).Observe(time.Since(start).Seconds())
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
