package core

import (
	"time"
)

// Ticket status constants
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusClosed     = "closed"
)

// Ticket priority constants
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// User role constants
const (
	RoleAdmin  = "admin"
	RoleClient = "client"
)

// Ticket category constants
const (
	CategoryTechnical = "technical"
	CategoryBilling   = "billing"
	CategoryAccount   = "account"
	CategoryFeature   = "feature"
	CategoryOther     = "other"
)

// User represents a client or admin account synced from the identity provider
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"firstName,omitempty"`
	LastName    string    `json:"lastName,omitempty"`
	Role        string    `json:"role"` // admin, client
	Company     string    `json:"company,omitempty"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	Address     string    `json:"address,omitempty"`
	City        string    `json:"city,omitempty"`
	PostalCode  string    `json:"postalCode,omitempty"`
	Country     string    `json:"country,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Ticket represents a support ticket with its optional nested relations
type Ticket struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`   // open, in_progress, closed
	Priority    string `json:"priority"` // low, medium, high, urgent
	Category    string `json:"category"`
	UserID      string `json:"userId"`

	// Optional access credentials supplied by the client
	FTPHost     string `json:"ftpHost,omitempty"`
	FTPPort     string `json:"ftpPort,omitempty"`
	FTPUsername string `json:"ftpUsername,omitempty"`
	FTPPassword string `json:"ftpPassword,omitempty"`

	CMSType     string `json:"cmsType,omitempty"`
	CMSURL      string `json:"cmsUrl,omitempty"`
	CMSUsername string `json:"cmsUsername,omitempty"`
	CMSPassword string `json:"cmsPassword,omitempty"`

	HostingProvider string `json:"hostingProvider,omitempty"`
	HostingPlan     string `json:"hostingPlan,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	User     *User     `json:"user,omitempty"`
	Messages []Message `json:"messages"`
}

// Message represents one entry in a ticket's thread
type Message struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	TicketID   string    `json:"ticketId"`
	UserID     string    `json:"userId"`
	IsInternal bool      `json:"isInternal"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	User       *User     `json:"user,omitempty"`
}

// Reaction represents an emoji reaction on a thread message. UserName is a
// display string derived from the author's profile, not a stored column.
type Reaction struct {
	ID        string    `json:"id"`
	Emoji     string    `json:"emoji"`
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Attachment represents a file attached to a ticket
type Attachment struct {
	ID        string    `json:"id"`
	FileName  string    `json:"fileName"`
	FileType  string    `json:"fileType"`
	FileSize  int64     `json:"fileSize"`
	FilePath  string    `json:"filePath"` // public URL path, e.g. /uploads/<uuid>.png
	TicketID  string    `json:"ticketId"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Payment represents a recorded payment processor callback
type Payment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	OrderID   string    `json:"orderId"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	PlanID    string    `json:"planId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
