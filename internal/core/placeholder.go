package core

import (
	"fmt"
	"time"
)

// Texts for synthesized records. The service keeps serving something useful
// when the relational store is unreachable or the id is a demo placeholder.
const (
	DemoTicketTitle       = "Hello world"
	DemoTicketDescription = "Ceci est un ticket de démonstration créé pour tester l'application."
	TempTicketTitle       = "Ticket temporaire"
	TempTicketDescription = "Ce ticket est temporaire et n'a pas encore été enregistré dans la base de données."
	DegradedDescription   = "Impossible de récupérer les détails du ticket pour le moment."
	WelcomeMessageContent = "Bienvenue ! Comment puis-je vous aider avec ce ticket ?"
)

// SupportUser is the synthetic author of welcome messages.
var SupportUser = User{
	ID:        "admin-user",
	FirstName: "Support",
	LastName:  "Technique",
	Email:     "support@appshade.com",
	Role:      RoleAdmin,
}

// PlaceholderTicket builds the default ticket returned when an ephemeral id
// has no record in the fallback store. Title and description vary by kind.
func PlaceholderTicket(ref Ref, userID string, now time.Time) *Ticket {
	title := TempTicketTitle
	description := TempTicketDescription
	if ref.Kind == RefDemo {
		title = DemoTicketTitle
		description = DemoTicketDescription
	}
	return &Ticket{
		ID:          ref.ID,
		Title:       title,
		Description: description,
		Status:      StatusOpen,
		Priority:    PriorityMedium,
		CreatedAt:   now,
		UpdatedAt:   now,
		UserID:      userID,
		Messages:    []Message{},
	}
}

// DegradedTicket builds the ticket served when the relational store fails
// during a read. Callers flag the response so the masking stays observable.
func DegradedTicket(id, userID string, now time.Time) *Ticket {
	return &Ticket{
		ID:          id,
		Title:       TempTicketTitle,
		Description: DegradedDescription,
		Status:      StatusOpen,
		Priority:    PriorityMedium,
		CreatedAt:   now,
		UpdatedAt:   now,
		UserID:      userID,
		Messages:    []Message{},
	}
}

// WelcomeMessage builds the single synthesized message returned for an
// ephemeral ticket that has no thread yet.
func WelcomeMessage(ticketID string, now time.Time) Message {
	created := now.Add(-time.Hour)
	support := SupportUser
	return Message{
		ID:        fmt.Sprintf("demo-message-%d-1", now.UnixMilli()),
		Content:   WelcomeMessageContent,
		CreatedAt: created,
		UpdatedAt: created,
		UserID:    SupportUser.ID,
		TicketID:  ticketID,
		User:      &support,
	}
}
