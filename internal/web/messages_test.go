package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Agalaxie/shadesupport/internal/core"
)

func decodeMessages(t *testing.T, body []byte) []core.Message {
	t.Helper()
	var messages []core.Message
	if err := json.Unmarshal(body, &messages); err != nil {
		t.Fatalf("failed to decode messages: %v", err)
	}
	return messages
}

func TestListMessagesDemoWelcome(t *testing.T) {
	s := newTestServer(t, serverConfig{})
	w := doRequest(s, http.MethodGet, "/api/tickets/demo-123/messages", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	messages := decodeMessages(t, w.Body.Bytes())
	if len(messages) != 1 {
		t.Fatalf("expected one welcome message, got %d", len(messages))
	}
	msg := messages[0]
	if msg.Content != core.WelcomeMessageContent {
		t.Errorf("expected welcome content, got %q", msg.Content)
	}
	if msg.UserID != core.SupportUser.ID {
		t.Errorf("expected support author, got %q", msg.UserID)
	}
	if msg.User == nil || msg.User.FirstName != "Support" {
		t.Error("expected embedded support profile")
	}
}

func TestListMessagesFromFallbackStore(t *testing.T) {
	s := newTestServer(t, serverConfig{})

	ticket := &core.Ticket{
		ID:        "temp-5",
		Title:     "Question",
		Status:    core.StatusOpen,
		UserID:    "user-1",
		CreatedAt: time.Now(),
		Messages: []core.Message{
			{ID: "m1", Content: "Premier message", TicketID: "temp-5", UserID: "user-1"},
		},
	}
	if err := s.fb.SaveTicket("user-1", ticket); err != nil {
		t.Fatalf("failed to seed fallback store: %v", err)
	}

	w := doRequest(s, http.MethodGet, "/api/tickets/temp-5/messages", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	messages := decodeMessages(t, w.Body.Bytes())
	if len(messages) != 1 || messages[0].Content != "Premier message" {
		t.Errorf("expected the stored thread, got %v", messages)
	}
}

func TestListMessagesDegradedOnStoreFailure(t *testing.T) {
	ds := &mockDatastore{
		getTicket: func(id string) (*core.Ticket, error) {
			return nil, errors.New("disk I/O error")
		},
	}
	s := newTestServer(t, serverConfig{ds: ds})
	w := doRequest(s, http.MethodGet, "/api/tickets/abc-123/messages", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 masking the failure, got %d", w.Code)
	}
	if w.Header().Get(headerDegraded) != "true" {
		t.Error("degraded response must carry the flag header")
	}
	messages := decodeMessages(t, w.Body.Bytes())
	if len(messages) != 1 || messages[0].Content != core.WelcomeMessageContent {
		t.Errorf("expected the synthesized welcome thread, got %v", messages)
	}
}

func TestListMessagesForbidden(t *testing.T) {
	ds := &mockDatastore{
		getTicket: func(id string) (*core.Ticket, error) {
			return &core.Ticket{ID: id, UserID: "someone-else"}, nil
		},
	}
	s := newTestServer(t, serverConfig{ds: ds})
	w := doRequest(s, http.MethodGet, "/api/tickets/abc-123/messages", "")

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if !jsonHasError(w.Body.String(), errTicketForbidden) {
		t.Errorf("expected error %q, got %s", errTicketForbidden, w.Body.String())
	}
}

func TestListMessagesInternalVisibility(t *testing.T) {
	tests := []struct {
		name         string
		role         string
		wantInternal bool
	}{
		{name: "client excludes internal notes", role: core.RoleClient, wantInternal: false},
		{name: "admin includes internal notes", role: core.RoleAdmin, wantInternal: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotInternal bool
			ds := &mockDatastore{
				userRole: func(id string) (string, error) { return tt.role, nil },
				getTicket: func(id string) (*core.Ticket, error) {
					return &core.Ticket{ID: id, UserID: "user-1"}, nil
				},
				listMessages: func(ticketID string, includeInternal bool) ([]core.Message, error) {
					gotInternal = includeInternal
					return []core.Message{}, nil
				},
			}
			s := newTestServer(t, serverConfig{ds: ds})
			w := doRequest(s, http.MethodGet, "/api/tickets/abc-123/messages", "")

			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			if gotInternal != tt.wantInternal {
				t.Errorf("expected includeInternal=%v, got %v", tt.wantInternal, gotInternal)
			}
		})
	}
}

func TestCreateMessageValidation(t *testing.T) {
	s := newTestServer(t, serverConfig{})
	w := doRequest(s, http.MethodPost, "/api/tickets/abc-123/messages", `{"content":""}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !jsonHasError(w.Body.String(), errContentRequired) {
		t.Errorf("expected error %q, got %s", errContentRequired, w.Body.String())
	}
}

func TestCreateMessagePersistent(t *testing.T) {
	var created *core.Message
	ds := &mockDatastore{
		getTicket: func(id string) (*core.Ticket, error) {
			return &core.Ticket{ID: id, UserID: "user-1", Status: core.StatusOpen}, nil
		},
		createMessage: func(m *core.Message) error {
			created = m
			return nil
		},
	}
	s := newTestServer(t, serverConfig{ds: ds})
	w := doRequest(s, http.MethodPost, "/api/tickets/abc-123/messages", `{"content":"Merci pour votre aide"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if created == nil {
		t.Fatal("expected the message to reach the store")
	}
	if created.Content != "Merci pour votre aide" {
		t.Errorf("unexpected content %q", created.Content)
	}
	if created.TicketID != "abc-123" || created.UserID != "user-1" {
		t.Errorf("unexpected attribution: %+v", created)
	}
}

func TestCreateMessageReopensClosedTicket(t *testing.T) {
	var reopenedTo string
	ds := &mockDatastore{
		getTicket: func(id string) (*core.Ticket, error) {
			return &core.Ticket{ID: id, UserID: "user-1", Status: core.StatusClosed}, nil
		},
		updateTicketStatus: func(id, status string) (*core.Ticket, error) {
			reopenedTo = status
			return &core.Ticket{ID: id, Status: status}, nil
		},
	}
	s := newTestServer(t, serverConfig{ds: ds})
	w := doRequest(s, http.MethodPost, "/api/tickets/abc-123/messages", `{"content":"Toujours en panne"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if reopenedTo != core.StatusOpen {
		t.Errorf("new activity should reopen the ticket, got status %q", reopenedTo)
	}
}

func TestCreateMessageFallbackPersisted(t *testing.T) {
	s := newTestServer(t, serverConfig{})

	ticket := &core.Ticket{ID: "temp-8", Title: "Question", UserID: "user-1", CreatedAt: time.Now(), Messages: []core.Message{}}
	if err := s.fb.SaveTicket("user-1", ticket); err != nil {
		t.Fatalf("failed to seed fallback store: %v", err)
	}

	w := doRequest(s, http.MethodPost, "/api/tickets/temp-8/messages", `{"content":"Du nouveau ?"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if w.Header().Get(headerDemoMessage) != "" {
		t.Error("a persisted fallback message must not be flagged as demo")
	}

	// Round trip: the message must come back from the thread endpoint.
	w = doRequest(s, http.MethodGet, "/api/tickets/temp-8/messages", "")
	messages := decodeMessages(t, w.Body.Bytes())
	if len(messages) != 1 || messages[0].Content != "Du nouveau ?" {
		t.Errorf("expected the appended message, got %v", messages)
	}
}

func TestCreateMessageFallbackUnknownTicket(t *testing.T) {
	s := newTestServer(t, serverConfig{})
	w := doRequest(s, http.MethodPost, "/api/tickets/temp-404/messages", `{"content":"Bonjour"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if w.Header().Get(headerDemoMessage) != "true" {
		t.Error("a non-persisted message must carry the demo flag header")
	}
	var msg core.Message
	if err := json.Unmarshal(w.Body.Bytes(), &msg); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	if msg.Content != "Bonjour" {
		t.Errorf("unexpected content %q", msg.Content)
	}
	if msg.User == nil || msg.User.LastName != "Temporaire" {
		t.Errorf("expected the synthesized author, got %+v", msg.User)
	}
}
