package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Agalaxie/shadesupport/internal/core"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// Store handles SQLite persistence for users, tickets, messages,
// attachments and payments
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at dbPath and migrates it
func New(dbPath string) (*Store, error) {
	// Expand ~ in path
	if strings.HasPrefix(dbPath, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}

	// Ensure directory exists
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// migrate creates the necessary tables
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			first_name TEXT,
			last_name TEXT,
			role TEXT NOT NULL DEFAULT 'client',
			company TEXT,
			phone_number TEXT,
			address TEXT,
			city TEXT,
			postal_code TEXT,
			country TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tickets (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'open',
			priority TEXT NOT NULL DEFAULT 'medium',
			category TEXT NOT NULL DEFAULT 'other',
			user_id TEXT NOT NULL,
			ftp_host TEXT,
			ftp_port TEXT,
			ftp_username TEXT,
			ftp_password TEXT,
			cms_type TEXT,
			cms_url TEXT,
			cms_username TEXT,
			cms_password TEXT,
			hosting_provider TEXT,
			hosting_plan TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			ticket_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			is_internal INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (ticket_id) REFERENCES tickets(id)
		);

		CREATE TABLE IF NOT EXISTS reactions (
			id TEXT PRIMARY KEY,
			emoji TEXT NOT NULL,
			message_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (message_id) REFERENCES messages(id)
		);

		CREATE TABLE IF NOT EXISTS attachments (
			id TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			file_type TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			file_path TEXT NOT NULL,
			ticket_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (ticket_id) REFERENCES tickets(id)
		);

		CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			order_id TEXT NOT NULL,
			amount REAL NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			plan_id TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_user ON tickets(user_id);
		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
		CREATE INDEX IF NOT EXISTS idx_messages_ticket ON messages(ticket_id);
		CREATE INDEX IF NOT EXISTS idx_reactions_message ON reactions(message_id);
		CREATE INDEX IF NOT EXISTS idx_attachments_ticket ON attachments(ticket_id);
		CREATE INDEX IF NOT EXISTS idx_payments_user ON payments(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// -----------------------------------------------------------------------------
// Users

// GetUser retrieves a user by id
func (s *Store) GetUser(ctx context.Context, id string) (*core.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, first_name, last_name, role, company, phone_number,
		       address, city, postal_code, country, created_at, updated_at
		FROM users WHERE id = ?
	`, id)

	var u core.User
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role,
		&u.Company, &u.PhoneNumber, &u.Address, &u.City, &u.PostalCode,
		&u.Country, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &u, nil
}

// UpsertUser inserts or replaces a user record
func (s *Store) UpsertUser(ctx context.Context, u *core.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO users (id, email, first_name, last_name, role,
			company, phone_number, address, city, postal_code, country,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.FirstName, u.LastName, u.Role, u.Company, u.PhoneNumber,
		u.Address, u.City, u.PostalCode, u.Country, u.CreatedAt, u.UpdatedAt)

	return err
}

// UpdateUserRole changes a user's role
func (s *Store) UpdateUserRole(ctx context.Context, id, role string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET role = ?, updated_at = ? WHERE id = ?
	`, role, time.Now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserProfile rewrites a user's profile columns and stamps updated_at.
// The role column is not touched here; roles only change through sync.
func (s *Store) UpdateUserProfile(ctx context.Context, u *core.User) error {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET first_name = ?, last_name = ?, company = ?,
			phone_number = ?, address = ?, city = ?, postal_code = ?,
			country = ?, updated_at = ?
		WHERE id = ?
	`, u.FirstName, u.LastName, u.Company, u.PhoneNumber, u.Address, u.City,
		u.PostalCode, u.Country, now, u.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	u.UpdatedAt = now
	return nil
}

// UserRole returns the role column for a user, or empty if unknown
func (s *Store) UserRole(ctx context.Context, id string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id = ?`, id)

	var role string
	if err := row.Scan(&role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return role, nil
}

// -----------------------------------------------------------------------------
// Tickets

const ticketColumns = `id, title, description, status, priority, category,
	user_id, ftp_host, ftp_port, ftp_username, ftp_password, cms_type, cms_url,
	cms_username, cms_password, hosting_provider, hosting_plan,
	created_at, updated_at`

func scanTicket(row interface{ Scan(...any) error }) (*core.Ticket, error) {
	var t core.Ticket
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.Category, &t.UserID, &t.FTPHost, &t.FTPPort, &t.FTPUsername,
		&t.FTPPassword, &t.CMSType, &t.CMSURL, &t.CMSUsername, &t.CMSPassword,
		&t.HostingProvider, &t.HostingPlan, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTicket retrieves a ticket by id without its relations
func (s *Store) GetTicket(ctx context.Context, id string) (*core.Ticket, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)

	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// GetTicketWithRelations retrieves a ticket with its owner profile and
// ordered message thread. Internal messages are dropped unless
// includeInternal is set.
func (s *Store) GetTicketWithRelations(ctx context.Context, id string, includeInternal bool) (*core.Ticket, error) {
	t, err := s.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}

	owner, err := s.GetUser(ctx, t.UserID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	t.User = owner

	messages, err := s.ListMessages(ctx, id, includeInternal)
	if err != nil {
		return nil, err
	}
	t.Messages = messages

	return t, nil
}

// ListTickets returns tickets newest-first with nested owner and thread.
// Admins see every ticket, clients only their own.
func (s *Store) ListTickets(ctx context.Context, userID string, admin bool) ([]core.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets ORDER BY created_at DESC`
	args := []any{}
	if !admin {
		query = `SELECT ` + ticketColumns + ` FROM tickets WHERE user_id = ? ORDER BY created_at DESC`
		args = append(args, userID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := []core.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tickets {
		owner, err := s.GetUser(ctx, tickets[i].UserID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		tickets[i].User = owner

		messages, err := s.ListMessages(ctx, tickets[i].ID, admin)
		if err != nil {
			return nil, err
		}
		tickets[i].Messages = messages
	}

	return tickets, nil
}

// CreateTicket inserts a new ticket row
func (s *Store) CreateTicket(ctx context.Context, t *core.Ticket) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (id, title, description, status, priority, category,
			user_id, ftp_host, ftp_port, ftp_username, ftp_password, cms_type,
			cms_url, cms_username, cms_password, hosting_provider, hosting_plan,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.Description, t.Status, t.Priority, t.Category, t.UserID,
		t.FTPHost, t.FTPPort, t.FTPUsername, t.FTPPassword, t.CMSType, t.CMSURL,
		t.CMSUsername, t.CMSPassword, t.HostingProvider, t.HostingPlan,
		t.CreatedAt, t.UpdatedAt)

	return err
}

// UpdateTicketStatus changes a ticket's status and stamps updated_at,
// returning the updated row
func (s *Store) UpdateTicketStatus(ctx context.Context, id, status string) (*core.Ticket, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET status = ?, updated_at = ? WHERE id = ?
	`, status, now, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	return s.GetTicket(ctx, id)
}

// DeleteTicket removes a ticket and its dependent messages
func (s *Store) DeleteTicket(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE ticket_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete ticket messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tickets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete ticket: %w", err)
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------
// Messages

// ListMessages returns a ticket's messages oldest-first with their authors.
// Internal messages are dropped unless includeInternal is set.
func (s *Store) ListMessages(ctx context.Context, ticketID string, includeInternal bool) ([]core.Message, error) {
	query := `
		SELECT id, content, ticket_id, user_id, is_internal, created_at, updated_at
		FROM messages WHERE ticket_id = ?`
	if !includeInternal {
		query += ` AND is_internal = 0`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []core.Message{}
	for rows.Next() {
		var m core.Message
		err := rows.Scan(&m.ID, &m.Content, &m.TicketID, &m.UserID,
			&m.IsInternal, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range messages {
		author, err := s.GetUser(ctx, messages[i].UserID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		messages[i].User = author
	}

	return messages, nil
}

// CreateMessage inserts a message row and returns it with its author
func (s *Store) CreateMessage(ctx context.Context, m *core.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, content, ticket_id, user_id, is_internal, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Content, m.TicketID, m.UserID, m.IsInternal, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return err
	}

	author, err := s.GetUser(ctx, m.UserID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	m.User = author
	return nil
}

// GetMessage retrieves a message by id
func (s *Store) GetMessage(ctx context.Context, id string) (*core.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, ticket_id, user_id, is_internal, created_at, updated_at
		FROM messages WHERE id = ?
	`, id)

	var m core.Message
	err := row.Scan(&m.ID, &m.Content, &m.TicketID, &m.UserID,
		&m.IsInternal, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &m, nil
}

// -----------------------------------------------------------------------------
// Reactions

// FindReaction looks up a user's reaction with the given emoji on a message
func (s *Store) FindReaction(ctx context.Context, messageID, userID, emoji string) (*core.Reaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, emoji, message_id, user_id, created_at
		FROM reactions WHERE message_id = ? AND user_id = ? AND emoji = ?
	`, messageID, userID, emoji)

	var r core.Reaction
	err := row.Scan(&r.ID, &r.Emoji, &r.MessageID, &r.UserID, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &r, nil
}

// GetReaction retrieves a reaction by id
func (s *Store) GetReaction(ctx context.Context, id string) (*core.Reaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, emoji, message_id, user_id, created_at
		FROM reactions WHERE id = ?
	`, id)

	var r core.Reaction
	err := row.Scan(&r.ID, &r.Emoji, &r.MessageID, &r.UserID, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &r, nil
}

// CreateReaction inserts a reaction row and fills in the author's display name
func (s *Store) CreateReaction(ctx context.Context, r *core.Reaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reactions (id, emoji, message_id, user_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.Emoji, r.MessageID, r.UserID, r.CreatedAt)
	if err != nil {
		return err
	}

	author, err := s.GetUser(ctx, r.UserID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if author != nil && author.FirstName != "" {
		r.UserName = strings.TrimSpace(author.FirstName + " " + author.LastName)
	}
	return nil
}

// DeleteReaction removes a reaction row
func (s *Store) DeleteReaction(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reactions WHERE id = ?`, id)
	return err
}

// -----------------------------------------------------------------------------
// Attachments

// ListAttachments returns a ticket's attachments newest-first
func (s *Store) ListAttachments(ctx context.Context, ticketID string) ([]core.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_name, file_type, file_size, file_path, ticket_id, user_id, created_at
		FROM attachments WHERE ticket_id = ? ORDER BY created_at DESC
	`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attachments := []core.Attachment{}
	for rows.Next() {
		var a core.Attachment
		err := rows.Scan(&a.ID, &a.FileName, &a.FileType, &a.FileSize,
			&a.FilePath, &a.TicketID, &a.UserID, &a.CreatedAt)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, a)
	}

	return attachments, rows.Err()
}

// GetAttachment retrieves an attachment by id
func (s *Store) GetAttachment(ctx context.Context, id string) (*core.Attachment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_name, file_type, file_size, file_path, ticket_id, user_id, created_at
		FROM attachments WHERE id = ?
	`, id)

	var a core.Attachment
	err := row.Scan(&a.ID, &a.FileName, &a.FileType, &a.FileSize, &a.FilePath,
		&a.TicketID, &a.UserID, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &a, nil
}

// CreateAttachment inserts an attachment row
func (s *Store) CreateAttachment(ctx context.Context, a *core.Attachment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, file_name, file_type, file_size, file_path, ticket_id, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.FileName, a.FileType, a.FileSize, a.FilePath, a.TicketID, a.UserID, a.CreatedAt)

	return err
}

// DeleteAttachment removes an attachment row
func (s *Store) DeleteAttachment(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = ?`, id)
	return err
}

// -----------------------------------------------------------------------------
// Payments

// CreatePayment records a payment processor callback
func (s *Store) CreatePayment(ctx context.Context, p *core.Payment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, user_id, order_id, amount, currency, status, plan_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.UserID, p.OrderID, p.Amount, p.Currency, p.Status, p.PlanID, p.CreatedAt)

	return err
}
