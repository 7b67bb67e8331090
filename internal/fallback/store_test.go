package fallback

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Agalaxie/shadesupport/internal/core"
)

func newStore(t *testing.T, retention time.Duration) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "temp-tickets.json"), retention, zerolog.Nop())
}

func tempTicket(id, owner string, createdAt time.Time) *core.Ticket {
	return &core.Ticket{
		ID:          id,
		Title:       "Ticket temporaire",
		Description: "Créé hors ligne",
		Status:      core.StatusOpen,
		Priority:    core.PriorityMedium,
		UserID:      owner,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
		Messages:    []core.Message{},
	}
}

func TestFindTicketMissingFile(t *testing.T) {
	s := newStore(t, 0)

	_, found := s.FindTicket("temp-1")
	assert.False(t, found, "a missing file is an empty store, not an error")
}

func TestSaveAndFindTicket(t *testing.T) {
	s := newStore(t, 0)

	ticket := tempTicket("temp-1", "user-1", time.Now())
	require.NoError(t, s.SaveTicket("user-1", ticket))

	got, found := s.FindTicket("temp-1")
	require.True(t, found)
	assert.Equal(t, "temp-1", got.ID)
	assert.Equal(t, "user-1", got.UserID)

	// The record must be searchable regardless of which owner key holds it.
	_, found = s.FindTicket("temp-2")
	assert.False(t, found)
}

func TestSaveTicketReplacesExisting(t *testing.T) {
	s := newStore(t, 0)

	ticket := tempTicket("temp-1", "user-1", time.Now())
	require.NoError(t, s.SaveTicket("user-1", ticket))

	ticket.Title = "Titre corrigé"
	require.NoError(t, s.SaveTicket("user-1", ticket))

	got, found := s.FindTicket("temp-1")
	require.True(t, found)
	assert.Equal(t, "Titre corrigé", got.Title)

	// Replacement, not duplication: the file holds a single record.
	raw, err := os.ReadFile(s.path)
	require.NoError(t, err)
	var mapping map[string][]core.Ticket
	require.NoError(t, json.Unmarshal(raw, &mapping))
	assert.Len(t, mapping["user-1"], 1)
}

func TestAppendMessageRoundTrip(t *testing.T) {
	s := newStore(t, 0)

	require.NoError(t, s.SaveTicket("user-1", tempTicket("temp-1", "user-1", time.Now())))

	msg := core.Message{ID: "m1", Content: "Bonjour", TicketID: "temp-1", UserID: "user-1"}
	found, err := s.AppendMessage("temp-1", msg)
	require.NoError(t, err)
	require.True(t, found)

	got, ok := s.FindTicket("temp-1")
	require.True(t, ok)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Bonjour", got.Messages[0].Content)

	// The message must survive on disk, not only in memory.
	raw, err := os.ReadFile(s.path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Bonjour")
}

func TestAppendMessageUnknownTicket(t *testing.T) {
	s := newStore(t, 0)

	found, err := s.AppendMessage("temp-404", core.Message{ID: "m1", Content: "Bonjour"})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRetentionPruning(t *testing.T) {
	s := newStore(t, 72*time.Hour)

	old := tempTicket("temp-old", "user-1", time.Now().Add(-100*time.Hour))
	fresh := tempTicket("temp-fresh", "user-1", time.Now())
	require.NoError(t, s.SaveTicket("user-1", old))
	require.NoError(t, s.SaveTicket("user-1", fresh))

	// The second save prunes anything past the retention window.
	_, found := s.FindTicket("temp-old")
	assert.False(t, found, "expired tickets must be pruned on save")
	_, found = s.FindTicket("temp-fresh")
	assert.True(t, found)
}

func TestZeroRetentionKeepsEverything(t *testing.T) {
	s := newStore(t, 0)

	old := tempTicket("temp-old", "user-1", time.Now().Add(-1000*time.Hour))
	require.NoError(t, s.SaveTicket("user-1", old))
	require.NoError(t, s.SaveTicket("user-1", tempTicket("temp-2", "user-1", time.Now())))

	_, found := s.FindTicket("temp-old")
	assert.True(t, found)
}

func TestSaveIsAtomic(t *testing.T) {
	s := newStore(t, 0)
	require.NoError(t, s.SaveTicket("user-1", tempTicket("temp-1", "user-1", time.Now())))

	// No temp file left behind after a successful save.
	_, err := os.Stat(s.path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestCorruptFileSurfacesError(t *testing.T) {
	s := newStore(t, 0)
	require.NoError(t, os.WriteFile(s.path, []byte("{not json"), 0644))

	err := s.SaveTicket("user-1", tempTicket("temp-1", "user-1", time.Now()))
	assert.Error(t, err, "a corrupt store file must not be silently overwritten")

	_, found := s.FindTicket("temp-1")
	assert.False(t, found)
}
