package repositories

import (
	"chat-core/domain"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func record(sender, recipient, content string, at time.Time) domain.QueuedMessage {
	return domain.QueuedMessage{
		SenderID:    sender,
		RecipientID: recipient,
		Content:     content,
		Type:        domain.TextType,
		CreatedAt:   at,
	}
}

func TestMessageRepository_InsertBatch_RoundTrip(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t), slog.Default())
	base := time.Now().UTC()

	// Given a mixed-direction conversation
	stored, rejected, err := repo.InsertBatch([]domain.QueuedMessage{
		record("u1", "u2", "hello", base),
		record("u2", "u1", "hi back", base.Add(time.Second)),
		record("u1", "u2", "how are you", base.Add(2*time.Second)),
	})
	req.NoError(err)
	req.Equal(3, stored)
	req.Zero(rejected)

	// Then both directions come back on one conversation, oldest-first
	messages, err := repo.FindRecent("u2", "u1", 20)
	req.NoError(err)
	req.Len(messages, 3)
	req.Equal("hello", messages[0].Content)
	req.Equal("hi back", messages[1].Content)
	req.Equal("how are you", messages[2].Content)
	req.Equal("u2", messages[1].SenderID)
}

func TestMessageRepository_InsertBatch_PartialFailure(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t), slog.Default())
	base := time.Now().UTC()

	// Given a batch with two invalid records in the middle
	stored, rejected, err := repo.InsertBatch([]domain.QueuedMessage{
		record("u1", "u2", "valid one", base),
		{SenderID: "u1", Content: "no recipient", Type: domain.TextType, CreatedAt: base},
		{SenderID: "u1", RecipientID: "u2", Content: "bad type", Type: "carrier-pigeon", CreatedAt: base},
		record("u1", "u2", "valid two", base.Add(time.Second)),
	})

	// Then the valid records still landed
	req.NoError(err)
	req.Equal(2, stored)
	req.Equal(2, rejected)

	messages, err := repo.FindRecent("u1", "u2", 20)
	req.NoError(err)
	req.Len(messages, 2)
	req.Equal("valid one", messages[0].Content)
	req.Equal("valid two", messages[1].Content)
}

func TestMessageRepository_FindRecent_LimitKeepsNewest(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t), slog.Default())
	base := time.Now().UTC()

	batch := lo.Map(lo.Range(30), func(i int, _ int) domain.QueuedMessage {
		return record("u1", "u2", fmt.Sprintf("m%02d", i), base.Add(time.Duration(i)*time.Millisecond))
	})
	_, _, err := repo.InsertBatch(batch)
	req.NoError(err)

	// Default limit caps at 20 and the page holds the newest messages,
	// still ordered oldest-first.
	messages, err := repo.FindRecent("u1", "u2", 0)
	req.NoError(err)
	req.Len(messages, 20)
	req.Equal("m10", messages[0].Content)
	req.Equal("m29", messages[19].Content)

	// An explicit smaller limit is honored.
	messages, err = repo.FindRecent("u1", "u2", 5)
	req.NoError(err)
	req.Len(messages, 5)
	req.Equal("m25", messages[0].Content)
}

func TestMessageRepository_FindRecent_ConversationsAreIsolated(t *testing.T) {
	req := require.New(t)
	repo := NewMessageRepository(openTestDB(t), slog.Default())
	base := time.Now().UTC()

	_, _, err := repo.InsertBatch([]domain.QueuedMessage{
		record("u1", "u2", "for u2", base),
		record("u1", "u3", "for u3", base),
	})
	req.NoError(err)

	messages, err := repo.FindRecent("u1", "u3", 20)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("for u3", messages[0].Content)
}

func TestMessageRepository_FindRecent_EmptyConversation(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t), slog.Default())

	messages, err := repo.FindRecent("u1", "u2", 20)
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestUserRepository_StatusRoundTrip(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(openTestDB(t), slog.Default())

	// Unknown users read back offline
	status, err := repo.Status("ghost")
	req.NoError(err)
	req.False(status.Online)
	req.Nil(status.LastSeenAt)

	// Online write is idempotent
	req.NoError(repo.UpdateStatus("u1", true))
	req.NoError(repo.UpdateStatus("u1", true))
	status, err = repo.Status("u1")
	req.NoError(err)
	req.True(status.Online)

	// Going offline stamps lastSeenAt
	req.NoError(repo.UpdateStatus("u1", false))
	status, err = repo.Status("u1")
	req.NoError(err)
	req.False(status.Online)
	req.NotNil(status.LastSeenAt)
}
