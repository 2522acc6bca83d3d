//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chat-core/domain"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const defaultHistoryLimit = 20

type IMessageRepository interface {
	InsertBatch(records []domain.QueuedMessage) (stored, rejected int, err error)
	FindRecent(userA, userB string, limit int) ([]domain.StoredMessage, error)
}

type MessageRepository struct {
	db       *badger.DB
	log      *slog.Logger
	validate *validator.Validate
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log, validate: validator.New()}
}

// messageKey builds "msg:{conversation}:{timestamp_padded}:{uuid}" so a
// prefix scan over one conversation comes back chronologically sorted.
// The 19-digit zero padding keeps lexicographic and time order aligned;
// the UUID disambiguates two messages landing on the same nanosecond.
func messageKey(conversation string, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", conversation, at.UnixNano(), id))
}

// conversationKey orders the two participants deterministically so both
// directions of a dialogue share one key prefix.
func conversationKey(userA, userB string) string {
	if strings.Compare(userA, userB) > 0 {
		userA, userB = userB, userA
	}
	return userA + "|" + userB
}

// InsertBatch persists a flush snapshot in one write batch with
// partial-failure tolerance: records failing validation are counted,
// logged and skipped, the rest still land. Only a storage-level failure
// aborts the batch as a whole.
func (m MessageRepository) InsertBatch(records []domain.QueuedMessage) (int, int, error) {
	wb := m.db.NewWriteBatch()
	defer wb.Cancel()

	stored, rejected := 0, 0
	for _, record := range records {
		if err := m.validate.Struct(record); err != nil {
			m.log.Warn("Rejecting invalid message record",
				"sender", record.SenderID, "recipient", record.RecipientID, "err", err)
			rejected++
			continue
		}

		id := uuid.New()
		value, err := json.Marshal(domain.StoredMessage{
			ID:          id,
			SenderID:    record.SenderID,
			RecipientID: record.RecipientID,
			Content:     record.Content,
			MediaURL:    record.MediaURL,
			Type:        record.Type,
			CreatedAt:   record.CreatedAt,
		})
		if err != nil {
			m.log.Warn("Rejecting unmarshalable message record", "err", err)
			rejected++
			continue
		}

		key := messageKey(conversationKey(record.SenderID, record.RecipientID), record.CreatedAt, id)
		if err = wb.Set(key, value); err != nil {
			return 0, rejected, fmt.Errorf("write batch set failed: %w", err)
		}
		stored++
	}

	if err := wb.Flush(); err != nil {
		return 0, rejected, fmt.Errorf("write batch flush failed: %w", err)
	}
	return stored, rejected, nil
}

// FindRecent returns the last messages exchanged between two users,
// oldest-first, capped at limit (default 20 when limit is not
// positive). It walks the conversation prefix backwards to find the
// newest entries, then reverses the page.
func (m MessageRepository) FindRecent(userA, userB string, limit int) ([]domain.StoredMessage, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	prefix := []byte(fmt.Sprintf("msg:%s:", conversationKey(userA, userB)))
	var raw [][]byte

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible timestamp, then walk back.
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if len(raw) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte{}, value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.StoredMessage, 0, len(raw))
	for _, value := range raw {
		var message domain.StoredMessage
		if err = json.Unmarshal(value, &message); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	// The reverse scan produced newest-first; history reads oldest-first.
	return lo.Reverse(messages), nil
}
