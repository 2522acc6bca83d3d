//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"chat-core/domain"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IUserRepository interface {
	UpdateStatus(userID string, online bool) error
	Status(userID string) (domain.UserStatus, error)
}

// UserRepository persists the online flag next to the messages. The
// write is idempotent and purely advisory: in-memory presence wins and
// the two may diverge until the next successful write.
type UserRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewUserRepository(db *badger.DB, log *slog.Logger) UserRepository {
	return UserRepository{db: db, log: log}
}

func statusKey(userID string) []byte {
	return []byte("status:" + userID)
}

// UpdateStatus writes the persisted presence flag. Going offline also
// stamps lastSeenAt.
func (u UserRepository) UpdateStatus(userID string, online bool) error {
	status := domain.UserStatus{Online: online}
	if !online {
		now := time.Now().UTC()
		status.LastSeenAt = &now
	}

	value, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status failed: %w", err)
	}

	return u.db.Update(func(txn *badger.Txn) error {
		return txn.Set(statusKey(userID), value)
	})
}

// Status reads the persisted flag back; unknown users report offline
// with no lastSeenAt.
func (u UserRepository) Status(userID string) (domain.UserStatus, error) {
	var status domain.UserStatus

	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(statusKey(userID))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &status)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.UserStatus{}, nil
	}
	if err != nil {
		return domain.UserStatus{}, err
	}
	return status, nil
}
