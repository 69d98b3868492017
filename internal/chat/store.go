package chat

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/threadkeep/threadkeep/internal/ai"
)

// Store is the durable home for chats and messages. Every write runs in
// its own short-lived transaction and the store is safe for concurrent
// use from independent sessions.
//
// A nil database puts the store into degraded mode: reads return empty
// results and writes are logged no-ops. Chat persistence is auxiliary
// to the live conversation; an unreachable database must never block an
// ongoing turn.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Degraded reports whether the store is running without a database.
func (s *Store) Degraded() bool { return s.db == nil }

// Initialize creates the schema if absent and enables foreign key
// enforcement on sqlite connections. It is idempotent and safe to call
// on every process start against an existing database. Failures demote
// the store to degraded mode instead of failing the caller.
func (s *Store) Initialize(ctx context.Context) {
	if s.db == nil {
		log.Warn().Msg("chat store: no database, persistence disabled")
		return
	}

	db := s.db.WithContext(ctx)
	if db.Dialector.Name() == "sqlite" {
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			log.Error().Err(err).Msg("chat store: enabling foreign keys failed, persistence disabled")
			s.db = nil
			return
		}
	}

	if err := db.AutoMigrate(&Chat{}, &Message{}, &TurnJob{}); err != nil {
		log.Error().Err(err).Msg("chat store: migration failed, persistence disabled")
		s.db = nil
	}
}

// SaveChat inserts the chat row and all provided messages in a single
// transaction and returns the new chat id. A duplicate name rolls the
// whole transaction back: no chat row, no orphaned messages.
func (s *Store) SaveChat(ctx context.Context, name, model string, messages []ai.Message) (uint64, error) {
	if s.db == nil {
		log.Warn().Str("name", name).Msg("chat store degraded: save dropped")
		return 0, ErrPersistenceUnavailable
	}
	if strings.TrimSpace(name) == "" {
		return 0, errors.Wrap(ErrValidation, "chat name must not be blank")
	}
	for _, m := range messages {
		if !validRole(m.Role) {
			return 0, errors.Wrapf(ErrValidation, "unknown role %q", m.Role)
		}
	}

	chat := Chat{Name: name, Model: model}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&chat).Error; err != nil {
			return err
		}
		for _, m := range messages {
			msg := Message{ChatID: chat.ID, Model: model, Role: m.Role, Content: m.Content}
			if err := tx.Create(&msg).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isDuplicateKey(err) {
			return 0, errors.Wrapf(ErrDuplicateName, "chat %q", name)
		}
		return 0, errors.Wrap(err, "save chat")
	}

	log.Info().Uint64("chat_id", chat.ID).Str("name", name).Int("messages", len(messages)).Msg("chat saved")
	return chat.ID, nil
}

// AppendMessage inserts one message for an existing chat and returns
// the new message id. A dead chat id surfaces as ErrNotFound via the
// database's foreign key check; there is no separate existence query.
func (s *Store) AppendMessage(ctx context.Context, chatID uint64, model, role, content string) (uint64, error) {
	if s.db == nil {
		log.Warn().Uint64("chat_id", chatID).Str("role", role).Msg("chat store degraded: message dropped")
		return 0, nil
	}
	if !validRole(role) {
		return 0, errors.Wrapf(ErrValidation, "unknown role %q", role)
	}

	msg := Message{ChatID: chatID, Model: model, Role: role, Content: content}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&msg).Error
	})
	if err != nil {
		if isFKViolation(err) {
			return 0, errors.Wrapf(ErrNotFound, "chat %d", chatID)
		}
		return 0, errors.Wrap(err, "append message")
	}
	return msg.ID, nil
}

// ListChats returns all saved chats, most recently created first.
func (s *Store) ListChats(ctx context.Context) ([]Chat, error) {
	if s.db == nil {
		return nil, nil
	}
	var chats []Chat
	if err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Find(&chats).Error; err != nil {
		return nil, errors.Wrap(err, "list chats")
	}
	return chats, nil
}

// GetChat returns a chat by id, or ErrNotFound.
func (s *Store) GetChat(ctx context.Context, chatID uint64) (*Chat, error) {
	if s.db == nil {
		return nil, ErrPersistenceUnavailable
	}
	var chat Chat
	err := s.db.WithContext(ctx).First(&chat, chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "chat %d", chatID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get chat")
	}
	return &chat, nil
}

// GetMessages returns a chat's messages in insertion order. A missing
// or empty chat yields an empty slice, not an error.
func (s *Store) GetMessages(ctx context.Context, chatID uint64) ([]ai.Message, error) {
	if s.db == nil {
		return nil, nil
	}
	var rows []Message
	if err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "get messages")
	}
	out := make([]ai.Message, 0, len(rows))
	for _, m := range rows {
		out = append(out, ai.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

// UpdateChatModel points the chat at a new model. Messages written
// earlier keep the model they were produced with. Unknown ids are a
// no-op.
func (s *Store) UpdateChatModel(ctx context.Context, chatID uint64, model string) error {
	if s.db == nil {
		log.Warn().Uint64("chat_id", chatID).Msg("chat store degraded: model update dropped")
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(&Chat{}).Where("id = ?", chatID).Update("model", model).Error
	})
	return errors.Wrap(err, "update chat model")
}

// DeleteChat removes the chat row; the foreign key cascade removes its
// messages and jobs in the same transaction.
func (s *Store) DeleteChat(ctx context.Context, chatID uint64) error {
	if s.db == nil {
		log.Warn().Uint64("chat_id", chatID).Msg("chat store degraded: delete dropped")
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Delete(&Chat{}, chatID).Error
	})
	if err != nil {
		return errors.Wrap(err, "delete chat")
	}
	log.Info().Uint64("chat_id", chatID).Msg("chat deleted")
	return nil
}

// LastUsedModel returns the model of the most recently created chat, or
// "" when no chats are saved. Used to preselect a model for new
// sessions.
func (s *Store) LastUsedModel(ctx context.Context) (string, error) {
	if s.db == nil {
		return "", nil
	}
	var chat Chat
	err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "last used model")
	}
	return chat.Model, nil
}

func validRole(role string) bool {
	switch role {
	case ai.RoleUser, ai.RoleAssistant, ai.RoleSystem:
		return true
	}
	return false
}

// gorm's TranslateError covers sqlite and mysql, the string checks
// cover dialects and paths the translators miss.
func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint")
}

func isFKViolation(err error) bool {
	return errors.Is(err, gorm.ErrForeignKeyViolated) ||
		strings.Contains(err.Error(), "FOREIGN KEY constraint")
}
