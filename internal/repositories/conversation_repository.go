package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("not a conversation participant")
	ErrInvalidParticipants  = errors.New("invalid participant set")
)

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, participants []models.Participant, title string) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
	ListConversations(ctx context.Context, identity string, page, pageSize int) ([]models.ConversationSummary, error)
	ArchiveConversation(ctx context.Context, conversationID string) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateConversation stores a conversation with its fixed participant set.
// The set must be non-empty, carry resolvable roles, and be unique by
// identity.
func (r *ConversationRepo) CreateConversation(ctx context.Context, participants []models.Participant, title string) (models.Conversation, error) {
	if len(participants) == 0 {
		return models.Conversation{}, ErrInvalidParticipants
	}
	seen := map[string]struct{}{}
	for _, p := range participants {
		if p.Identity == "" || !models.ValidRole(p.Role) {
			return models.Conversation{}, ErrInvalidParticipants
		}
		if _, dup := seen[p.Identity]; dup {
			return models.Conversation{}, ErrInvalidParticipants
		}
		seen[p.Identity] = struct{}{}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer tx.Rollback()

	var conv models.Conversation
	id := uuid.NewString()
	if err := tx.QueryRowxContext(ctx,
		`INSERT INTO conversations (id, title) VALUES ($1, $2)
         RETURNING id, title, last_message_content, last_message_sender, last_message_at, archived, created_at, updated_at`,
		id, title).StructScan(&conv); err != nil {
		return models.Conversation{}, err
	}

	for i, p := range participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_participants (conversation_id, identity, role, position) VALUES ($1, $2, $3, $4)`,
			conv.ID, p.Identity, p.Role, i); err != nil {
			return models.Conversation{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	conv.Participants = participants
	return conv, nil
}

// GetConversation fetches a conversation with its participants. Archived
// conversations are still readable; writes are gated elsewhere.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv,
		`SELECT id, title, last_message_content, last_message_sender, last_message_at, archived, created_at, updated_at
         FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}

	if err := r.db.SelectContext(ctx, &conv.Participants,
		`SELECT identity, role FROM conversation_participants WHERE conversation_id=$1 ORDER BY position`,
		conversationID); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// ListConversations returns the identity's conversations ordered by most
// recent activity, each with the unread count for that identity.
func (r *ConversationRepo) ListConversations(ctx context.Context, identity string, page, pageSize int) ([]models.ConversationSummary, error) {
	if page < 1 {
		page = 1
	}
	query := `SELECT c.id, c.title, c.last_message_content, c.last_message_sender, c.last_message_at, c.created_at, c.updated_at,
            (SELECT COUNT(*) FROM messages m
             WHERE m.conversation_id = c.id
               AND NOT EXISTS (SELECT 1 FROM message_reads mr WHERE mr.message_id = m.id AND mr.identity = $1)
            ) AS unread_count
        FROM conversations c
        JOIN conversation_participants cp ON cp.conversation_id = c.id AND cp.identity = $1
        WHERE c.archived = FALSE
        ORDER BY c.updated_at DESC
        LIMIT $2 OFFSET $3`

	summaries := []models.ConversationSummary{}
	err := r.db.SelectContext(ctx, &summaries, query, identity, pageSize, (page-1)*pageSize)
	return summaries, err
}

// ArchiveConversation retires a conversation. Message history is kept; the
// conversation just stops accepting writes and drops out of list views.
func (r *ConversationRepo) ArchiveConversation(ctx context.Context, conversationID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET archived = TRUE, updated_at = NOW() WHERE id=$1 AND archived = FALSE`,
		conversationID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	return nil
}
