package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	AppendMessage(ctx context.Context, conversationID string, sender models.Participant, content string, attachments []models.Attachment) (models.Message, error)
	MarkRead(ctx context.Context, conversationID, identity string, upTo int64) (int64, error)
	ListMessages(ctx context.Context, conversationID, requester string, page, pageSize int, beforeID int64) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// AppendMessage stores a message and updates the conversation's
// denormalized last-message snapshot in the same transaction, so either
// both are visible or neither is. The sender is recorded as having read
// its own message immediately.
func (r *MessageRepo) AppendMessage(ctx context.Context, conversationID string, sender models.Participant, content string, attachments []models.Attachment) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var archived bool
	err = tx.GetContext(ctx, &archived, `SELECT archived FROM conversations WHERE id=$1 FOR UPDATE`, conversationID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && archived) {
		return models.Message{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Message{}, err
	}

	var member bool
	if err := tx.GetContext(ctx, &member,
		`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND identity=$2)`,
		conversationID, sender.Identity); err != nil {
		return models.Message{}, err
	}
	if !member {
		return models.Message{}, ErrNotParticipant
	}

	var msg models.Message
	if err := tx.QueryRowxContext(ctx,
		`INSERT INTO messages (conversation_id, sender_identity, sender_role, content) VALUES ($1, $2, $3, $4)
         RETURNING id, conversation_id, sender_identity, sender_role, content, created_at`,
		conversationID, sender.Identity, sender.Role, content).StructScan(&msg); err != nil {
		return models.Message{}, err
	}

	for i, a := range attachments {
		var att models.Attachment
		if err := tx.QueryRowxContext(ctx,
			`INSERT INTO message_attachments (message_id, position, filename, file_type, file_size, storage_ref)
             VALUES ($1, $2, $3, $4, $5, $6)
             RETURNING message_id, position, filename, file_type, file_size, storage_ref, uploaded_at`,
			msg.ID, i, a.Filename, a.FileType, a.FileSize, a.StorageRef).StructScan(&att); err != nil {
			return models.Message{}, err
		}
		msg.Attachments = append(msg.Attachments, att)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO message_reads (message_id, identity) VALUES ($1, $2)`,
		msg.ID, sender.Identity); err != nil {
		return models.Message{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations
         SET last_message_content=$2, last_message_sender=$3, last_message_at=$4, updated_at=NOW()
         WHERE id=$1`,
		conversationID, msg.Content, msg.SenderIdentity, msg.CreatedAt); err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// MarkRead marks every message in the conversation with id <= upTo as read
// by identity. The primary key on message_reads plus ON CONFLICT DO
// NOTHING makes the call idempotent and keeps earlier read times intact.
// Archived conversations reject the write like any other mutation.
// Returns the number of messages newly marked.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, identity string, upTo int64) (int64, error) {
	var archived bool
	err := r.db.GetContext(ctx, &archived, `SELECT archived FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && archived) {
		return 0, ErrConversationNotFound
	}
	if err != nil {
		return 0, err
	}

	var member bool
	if err := r.db.GetContext(ctx, &member,
		`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND identity=$2)`,
		conversationID, identity); err != nil {
		return 0, err
	}
	if !member {
		return 0, ErrNotParticipant
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO message_reads (message_id, identity)
         SELECT m.id, $2 FROM messages m
         WHERE m.conversation_id = $1 AND m.id <= $3
         ON CONFLICT (message_id, identity) DO NOTHING`,
		conversationID, identity, upTo)
	if err != nil {
		return 0, err
	}
	marked, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if marked > 0 {
		if _, err := r.db.ExecContext(ctx,
			`UPDATE conversations SET updated_at = NOW() WHERE id=$1`, conversationID); err != nil {
			return marked, err
		}
	}
	return marked, nil
}

// ListMessages returns one page of messages, paginated backward from the
// newest (page 1 = most recent pageSize messages) but ordered
// oldest-to-newest within the page. A non-zero beforeID anchors paging at
// that message id, so page numbers stay stable while new messages arrive.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID, requester string, page, pageSize int, beforeID int64) ([]models.Message, error) {
	var member bool
	if err := r.db.GetContext(ctx, &member,
		`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND identity=$2)`,
		conversationID, requester); err != nil {
		return nil, err
	}
	if !member {
		var exists bool
		if err := r.db.GetContext(ctx, &exists,
			`SELECT EXISTS(SELECT 1 FROM conversations WHERE id=$1)`, conversationID); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrConversationNotFound
		}
		return nil, ErrNotParticipant
	}

	if page < 1 {
		page = 1
	}
	query := `SELECT id, conversation_id, sender_identity, sender_role, content, created_at
         FROM messages WHERE conversation_id=$1
         ORDER BY id DESC
         LIMIT $2 OFFSET $3`
	args := []interface{}{conversationID, pageSize, (page - 1) * pageSize}
	if beforeID > 0 {
		query = `SELECT id, conversation_id, sender_identity, sender_role, content, created_at
         FROM messages WHERE conversation_id=$1 AND id <= $4
         ORDER BY id DESC
         LIMIT $2 OFFSET $3`
		args = append(args, beforeID)
	}

	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, query, args...); err != nil {
		return nil, err
	}

	// Reverse into oldest-to-newest order for the page.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	if err := r.attachDetails(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *MessageRepo) attachDetails(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(msgs))
	byID := make(map[int64]*models.Message, len(msgs))
	for i := range msgs {
		ids = append(ids, msgs[i].ID)
		byID[msgs[i].ID] = &msgs[i]
	}

	var attachments []models.Attachment
	if err := r.db.SelectContext(ctx, &attachments,
		`SELECT message_id, position, filename, file_type, file_size, storage_ref, uploaded_at
         FROM message_attachments WHERE message_id = ANY($1) ORDER BY message_id, position`,
		pq.Array(ids)); err != nil {
		return err
	}
	for _, a := range attachments {
		if m, ok := byID[a.MessageID]; ok {
			m.Attachments = append(m.Attachments, a)
		}
	}

	var reads []models.ReadReceipt
	if err := r.db.SelectContext(ctx, &reads,
		`SELECT message_id, identity, read_at FROM message_reads WHERE message_id = ANY($1)`,
		pq.Array(ids)); err != nil {
		return err
	}
	for _, rr := range reads {
		if m, ok := byID[rr.MessageID]; ok {
			m.ReadBy = append(m.ReadBy, rr)
		}
	}
	return nil
}
