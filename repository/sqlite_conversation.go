package repository

import (
	"context"
	"fmt"

	"github.com/akinalp/mqvi-sync/database"
	"github.com/akinalp/mqvi-sync/models"
)

// sqliteConversationRepo, ConversationRepository interface'inin SQLite implementasyonu.
type sqliteConversationRepo struct {
	db database.TxQuerier
}

// NewSQLiteConversationRepo, constructor — interface döner.
func NewSQLiteConversationRepo(db database.TxQuerier) ConversationRepository {
	return &sqliteConversationRepo{db: db}
}

func (r *sqliteConversationRepo) ListChannels(ctx context.Context, userID string) ([]models.Conversation, error) {
	query := `
		SELECT c.id FROM channels c
		INNER JOIN server_members sm ON sm.server_id = c.server_id
		WHERE sm.user_id = ? AND c.type = 'text'
		ORDER BY c.server_id, c.position, c.id`

	ids, err := r.queryIDs(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	convs := make([]models.Conversation, len(ids))
	for i, id := range ids {
		convs[i] = models.ChannelConversation(id)
	}
	return convs, nil
}

func (r *sqliteConversationRepo) ListDMs(ctx context.Context, userID string) ([]models.Conversation, error) {
	query := `SELECT dm_channel_id FROM dm_participants WHERE user_id = ? ORDER BY dm_channel_id`

	ids, err := r.queryIDs(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dm channels: %w", err)
	}
	convs := make([]models.Conversation, len(ids))
	for i, id := range ids {
		convs[i] = models.DMConversation(id)
	}
	return convs, nil
}

func (r *sqliteConversationRepo) IsMember(ctx context.Context, userID string, conv models.Conversation) (bool, error) {
	var query string
	if conv.IsDM() {
		query = `SELECT EXISTS(SELECT 1 FROM dm_participants WHERE dm_channel_id = ? AND user_id = ?)`
	} else {
		query = `
			SELECT EXISTS(
				SELECT 1 FROM channels c
				INNER JOIN server_members sm ON sm.server_id = c.server_id
				WHERE c.id = ? AND sm.user_id = ?
			)`
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, conv.ID(), userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

func (r *sqliteConversationRepo) ListMemberIDs(ctx context.Context, conv models.Conversation) ([]string, error) {
	var query string
	if conv.IsDM() {
		query = `SELECT user_id FROM dm_participants WHERE dm_channel_id = ? ORDER BY user_id`
	} else {
		query = `
			SELECT sm.user_id FROM channels c
			INNER JOIN server_members sm ON sm.server_id = c.server_id
			WHERE c.id = ? ORDER BY sm.user_id`
	}

	ids, err := r.queryIDs(ctx, query, conv.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return ids, nil
}

func (r *sqliteConversationRepo) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
