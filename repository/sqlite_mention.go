package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akinalp/mqvi-sync/database"
	"github.com/akinalp/mqvi-sync/models"
)

// sqliteMentionRepo, MentionRepository interface'inin SQLite implementasyonu.
type sqliteMentionRepo struct {
	db database.TxQuerier
}

// NewSQLiteMentionRepo, constructor — interface döner.
func NewSQLiteMentionRepo(db database.TxQuerier) MentionRepository {
	return &sqliteMentionRepo{db: db}
}

// Create, tüm mention'ları tek multi-row INSERT ile kaydeder:
// INSERT INTO ... VALUES (...), (...), (...)
func (r *sqliteMentionRepo) Create(ctx context.Context, messageID string, conv models.Conversation, userIDs []string, at time.Time) error {
	userIDs = dedupe(userIDs)
	if len(userIDs) == 0 {
		return nil
	}

	rows := make([]string, len(userIDs))
	args := make([]any, 0, len(userIDs)*7)
	for i, uid := range userIDs {
		rows[i] = "(?, ?, ?, ?, ?, ?, ?)"
		args = append(args,
			uuid.NewString(), uid, string(models.NotificationMention), messageID,
			nullString(conv.ChannelID), nullString(conv.DMChannelID), database.ToUnixNano(at))
	}

	query := fmt.Sprintf(`
		INSERT INTO notifications (id, user_id, type, message_id, channel_id, dm_channel_id, created_at)
		VALUES %s`, strings.Join(rows, ", "))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save mentions: %w", err)
	}
	return nil
}

func (r *sqliteMentionRepo) DeleteByMessageID(ctx context.Context, messageID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE message_id = ?`, messageID)
	if err != nil {
		return fmt.Errorf("failed to delete mentions: %w", err)
	}
	return nil
}

func (r *sqliteMentionRepo) CountUnread(ctx context.Context, userID string, conv models.Conversation, after *time.Time) (int, error) {
	column := "channel_id"
	if conv.IsDM() {
		column = "dm_channel_id"
	}

	query := `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = ? AND type = ? AND is_read = 0 AND ` + column + ` = ?`
	args := []any{userID, string(models.NotificationMention), conv.ID()}
	if after != nil {
		query += ` AND created_at > ?`
		args = append(args, database.ToUnixNano(*after))
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count mentions: %w", err)
	}
	return count, nil
}

func (r *sqliteMentionRepo) CountUnreadGrouped(ctx context.Context, userID string, convs []models.Conversation) (map[string]int, error) {
	counts := make(map[string]int, len(convs))
	channelIDs, dmIDs := splitConversations(convs)

	part := func(kind, column string) string {
		return `SELECT '` + kind + `', ` + column + `, COUNT(*) FROM notifications
			WHERE user_id = ? AND type = ? AND is_read = 0 AND ` + column + ` IN (%s)
			GROUP BY ` + column
	}
	prefix := []any{userID, string(models.NotificationMention)}
	if err := groupedCount(ctx, r.db, channelIDs, dmIDs, part, prefix, counts); err != nil {
		return nil, err
	}
	return counts, nil
}
