package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/akinalp/mqvi-sync/database"
	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
)

// sqliteReadStateRepo, ReadStateRepository interface'inin SQLite implementasyonu.
type sqliteReadStateRepo struct {
	db database.TxQuerier
}

// NewSQLiteReadStateRepo, constructor — interface döner.
func NewSQLiteReadStateRepo(db database.TxQuerier) ReadStateRepository {
	return &sqliteReadStateRepo{db: db}
}

// readsTable, konuşma türüne göre watermark tablosunu ve kimlik kolonunu döner.
// Tablo/kolon isimleri sabit listeden gelir — SQL injection riski yok.
func readsTable(conv models.Conversation) (table, column string) {
	if conv.IsDM() {
		return "dm_reads", "dm_channel_id"
	}
	return "channel_reads", "channel_id"
}

func (r *sqliteReadStateRepo) Get(ctx context.Context, userID string, conv models.Conversation) (*models.ReadReceipt, error) {
	table, column := readsTable(conv)
	query := fmt.Sprintf(`
		SELECT last_read_message_id, last_read_at
		FROM %s WHERE user_id = ? AND %s = ?`, table, column)

	receipt := &models.ReadReceipt{UserID: userID, Conversation: conv}
	var lastReadAt int64
	err := r.db.QueryRowContext(ctx, query, userID, conv.ID()).Scan(&receipt.LastReadMessageID, &lastReadAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get read state: %w", err)
	}
	receipt.LastReadAt = database.FromUnixNano(lastReadAt)
	return receipt, nil
}

// Upsert, INSERT ... ON CONFLICT DO UPDATE (SQLite "upsert" pattern).
// PRIMARY KEY (user_id, <conv>_id) çakışırsa satır yerinde güncellenir.
func (r *sqliteReadStateRepo) Upsert(ctx context.Context, receipt *models.ReadReceipt) error {
	table, column := readsTable(receipt.Conversation)
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (user_id, %[2]s, last_read_message_id, last_read_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, %[2]s)
		DO UPDATE SET last_read_message_id = excluded.last_read_message_id,
		              last_read_at = excluded.last_read_at`, table, column)

	_, err := r.db.ExecContext(ctx, query,
		receipt.UserID, receipt.Conversation.ID(), receipt.LastReadMessageID,
		database.ToUnixNano(receipt.LastReadAt))
	if err != nil {
		return fmt.Errorf("failed to upsert read state: %w", err)
	}
	return nil
}

func (r *sqliteReadStateRepo) ListByUser(ctx context.Context, userID string) ([]models.ReadReceipt, error) {
	query := `
		SELECT channel_id, NULL, last_read_message_id, last_read_at FROM channel_reads WHERE user_id = ?
		UNION ALL
		SELECT NULL, dm_channel_id, last_read_message_id, last_read_at FROM dm_reads WHERE user_id = ?`

	rows, err := r.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list read states: %w", err)
	}
	defer rows.Close()

	receipts := []models.ReadReceipt{}
	for rows.Next() {
		var (
			channelID, dmChannelID sql.NullString
			lastReadAt             int64
			receipt                = models.ReadReceipt{UserID: userID}
		)
		if err := rows.Scan(&channelID, &dmChannelID, &receipt.LastReadMessageID, &lastReadAt); err != nil {
			return nil, fmt.Errorf("failed to scan read state: %w", err)
		}
		receipt.Conversation = models.Conversation{ChannelID: channelID.String, DMChannelID: dmChannelID.String}
		receipt.LastReadAt = database.FromUnixNano(lastReadAt)
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating read state rows: %w", err)
	}
	return receipts, nil
}

// memberOfReadRow, receipt sahibinin konuşmada hâlâ üye olduğunu doğrulayan koşul.
// Konuşmadan ayrılan kullanıcının eski receipt'i "seen by" listesinde görünmez.
func memberOfReadRow(conv models.Conversation) string {
	if conv.IsDM() {
		return `EXISTS (SELECT 1 FROM dm_participants p
			WHERE p.dm_channel_id = r.dm_channel_id AND p.user_id = r.user_id)`
	}
	return `EXISTS (SELECT 1 FROM channels c
		INNER JOIN server_members sm ON sm.server_id = c.server_id
		WHERE c.id = r.channel_id AND sm.user_id = r.user_id)`
}

func (r *sqliteReadStateRepo) ListReaders(ctx context.Context, conv models.Conversation, sentAt time.Time, excludeUserID string) ([]models.MessageReader, error) {
	table, column := readsTable(conv)
	query := fmt.Sprintf(`
		SELECT u.id, u.username, u.display_name, u.avatar_url, r.last_read_at
		FROM %s r
		INNER JOIN users u ON u.id = r.user_id
		WHERE r.%s = ? AND r.last_read_at >= ? AND r.user_id != ? AND %s
		ORDER BY r.last_read_at ASC, u.id ASC`, table, column, memberOfReadRow(conv))

	rows, err := r.db.QueryContext(ctx, query, conv.ID(), database.ToUnixNano(sentAt), excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list message readers: %w", err)
	}
	defer rows.Close()

	readers := []models.MessageReader{}
	for rows.Next() {
		var (
			reader     models.MessageReader
			lastReadAt int64
		)
		if err := rows.Scan(&reader.UserID, &reader.Username, &reader.DisplayName, &reader.AvatarURL, &lastReadAt); err != nil {
			return nil, fmt.Errorf("failed to scan message reader: %w", err)
		}
		reader.LastReadAt = database.FromUnixNano(lastReadAt)
		readers = append(readers, reader)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reader rows: %w", err)
	}
	return readers, nil
}
