package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akinalp/mqvi-sync/database"
	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
)

// sqliteMessageRepo, MessageRepository interface'inin SQLite implementasyonu.
type sqliteMessageRepo struct {
	db database.TxQuerier
}

// NewSQLiteMessageRepo, constructor — interface döner.
func NewSQLiteMessageRepo(db database.TxQuerier) MessageRepository {
	return &sqliteMessageRepo{db: db}
}

// messageColumns, mesaj + yazar SELECT'lerinde ortak kolon listesi.
// LEFT JOIN users — kullanıcı silinmiş olsa bile mesaj görünür.
const messageColumns = `
	m.id, m.channel_id, m.dm_channel_id, m.user_id, m.content, m.thread_parent_id,
	m.is_pinned, m.edited_at, m.created_at,
	(SELECT COUNT(*) FROM messages r WHERE r.thread_parent_id = m.id) AS reply_count,
	u.id, u.username, u.display_name, u.avatar_url`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		msg                    models.Message
		channelID, dmChannelID sql.NullString
		parentID               sql.NullString
		editedAt               sql.NullInt64
		createdAt              int64
		authorID, username     sql.NullString
		author                 models.PublicUser
	)
	if err := row.Scan(
		&msg.ID, &channelID, &dmChannelID, &msg.UserID, &msg.Content, &parentID,
		&msg.IsPinned, &editedAt, &createdAt, &msg.ReplyCount,
		&authorID, &username, &author.DisplayName, &author.AvatarURL,
	); err != nil {
		return nil, err
	}

	msg.Conversation = models.Conversation{ChannelID: channelID.String, DMChannelID: dmChannelID.String}
	if parentID.Valid {
		msg.ThreadParentID = &parentID.String
	}
	if editedAt.Valid {
		t := database.FromUnixNano(editedAt.Int64)
		msg.EditedAt = &t
	}
	msg.CreatedAt = database.FromUnixNano(createdAt)
	if authorID.Valid {
		author.ID = authorID.String
		author.Username = username.String
		msg.Author = &author
	}
	msg.Reactions = []models.ReactionGroup{}
	msg.Mentions = []string{}
	return &msg, nil
}

func (r *sqliteMessageRepo) Create(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (id, channel_id, dm_channel_id, user_id, content, thread_parent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		msg.ID, nullString(msg.ChannelID), nullString(msg.DMChannelID), msg.UserID, msg.Content,
		msg.ThreadParentID, database.ToUnixNano(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *sqliteMessageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages m
		LEFT JOIN users u ON m.user_id = u.id
		WHERE m.id = ?`

	msg, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message by id: %w", err)
	}

	reactions, err := r.reactionsFor(ctx, []string{msg.ID})
	if err != nil {
		return nil, err
	}
	if groups, ok := reactions[msg.ID]; ok {
		msg.Reactions = groups
	}
	return msg, nil
}

func (r *sqliteMessageRepo) Update(ctx context.Context, id, content string, editedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, edited_at = ? WHERE id = ?`,
		content, database.ToUnixNano(editedAt), id)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return expectAffected(result)
}

// Delete, mesajı kalıcı olarak siler. Bu mesajı referans eden watermark'lar
// sarkık kalır — okuma pozisyonu fallback'i service katmanında ele alınır.
func (r *sqliteMessageRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return expectAffected(result)
}

func (r *sqliteMessageRepo) SetPinned(ctx context.Context, id string, pinned bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE messages SET is_pinned = ? WHERE id = ?`, pinned, id)
	if err != nil {
		return fmt.Errorf("failed to set message pin: %w", err)
	}
	return expectAffected(result)
}

func (r *sqliteMessageRepo) AddReaction(ctx context.Context, messageID, userID, emoji string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO reactions (message_id, user_id, emoji, created_at)
		VALUES (?, ?, ?, ?)`,
		messageID, userID, emoji, database.ToUnixNano(at))
	if err != nil {
		return fmt.Errorf("failed to add reaction: %w", err)
	}
	return nil
}

func (r *sqliteMessageRepo) RemoveReaction(ctx context.Context, messageID, userID, emoji string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM reactions WHERE message_id = ? AND user_id = ? AND emoji = ?`,
		messageID, userID, emoji)
	if err != nil {
		return fmt.Errorf("failed to remove reaction: %w", err)
	}
	return nil
}

func (r *sqliteMessageRepo) Reactions(ctx context.Context, messageID string) ([]models.ReactionGroup, error) {
	reactions, err := r.reactionsFor(ctx, []string{messageID})
	if err != nil {
		return nil, err
	}
	if groups, ok := reactions[messageID]; ok {
		return groups, nil
	}
	return []models.ReactionGroup{}, nil
}

func expectAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return pkg.ErrNotFound
	}
	return nil
}

// List, cursor-based pagination ile üst seviye mesajları getirir.
//
// Sıralama (created_at, id) çiftine göredir: aynı nanosaniyede gönderilmiş
// iki mesaj bile sayfa sınırında kaybolmaz ya da tekrar etmez.
func (r *sqliteMessageRepo) List(ctx context.Context, conv models.Conversation, beforeID string, limit int) ([]models.Message, error) {
	column := "m.channel_id"
	if conv.IsDM() {
		column = "m.dm_channel_id"
	}

	where := column + ` = ? AND m.thread_parent_id IS NULL`
	args := []any{conv.ID()}
	if beforeID != "" {
		where += `
			AND (m.created_at, m.id) < (SELECT created_at, id FROM messages WHERE id = ?)`
		args = append(args, beforeID)
	}
	args = append(args, limit)

	query := `SELECT ` + messageColumns + `
		FROM messages m
		LEFT JOIN users u ON m.user_id = u.id
		WHERE ` + where + `
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ?`

	return r.queryMessages(ctx, query, args...)
}

func (r *sqliteMessageRepo) ListReplies(ctx context.Context, parentID, afterID string, limit int) ([]models.Message, error) {
	where := `m.thread_parent_id = ?`
	args := []any{parentID}
	if afterID != "" {
		where += `
			AND (m.created_at, m.id) > (SELECT created_at, id FROM messages WHERE id = ?)`
		args = append(args, afterID)
	}
	args = append(args, limit)

	query := `SELECT ` + messageColumns + `
		FROM messages m
		LEFT JOIN users u ON m.user_id = u.id
		WHERE ` + where + `
		ORDER BY m.created_at ASC, m.id ASC
		LIMIT ?`

	return r.queryMessages(ctx, query, args...)
}

func (r *sqliteMessageRepo) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	messages, err := r.scanMessages(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(messages))
	for i := range messages {
		ids[i] = messages[i].ID
	}

	// reaction sorgusu, mesaj satırları kapandıktan sonra çalışır —
	// r.db bir *sql.Tx ise aynı bağlantıda iki açık cursor olmaz.
	reactions, err := r.reactionsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		if groups, ok := reactions[messages[i].ID]; ok {
			messages[i].Reactions = groups
		}
	}
	return messages, nil
}

func (r *sqliteMessageRepo) scanMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

// reactionsFor, mesajların reaction'larını tek sorguda emoji bazında gruplar.
// N+1 yerine "WHERE message_id IN (...)" + Go tarafında gruplama.
func (r *sqliteMessageRepo) reactionsFor(ctx context.Context, messageIDs []string) (map[string][]models.ReactionGroup, error) {
	result := make(map[string][]models.ReactionGroup)
	for _, ids := range chunk(messageIDs, maxInArgs) {
		query := fmt.Sprintf(`
			SELECT message_id, emoji, user_id FROM reactions
			WHERE message_id IN (%s)
			ORDER BY message_id, created_at, user_id`, placeholders(len(ids)))

		rows, err := r.db.QueryContext(ctx, query, toArgs(nil, ids)...)
		if err != nil {
			return nil, fmt.Errorf("failed to get reactions: %w", err)
		}

		for rows.Next() {
			var messageID, emoji, userID string
			if err := rows.Scan(&messageID, &emoji, &userID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan reaction: %w", err)
			}
			result[messageID] = addReaction(result[messageID], emoji, userID)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("error iterating reaction rows: %w", err)
		}
	}
	return result, nil
}

func addReaction(groups []models.ReactionGroup, emoji, userID string) []models.ReactionGroup {
	for i := range groups {
		if groups[i].Emoji == emoji {
			groups[i].Count++
			groups[i].Users = append(groups[i].Users, userID)
			return groups
		}
	}
	return append(groups, models.ReactionGroup{Emoji: emoji, Count: 1, Users: []string{userID}})
}

func (r *sqliteMessageRepo) ReplyStats(ctx context.Context, parentID string) (int, *time.Time, error) {
	var (
		count int
		last  sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(created_at) FROM messages WHERE thread_parent_id = ?`, parentID,
	).Scan(&count, &last)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get reply stats: %w", err)
	}
	if !last.Valid {
		return count, nil, nil
	}
	t := database.FromUnixNano(last.Int64)
	return count, &t, nil
}

func (r *sqliteMessageRepo) GetRef(ctx context.Context, id string) (*models.MessageRef, error) {
	var (
		ref                    = models.MessageRef{ID: id}
		channelID, dmChannelID sql.NullString
		createdAt              int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT channel_id, dm_channel_id, created_at FROM messages WHERE id = ?`, id,
	).Scan(&channelID, &dmChannelID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message ref: %w", err)
	}
	ref.Conversation = models.Conversation{ChannelID: channelID.String, DMChannelID: dmChannelID.String}
	ref.SentAt = database.FromUnixNano(createdAt)
	return &ref, nil
}

func (r *sqliteMessageRepo) GetRefs(ctx context.Context, ids []string) (map[string]models.MessageRef, error) {
	refs := make(map[string]models.MessageRef, len(ids))
	for _, part := range chunk(dedupe(ids), maxInArgs) {
		query := fmt.Sprintf(
			`SELECT id, channel_id, dm_channel_id, created_at FROM messages WHERE id IN (%s)`,
			placeholders(len(part)))

		rows, err := r.db.QueryContext(ctx, query, toArgs(nil, part)...)
		if err != nil {
			return nil, fmt.Errorf("failed to get message refs: %w", err)
		}
		for rows.Next() {
			var (
				ref                    models.MessageRef
				channelID, dmChannelID sql.NullString
				createdAt              int64
			)
			if err := rows.Scan(&ref.ID, &channelID, &dmChannelID, &createdAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan message ref: %w", err)
			}
			ref.Conversation = models.Conversation{ChannelID: channelID.String, DMChannelID: dmChannelID.String}
			ref.SentAt = database.FromUnixNano(createdAt)
			refs[ref.ID] = ref
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("error iterating message ref rows: %w", err)
		}
	}
	return refs, nil
}

func (r *sqliteMessageRepo) CountUnread(ctx context.Context, conv models.Conversation, after *time.Time) (int, error) {
	column := "channel_id"
	if conv.IsDM() {
		column = "dm_channel_id"
	}

	query := `SELECT COUNT(*) FROM messages WHERE ` + column + ` = ? AND thread_parent_id IS NULL`
	args := []any{conv.ID()}
	if after != nil {
		// Kesin büyüktür: watermark ile aynı sentAt'e sahip mesaj okunmuş sayılır.
		query += ` AND created_at > ?`
		args = append(args, database.ToUnixNano(*after))
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// CountAllGrouped, kanal ve DM'leri tek sorguda UNION ALL ile sayar:
//
//	SELECT 'channel', channel_id, COUNT(*) ... GROUP BY channel_id
//	UNION ALL
//	SELECT 'dm', dm_channel_id, COUNT(*) ... GROUP BY dm_channel_id
func (r *sqliteMessageRepo) CountAllGrouped(ctx context.Context, convs []models.Conversation) (map[string]int, error) {
	counts := make(map[string]int, len(convs))
	channelIDs, dmIDs := splitConversations(convs)

	part := func(kind, column string) string {
		return `SELECT '` + kind + `', ` + column + `, COUNT(*) FROM messages
			WHERE ` + column + ` IN (%s) AND thread_parent_id IS NULL
			GROUP BY ` + column
	}
	if err := groupedCount(ctx, r.db, channelIDs, dmIDs, part, nil, counts); err != nil {
		return nil, err
	}
	return counts, nil
}

// groupedCount, kanal/DM ID listeleri için UNION ALL'lı gruplu sayım sorgusunu
// çalıştırır ve sonucu conv.Key() ile counts'a yazar. ID listeleri maxInArgs'tan
// uzunsa chunk'lara bölünür — her chunk tek sorgudur.
//
// part(kind, column) her kol için "%s" yer tutuculu SELECT üretir;
// prefix, her kolun IN listesinden önce gelen parametreleridir.
func groupedCount(
	ctx context.Context,
	db database.TxQuerier,
	channelIDs, dmIDs []string,
	part func(kind, column string) string,
	prefix []any,
	counts map[string]int,
) error {
	channelChunks := chunk(channelIDs, maxInArgs)
	dmChunks := chunk(dmIDs, maxInArgs)
	n := max(len(channelChunks), len(dmChunks))

	for i := 0; i < n; i++ {
		var (
			parts []string
			args  []any
		)
		if i < len(channelChunks) {
			parts = append(parts, fmt.Sprintf(part("channel", "channel_id"), placeholders(len(channelChunks[i]))))
			args = append(args, toArgs(prefix, channelChunks[i])...)
		}
		if i < len(dmChunks) {
			parts = append(parts, fmt.Sprintf(part("dm", "dm_channel_id"), placeholders(len(dmChunks[i]))))
			args = append(args, toArgs(prefix, dmChunks[i])...)
		}

		if err := scanGroupedCounts(ctx, db, strings.Join(parts, "\nUNION ALL\n"), args, counts); err != nil {
			return err
		}
	}
	return nil
}

func scanGroupedCounts(ctx context.Context, db database.TxQuerier, query string, args []any, counts map[string]int) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to run grouped count: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind, id string
			count    int
		)
		if err := rows.Scan(&kind, &id, &count); err != nil {
			return fmt.Errorf("failed to scan grouped count: %w", err)
		}
		counts[kind+":"+id] = count
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating grouped count rows: %w", err)
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
