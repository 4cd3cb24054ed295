package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/protocol"
	"github.com/akinalp/mqvi-sync/repository"
	"github.com/akinalp/mqvi-sync/ws"
)

// mentionRegex, mesaj içeriğindeki @username kalıplarını bulur.
//
// Regex açıklaması:
// @        — literal @ karakteri (mention başlangıcı)
// (\w+)   — bir veya daha fazla kelime karakteri (harf, rakam, _)
//
// Örnekler:
//
//	"merhaba @ali nasılsın"  → ["ali"]
//	"@ali ve @veli"           → ["ali", "veli"]
//	"email@test.com"          → ["test"] — false positive, ama username lookup
//	                            ve üyelik kontrolü ile elenir
var mentionRegex = regexp.MustCompile(`@(\w+)`)

// Sayfalama sınırları.
const (
	defaultPageSize = 50
	maxPageSize     = 100
	maxEmojiLength  = 32
)

// MessageService, mesaj yaşam döngüsü iş mantığı interface'i.
//
// Okuma durumu sayaçlarını besleyen event'lerin kaynağıdır: her yazma
// işlemi konuşmanın odasına (ws.ConversationRoom) bir event yayınlar.
type MessageService interface {
	List(ctx context.Context, userID string, conv models.Conversation, beforeID string, limit int) (*models.MessagePage, error)
	ListReplies(ctx context.Context, userID, parentID, afterID string, limit int) (*models.MessagePage, error)
	Create(ctx context.Context, userID string, req *models.CreateMessageRequest) (*models.Message, error)
	Update(ctx context.Context, id, userID string, req *models.UpdateMessageRequest) (*models.Message, error)
	Delete(ctx context.Context, id, userID string) error
	AddReaction(ctx context.Context, messageID, userID, emoji string) ([]models.ReactionGroup, error)
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) ([]models.ReactionGroup, error)
	SetPinned(ctx context.Context, messageID, userID string, pinned bool) error
}

type messageService struct {
	messageRepo      repository.MessageRepository
	conversationRepo repository.ConversationRepository
	userRepo         repository.UserRepository
	writer           repository.MessageWriter
	hub              ws.EventPublisher
	now              func() time.Time
}

// NewMessageService, constructor.
func NewMessageService(
	messageRepo repository.MessageRepository,
	conversationRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	writer repository.MessageWriter,
	hub ws.EventPublisher,
) MessageService {
	return &messageService{
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		userRepo:         userRepo,
		writer:           writer,
		hub:              hub,
		now:              time.Now,
	}
}

// requireMember, kullanıcının konuşmaya erişimi yoksa ErrForbidden döner.
func (s *messageService) requireMember(ctx context.Context, userID string, conv models.Conversation) error {
	ok, err := s.conversationRepo.IsMember(ctx, userID, conv)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: not a member of this conversation", pkg.ErrForbidden)
	}
	return nil
}

// loadAccessible, mesajı yükler ve kullanıcının mesajın konuşmasına erişimini doğrular.
func (s *messageService) loadAccessible(ctx context.Context, messageID, userID string) (*models.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, userID, msg.Conversation); err != nil {
		return nil, err
	}
	return msg, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxPageSize {
		return defaultPageSize
	}
	return limit
}

// List, konuşmanın üst seviye mesajlarını cursor-based pagination ile döner.
//
// limit + 1 satır istenir — fazladan 1 satır gelirse "daha var" anlamına gelir.
// Mesajlar en yeniden eskiye sıralıdır; NextCursor son (en eski) mesajın ID'si.
func (s *messageService) List(ctx context.Context, userID string, conv models.Conversation, beforeID string, limit int) (*models.MessagePage, error) {
	if err := validateConversation(conv); err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, userID, conv); err != nil {
		return nil, err
	}

	limit = clampLimit(limit)
	messages, err := s.messageRepo.List(ctx, conv, beforeID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return newPage(messages, limit), nil
}

// ListReplies, bir thread'in yanıtlarını en eskiden yeniye döner.
// afterID verilirse o yanıttan sonrakiler gelir (yeni yanıtları çekmek için).
func (s *messageService) ListReplies(ctx context.Context, userID, parentID, afterID string, limit int) (*models.MessagePage, error) {
	if _, err := s.loadAccessible(ctx, parentID, userID); err != nil {
		return nil, err
	}

	limit = clampLimit(limit)
	replies, err := s.messageRepo.ListReplies(ctx, parentID, afterID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to get replies: %w", err)
	}
	return newPage(replies, limit), nil
}

func newPage(messages []models.Message, limit int) *models.MessagePage {
	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	// Go'da nil slice JSON'a "null" olarak serialize edilir — boş slice'a çevir.
	if messages == nil {
		messages = []models.Message{}
	}

	page := &models.MessagePage{Messages: messages, HasMore: hasMore}
	if hasMore {
		page.NextCursor = messages[len(messages)-1].ID
	}
	return page
}

// Create, yeni bir mesaj oluşturur ve konuşmanın odasına message_create yayınlar.
//
// Thread yanıtlarında parent aynı konuşmada olmalı ve kendisi bir yanıt olmamalı
// (tek seviye thread). Yanıt oluşturulunca parent'ın güncel sayısı thread_update
// ile yayınlanır.
func (s *messageService) Create(ctx context.Context, userID string, req *models.CreateMessageRequest) (*models.Message, error) {
	conv, err := req.Validate()
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, userID, conv); err != nil {
		return nil, err
	}

	message := &models.Message{
		ID:           uuid.NewString(),
		Conversation: conv,
		UserID:       userID,
		Content:      req.Content,
		CreatedAt:    s.now().UTC(),
		Reactions:    []models.ReactionGroup{},
	}

	if req.ThreadParentID != nil && *req.ThreadParentID != "" {
		parent, err := s.messageRepo.GetByID(ctx, *req.ThreadParentID)
		if errors.Is(err, pkg.ErrNotFound) {
			return nil, fmt.Errorf("%w: thread parent not found", pkg.ErrBadRequest)
		}
		if err != nil {
			return nil, err
		}
		if parent.Conversation != conv {
			return nil, fmt.Errorf("%w: thread parent belongs to a different conversation", pkg.ErrBadRequest)
		}
		if parent.IsThreadReply() {
			return nil, fmt.Errorf("%w: cannot reply to a thread reply", pkg.ErrBadRequest)
		}
		message.ThreadParentID = &parent.ID
	}

	// Mention çözümü okuma yapar; transaction dışında kalır.
	mentioned := s.extractMentions(ctx, message)
	err = s.writer.WithinTx(ctx, func(messages repository.MessageRepository, mentions repository.MentionRepository) error {
		if err := messages.Create(ctx, message); err != nil {
			return err
		}
		return mentions.Create(ctx, message.ID, conv, mentioned, message.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	message.Mentions = mentioned

	// Yazar bilgisini yükle (API response ve WS broadcast için)
	author, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get message author: %w", err)
	}
	public := author.Public()
	message.Author = &public

	s.hub.BroadcastToRoom(ws.ConversationRoom(conv), ws.Event{
		Op:   protocol.OpMessageCreate,
		Data: message,
	})
	if message.IsThreadReply() {
		s.broadcastThreadStats(ctx, *message.ThreadParentID, conv)
	}

	return message, nil
}

// Update, bir mesajı düzenler. Sadece mesaj sahibi düzenleyebilir.
// Mention bildirimleri yeni içeriğe göre baştan oluşturulur.
func (s *messageService) Update(ctx context.Context, id, userID string, req *models.UpdateMessageRequest) (*models.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	message, err := s.messageRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Sahiplik kontrolü — sadece kendi mesajını düzenleyebilirsin
	if message.UserID != userID {
		return nil, fmt.Errorf("%w: you can only edit your own messages", pkg.ErrForbidden)
	}

	editedAt := s.now().UTC()
	message.Content = req.Content
	message.EditedAt = &editedAt
	mentioned := s.extractMentions(ctx, message)

	err = s.writer.WithinTx(ctx, func(messages repository.MessageRepository, mentions repository.MentionRepository) error {
		if err := messages.Update(ctx, id, req.Content, editedAt); err != nil {
			return err
		}
		if err := mentions.DeleteByMessageID(ctx, id); err != nil {
			return err
		}
		return mentions.Create(ctx, id, message.Conversation, mentioned, message.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	message.Mentions = mentioned

	s.hub.BroadcastToRoom(ws.ConversationRoom(message.Conversation), ws.Event{
		Op:   protocol.OpMessageUpdate,
		Data: message,
	})

	return message, nil
}

// Delete, bir mesajı siler. Sadece mesaj sahibi silebilir.
//
// Silinen mesajı watermark olarak kullanan receipt'ler olduğu gibi kalır;
// unread hesaplaması bu durumu "cursor yok" olarak ele alır.
func (s *messageService) Delete(ctx context.Context, id, userID string) error {
	message, err := s.messageRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if message.UserID != userID {
		return fmt.Errorf("%w: you can only delete your own messages", pkg.ErrForbidden)
	}

	err = s.writer.WithinTx(ctx, func(messages repository.MessageRepository, mentions repository.MentionRepository) error {
		if err := mentions.DeleteByMessageID(ctx, id); err != nil {
			return err
		}
		return messages.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.hub.BroadcastToRoom(ws.ConversationRoom(message.Conversation), ws.Event{
		Op: protocol.OpMessageDelete,
		Data: protocol.MessageDeletePayload{
			ID:             id,
			Conversation:   message.Conversation,
			ThreadParentID: message.ThreadParentID,
		},
	})
	if message.IsThreadReply() {
		s.broadcastThreadStats(ctx, *message.ThreadParentID, message.Conversation)
	}

	return nil
}

// AddReaction, kullanıcının reaction'ını ekler ve güncel listeyi yayınlar.
// Aynı emoji ikinci kez eklenirse liste değişmez ama yine yayınlanır.
func (s *messageService) AddReaction(ctx context.Context, messageID, userID, emoji string) ([]models.ReactionGroup, error) {
	emoji, err := normalizeEmoji(emoji)
	if err != nil {
		return nil, err
	}
	msg, err := s.loadAccessible(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.messageRepo.AddReaction(ctx, messageID, userID, emoji, s.now().UTC()); err != nil {
		return nil, err
	}
	return s.broadcastReactions(ctx, msg)
}

// RemoveReaction, kullanıcının reaction'ını kaldırır. Reaction yoksa ErrNotFound.
func (s *messageService) RemoveReaction(ctx context.Context, messageID, userID, emoji string) ([]models.ReactionGroup, error) {
	emoji, err := normalizeEmoji(emoji)
	if err != nil {
		return nil, err
	}
	msg, err := s.loadAccessible(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.messageRepo.RemoveReaction(ctx, messageID, userID, emoji); err != nil {
		return nil, err
	}
	return s.broadcastReactions(ctx, msg)
}

func (s *messageService) broadcastReactions(ctx context.Context, msg *models.Message) ([]models.ReactionGroup, error) {
	reactions, err := s.messageRepo.Reactions(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	s.hub.BroadcastToRoom(ws.ConversationRoom(msg.Conversation), ws.Event{
		Op: protocol.OpReactionUpdate,
		Data: protocol.ReactionUpdatePayload{
			MessageID:    msg.ID,
			Conversation: msg.Conversation,
			Reactions:    reactions,
		},
	})
	return reactions, nil
}

// SetPinned, mesajı sabitler veya sabitlemeyi kaldırır.
// Konuşmanın herhangi bir üyesi sabitleyebilir; durum değişmese de event yayınlanır.
func (s *messageService) SetPinned(ctx context.Context, messageID, userID string, pinned bool) error {
	msg, err := s.loadAccessible(ctx, messageID, userID)
	if err != nil {
		return err
	}
	if msg.IsThreadReply() {
		return fmt.Errorf("%w: thread replies cannot be pinned", pkg.ErrBadRequest)
	}
	if err := s.messageRepo.SetPinned(ctx, messageID, pinned); err != nil {
		return err
	}

	op := protocol.OpMessageUnpin
	payload := protocol.PinPayload{MessageID: messageID, Conversation: msg.Conversation}
	if pinned {
		op = protocol.OpMessagePin
		payload.PinnedBy = userID
	}
	s.hub.BroadcastToRoom(ws.ConversationRoom(msg.Conversation), ws.Event{Op: op, Data: payload})
	return nil
}

// broadcastThreadStats, parent'ın güncel yanıt sayısını yayınlar.
// Hata durumunda sadece loglanır: mesaj zaten kaydedildi, client bir sonraki fetch'te düzelir.
func (s *messageService) broadcastThreadStats(ctx context.Context, parentID string, conv models.Conversation) {
	count, last, err := s.messageRepo.ReplyStats(ctx, parentID)
	if err != nil {
		log.Printf("[message] failed to load thread stats for %s: %v", parentID, err)
		return
	}
	s.hub.BroadcastToRoom(ws.ConversationRoom(conv), ws.Event{
		Op: protocol.OpThreadUpdate,
		Data: protocol.ThreadUpdatePayload{
			ParentID:     parentID,
			Conversation: conv,
			ReplyCount:   count,
			LastReplyAt:  last,
		},
	})
}

// extractMentions, mesaj içeriğindeki @username kalıplarını parse eder ve
// geçerli kullanıcı ID'lerini döner.
//
// Nasıl çalışır:
// 1. Regex ile tüm @username kalıplarını bul
// 2. Her username için DB'de kullanıcı ara (UserRepository.GetByUsername)
// 3. Konuşmanın üyesi olmayanları ve yazarın kendisini atla
//
// Duplicate önleme: Aynı kullanıcı birden fazla kez bahsedilirse
// ID listesinde tek sefer görünür.
func (s *messageService) extractMentions(ctx context.Context, msg *models.Message) []string {
	matches := mentionRegex.FindAllStringSubmatch(msg.Content, -1)
	userIDs := []string{}
	if len(matches) == 0 {
		return userIDs
	}

	members, err := s.conversationRepo.ListMemberIDs(ctx, msg.Conversation)
	if err != nil {
		log.Printf("[mention] failed to list members of %s: %v", msg.Conversation.Key(), err)
		return userIDs
	}
	isMember := make(map[string]bool, len(members))
	for _, id := range members {
		isMember[id] = true
	}

	seen := make(map[string]bool)
	for _, match := range matches {
		username := strings.ToLower(match[1])
		if seen[username] {
			continue
		}
		seen[username] = true

		user, err := s.userRepo.GetByUsername(ctx, username)
		if err != nil {
			continue // Kullanıcı bulunamadı — false positive, skip
		}
		if user.ID == msg.UserID || !isMember[user.ID] {
			continue
		}
		userIDs = append(userIDs, user.ID)
	}
	return userIDs
}

// normalizeEmoji, URL'den gelen emoji parametresini doğrular.
func normalizeEmoji(emoji string) (string, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return "", fmt.Errorf("%w: emoji is required", pkg.ErrBadRequest)
	}
	if utf8.RuneCountInString(emoji) > maxEmojiLength {
		return "", fmt.Errorf("%w: emoji is too long", pkg.ErrBadRequest)
	}
	if strings.IndexFunc(emoji, unicode.IsSpace) >= 0 {
		return "", fmt.Errorf("%w: emoji must not contain whitespace", pkg.ErrBadRequest)
	}
	return emoji, nil
}
