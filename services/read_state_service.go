package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/repository"
)

// DefaultAggregationConcurrency, GetUnreadCounts'taki paralel sorgu sayısı üst sınırı.
// SQLite tek yazarlıdır ama WAL modunda okumalar paralel çalışır.
const DefaultAggregationConcurrency = 8

// ReadStateService, okuma durumu (watermark) iş mantığı interface'i.
//
// Watermark pattern: Her mesajı tek tek "okundu" işaretlemek yerine
// "bu mesaja kadar okudum" bilgisini tutarız. Watermark sadece ileri gider:
// daha eski bir mesajı işaretlemek sessiz bir no-op'tur.
//
// Karşılaştırmalar mesajın gönderim zamanı (sentAt) üzerinden yapılır:
//   - unread: created_at >  watermark sentAt (eşit = okunmuş)
//   - reader: last_read_at >= mesaj sentAt (eşit = görmüş)
type ReadStateService interface {
	// MarkAsRead, advanced=false döndüğünde watermark değişmemiştir ve
	// receipt mevcut kayıttır; bu durumda yayın yapılmamalıdır.
	MarkAsRead(ctx context.Context, userID string, req models.MarkReadRequest) (receipt *models.ReadReceipt, advanced bool, err error)
	GetUnreadCount(ctx context.Context, userID string, conv models.Conversation) (*models.UnreadCount, error)
	GetUnreadCounts(ctx context.Context, userID string) ([]models.UnreadCount, error)
	GetLastReadMessageID(ctx context.Context, userID string, conv models.Conversation) (*string, error)
	GetMessageReaders(ctx context.Context, messageID string, conv models.Conversation, excludeUserID string) ([]models.MessageReader, error)
}

type readStateService struct {
	readStateRepo    repository.ReadStateRepository
	messageRepo      repository.MessageRepository
	conversationRepo repository.ConversationRepository
	mentionRepo      repository.MentionRepository
	concurrency      int
	now              func() time.Time
}

// NewReadStateService, constructor.
// concurrency <= 0 ise DefaultAggregationConcurrency kullanılır.
func NewReadStateService(
	readStateRepo repository.ReadStateRepository,
	messageRepo repository.MessageRepository,
	conversationRepo repository.ConversationRepository,
	mentionRepo repository.MentionRepository,
	concurrency int,
) ReadStateService {
	if concurrency <= 0 {
		concurrency = DefaultAggregationConcurrency
	}
	return &readStateService{
		readStateRepo:    readStateRepo,
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		mentionRepo:      mentionRepo,
		concurrency:      concurrency,
		now:              time.Now,
	}
}

// validateConversation, "tam olarak biri" kuralını servis sınırında tekrar uygular.
// Handler'lar ParseConversation kullanır ama servis başka yerlerden de çağrılabilir.
func validateConversation(conv models.Conversation) error {
	_, err := models.ParseConversation(conv.ChannelID, conv.DMChannelID)
	return err
}

// MarkAsRead, kullanıcının konuşmadaki watermark'ını ilerletir.
//
// Akış:
//  1. İstek doğrulanır (mesaj ID + tam olarak bir konuşma)
//  2. Mesaj var mı ve bu konuşmaya mı ait?
//     Kullanıcı konuşmanın üyesi mi? Değilse ErrForbidden
//  3. Regression guard: mevcut watermark'ın mesajı hâlâ varsa ve sentAt'i
//     yeni mesajınkinden büyük veya eşitse → mevcut receipt aynen döner, yazma yok
//  4. Mevcut watermark'ın mesajı silinmişse guard atlanır — karşılaştıracak cursor yok
//  5. Upsert (last_read_at = şimdi)
//
// Guard okuma-sonra-yazma yapar, kilit almaz: aynı (kullanıcı, konuşma) için
// eşzamanlı iki ilerleme ikisi de guard'ı geçebilir. Bir sonraki ilerleme ile yakınsar.
func (s *readStateService) MarkAsRead(ctx context.Context, userID string, req models.MarkReadRequest) (*models.ReadReceipt, bool, error) {
	conv, err := req.Validate()
	if err != nil {
		return nil, false, err
	}

	target, err := s.resolveMessage(ctx, req.LastReadMessageID, conv)
	if err != nil {
		return nil, false, err
	}

	member, err := s.conversationRepo.IsMember(ctx, userID, conv)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check membership: %w", err)
	}
	if !member {
		return nil, false, fmt.Errorf("%w: not a member of this conversation", pkg.ErrForbidden)
	}

	existing, err := s.getReceipt(ctx, userID, conv)
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		current, err := s.messageRepo.GetRef(ctx, existing.LastReadMessageID)
		switch {
		case err == nil:
			if !current.SentAt.Before(target.SentAt) {
				return existing, false, nil
			}
		case errors.Is(err, pkg.ErrNotFound):
			log.Printf("[read_state] watermark message %s no longer exists (user=%s %s), accepting advance",
				existing.LastReadMessageID, userID, conv.Key())
		default:
			return nil, false, fmt.Errorf("failed to resolve current watermark: %w", err)
		}
	}

	receipt := &models.ReadReceipt{
		UserID:            userID,
		Conversation:      conv,
		LastReadMessageID: target.ID,
		LastReadAt:        s.now().UTC(),
	}
	if err := s.readStateRepo.Upsert(ctx, receipt); err != nil {
		return nil, false, err
	}
	return receipt, true, nil
}

// resolveMessage, mesajın var olduğunu ve verilen konuşmaya ait olduğunu doğrular.
func (s *readStateService) resolveMessage(ctx context.Context, messageID string, conv models.Conversation) (*models.MessageRef, error) {
	ref, err := s.messageRepo.GetRef(ctx, messageID)
	if errors.Is(err, pkg.ErrNotFound) {
		return nil, fmt.Errorf("%w: message not found", pkg.ErrBadRequest)
	}
	if err != nil {
		return nil, err
	}
	if ref.Conversation != conv {
		return nil, fmt.Errorf("%w: message does not belong to conversation", pkg.ErrBadRequest)
	}
	return ref, nil
}

// getReceipt, watermark'ı döner; yoksa (nil, nil).
func (s *readStateService) getReceipt(ctx context.Context, userID string, conv models.Conversation) (*models.ReadReceipt, error) {
	receipt, err := s.readStateRepo.Get(ctx, userID, conv)
	if errors.Is(err, pkg.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// threshold, watermark'ın etkin sentAt'ini döner.
// Receipt yoksa veya referans verdiği mesaj silinmişse nil — tüm mesajlar sayılır.
func (s *readStateService) threshold(ctx context.Context, receipt *models.ReadReceipt) (*time.Time, error) {
	if receipt == nil {
		return nil, nil
	}
	ref, err := s.messageRepo.GetRef(ctx, receipt.LastReadMessageID)
	if errors.Is(err, pkg.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ref.SentAt, nil
}

func (s *readStateService) GetUnreadCount(ctx context.Context, userID string, conv models.Conversation) (*models.UnreadCount, error) {
	if err := validateConversation(conv); err != nil {
		return nil, err
	}

	receipt, err := s.getReceipt(ctx, userID, conv)
	if err != nil {
		return nil, err
	}
	after, err := s.threshold(ctx, receipt)
	if err != nil {
		return nil, err
	}

	unread, err := s.messageRepo.CountUnread(ctx, conv, after)
	if err != nil {
		return nil, err
	}
	mentions, err := s.mentionRepo.CountUnread(ctx, userID, conv, after)
	if err != nil {
		return nil, err
	}

	count := newUnreadCount(conv, receipt)
	count.UnreadCount = unread
	count.MentionCount = mentions
	return &count, nil
}

// GetUnreadCounts, kullanıcının görebildiği her konuşma için unread/mention sayısını döner.
//
// Konuşma başına sorgu atmamak için:
//  1. Receipt'ler, kanallar ve DM'ler paralel üç sorguyla alınır
//  2. Watermark mesajlarının sentAt'leri tek (chunk'lı) sorguyla alınır
//  3. Konuşmalar üç gruba ayrılır: receipt yok / watermark mesajı silinmiş / geçerli watermark
//  4. İlk iki grup eşiksizdir: her biri için tek gruplu COUNT sorgusu
//  5. Geçerli watermark'ların her birinin eşiği farklıdır — sadece bunlar
//     konuşma başına sorgulanır, errgroup ile paralel (SetLimit ile sınırlı)
//
// Mention'lar aynı şekilde: eşiksiz gruplar için tek gruplu sorgu, geçerli
// watermark'lar için konuşma başına paralel sorgu.
func (s *readStateService) GetUnreadCounts(ctx context.Context, userID string) ([]models.UnreadCount, error) {
	var (
		receipts []models.ReadReceipt
		channels []models.Conversation
		dms      []models.Conversation
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		receipts, err = s.readStateRepo.ListByUser(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		channels, err = s.conversationRepo.ListChannels(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		dms, err = s.conversationRepo.ListDMs(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	visible := make([]models.Conversation, 0, len(channels)+len(dms))
	visible = append(visible, channels...)
	visible = append(visible, dms...)

	receiptByKey := make(map[string]*models.ReadReceipt, len(receipts))
	for i := range receipts {
		receiptByKey[receipts[i].Conversation.Key()] = &receipts[i]
	}

	watermarkIDs := make([]string, 0, len(receipts))
	for _, conv := range visible {
		if r, ok := receiptByKey[conv.Key()]; ok {
			watermarkIDs = append(watermarkIDs, r.LastReadMessageID)
		}
	}
	refs, err := s.messageRepo.GetRefs(ctx, watermarkIDs)
	if err != nil {
		return nil, err
	}

	var (
		noReceipt []models.Conversation
		deleted   []models.Conversation
		valid     []thresholdConv
	)
	for _, conv := range visible {
		r, ok := receiptByKey[conv.Key()]
		if !ok {
			noReceipt = append(noReceipt, conv)
			continue
		}
		ref, ok := refs[r.LastReadMessageID]
		if !ok {
			deleted = append(deleted, conv)
			continue
		}
		valid = append(valid, thresholdConv{conv: conv, after: ref.SentAt})
	}

	var (
		noReceiptCounts map[string]int
		deletedCounts   map[string]int
		freeMentions    map[string]int
		validUnread     = make([]int, len(valid))
		validMentions   = make([]int, len(valid))
	)

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	if len(noReceipt) > 0 {
		g.Go(func() (err error) {
			noReceiptCounts, err = s.messageRepo.CountAllGrouped(gctx, noReceipt)
			return err
		})
	}
	if len(deleted) > 0 {
		g.Go(func() (err error) {
			deletedCounts, err = s.messageRepo.CountAllGrouped(gctx, deleted)
			return err
		})
	}
	if thresholdFree := append(append([]models.Conversation{}, noReceipt...), deleted...); len(thresholdFree) > 0 {
		g.Go(func() (err error) {
			freeMentions, err = s.mentionRepo.CountUnreadGrouped(gctx, userID, thresholdFree)
			return err
		})
	}
	for i := range valid {
		tc := valid[i]
		g.Go(func() (err error) {
			validUnread[i], err = s.messageRepo.CountUnread(gctx, tc.conv, &tc.after)
			return err
		})
		g.Go(func() (err error) {
			validMentions[i], err = s.mentionRepo.CountUnread(gctx, userID, tc.conv, &tc.after)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	validIndex := make(map[string]int, len(valid))
	for i, tc := range valid {
		validIndex[tc.conv.Key()] = i
	}

	counts := make([]models.UnreadCount, 0, len(visible))
	for _, conv := range visible {
		key := conv.Key()
		count := newUnreadCount(conv, receiptByKey[key])
		if i, ok := validIndex[key]; ok {
			count.UnreadCount = validUnread[i]
			count.MentionCount = validMentions[i]
		} else {
			// nil map'ten okuma sıfır döner — grup boşsa sorgu hiç atılmamıştır
			count.UnreadCount = noReceiptCounts[key] + deletedCounts[key]
			count.MentionCount = freeMentions[key]
		}
		counts = append(counts, count)
	}
	return counts, nil
}

// thresholdConv, geçerli watermark'ı olan bir konuşma ve onun sentAt eşiği.
type thresholdConv struct {
	conv  models.Conversation
	after time.Time
}

func newUnreadCount(conv models.Conversation, receipt *models.ReadReceipt) models.UnreadCount {
	count := models.UnreadCount{Conversation: conv}
	if receipt != nil {
		id := receipt.LastReadMessageID
		at := receipt.LastReadAt
		count.LastReadMessageID = &id
		count.LastReadAt = &at
	}
	return count
}

func (s *readStateService) GetLastReadMessageID(ctx context.Context, userID string, conv models.Conversation) (*string, error) {
	if err := validateConversation(conv); err != nil {
		return nil, err
	}
	receipt, err := s.getReceipt(ctx, userID, conv)
	if err != nil || receipt == nil {
		return nil, err
	}
	id := receipt.LastReadMessageID
	return &id, nil
}

// GetMessageReaders, mesajı görmüş kullanıcıları ("seen by") döner.
// last_read_at >= mesajın sentAt'i olan receipt'ler okumuş sayılır.
func (s *readStateService) GetMessageReaders(ctx context.Context, messageID string, conv models.Conversation, excludeUserID string) ([]models.MessageReader, error) {
	if err := validateConversation(conv); err != nil {
		return nil, err
	}
	ref, err := s.resolveMessage(ctx, messageID, conv)
	if err != nil {
		return nil, err
	}
	return s.readStateRepo.ListReaders(ctx, conv, ref.SentAt, excludeUserID)
}
