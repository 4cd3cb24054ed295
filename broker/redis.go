package broker

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Redis, oda yayınlarını Redis pub/sub üzerinden dağıtır.
//
// Tüm node'lar aynı kanala abone olur. Redis pub/sub "fire and forget"tır:
// o anda bağlı olmayan node mesajı kaçırır. Okuma durumu için bu kabul
// edilebilir, çünkü client yeniden bağlandığında sayaçları REST'ten tazeler.
type Redis struct {
	client *redis.Client
	topic  string
	nodeID string

	mu     sync.Mutex
	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

// NewRedis, Redis'e bağlanır ve PING ile erişilebilirliği doğrular.
func NewRedis(ctx context.Context, opts Options) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.RedisAddr,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.RedisAddr, err)
	}

	topic := opts.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &Redis{client: client, topic: topic, nodeID: opts.NodeID}, nil
}

func (b *Redis) Publish(ctx context.Context, room string, payload []byte) error {
	data, err := encode(b.nodeID, room, payload)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.topic, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Subscribe, kanala abone olur ve aboneliğin Redis tarafından onaylanmasını bekler.
// Böylece Subscribe döndükten sonra yapılan Publish'ler kaçmaz.
func (b *Redis) Subscribe(ctx context.Context, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return fmt.Errorf("redis broker already subscribed")
	}

	pubsub := b.client.Subscribe(ctx, b.topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to redis topic %s: %w", b.topic, err)
	}
	b.pubsub = pubsub

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		// Channel(), pubsub kapanınca kapanır, döngü kendiliğinden biter
		for msg := range pubsub.Channel() {
			wm, err := decode([]byte(msg.Payload))
			if err != nil {
				log.Printf("[broker] dropping redis message: %v", err)
				continue
			}
			handler(wm.Room, wm.Payload)
		}
	}()
	return nil
}

func (b *Redis) Close() error {
	b.mu.Lock()
	pubsub := b.pubsub
	b.pubsub = nil
	b.mu.Unlock()

	if pubsub != nil {
		if err := pubsub.Close(); err != nil {
			log.Printf("[broker] failed to close redis subscription: %v", err)
		}
	}
	b.wg.Wait()
	return b.client.Close()
}
