package broker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const flushTimeout = 5 * time.Second

// NATS, oda yayınlarını tek bir NATS subject'i üzerinden dağıtır.
// Queue group kullanılmaz: her node her mesajı almalıdır.
type NATS struct {
	conn   *nats.Conn
	topic  string
	nodeID string

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewNATS, NATS sunucusuna bağlanır. Bağlantı koparsa client kendisi yeniden bağlanır.
func NewNATS(opts Options) (*NATS, error) {
	conn, err := nats.Connect(opts.NATSURL,
		nats.Name("mqvi-sync "+opts.NodeID),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[broker] nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[broker] nats reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", opts.NATSURL, err)
	}

	topic := opts.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &NATS{conn: conn, topic: topic, nodeID: opts.NodeID}, nil
}

func (b *NATS) Publish(ctx context.Context, room string, payload []byte) error {
	data, err := encode(b.nodeID, room, payload)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(b.topic, data); err != nil {
		return fmt.Errorf("failed to publish to nats: %w", err)
	}
	return nil
}

// Subscribe, aboneliği açar ve Flush ile sunucuya ulaştığını doğrular.
func (b *NATS) Subscribe(ctx context.Context, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return fmt.Errorf("nats broker already subscribed")
	}

	sub, err := b.conn.Subscribe(b.topic, func(msg *nats.Msg) {
		wm, err := decode(msg.Data)
		if err != nil {
			log.Printf("[broker] dropping nats message: %v", err)
			return
		}
		handler(wm.Room, wm.Payload)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to nats subject %s: %w", b.topic, err)
	}
	if err := b.conn.FlushTimeout(flushTimeout); err != nil {
		sub.Unsubscribe()
		return fmt.Errorf("failed to flush nats subscription: %w", err)
	}
	b.sub = sub
	return nil
}

func (b *NATS) Close() error {
	b.mu.Lock()
	sub := b.sub
	b.sub = nil
	b.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("[broker] failed to unsubscribe from nats: %v", err)
		}
	}
	b.conn.Close()
	return nil
}
