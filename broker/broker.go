// Package broker, WebSocket oda yayınlarını node'lar arasında dağıtır.
//
// Tek node'da Hub, bir odaya gönderilen event'i doğrudan yerel client'lara
// iletebilir. Birden fazla server instance'ı çalıştığında ise A node'una bağlı
// kullanıcının okuma durumu, B node'una bağlı diğer oturumlarına da ulaşmalıdır.
//
// Akış:
//  1. Hub event'i serialize eder ve Broker.Publish(room, payload) çağırır
//  2. Broker mesajı tüm node'lara (kendisi dahil) dağıtır
//  3. Her node'un Subscribe handler'ı odanın YEREL üyelerine iletir
//
// Yerel teslimat da broker üzerinden geçer: tek node ve çok node aynı kod yolunu izler.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultTopic, tüm oda yayınlarının aktığı tek Redis kanalı / NATS subject'i.
// Oda adı mesajın içindedir; oda başına subject açılmaz.
const DefaultTopic = "mqvi.rooms"

// ErrClosed, kapatılmış bir broker kullanıldığında döner.
var ErrClosed = errors.New("broker closed")

// Handler, broker'dan gelen her oda yayını için çağrılır.
type Handler func(room string, payload []byte)

// Broker, oda yayınlarını taşıyan transport soyutlaması.
type Broker interface {
	Publish(ctx context.Context, room string, payload []byte) error
	// Subscribe, handler'ı tüm odaların yayınlarına bağlar.
	// Handler, broker'ın kendi goroutine'inden çağrılır; bloklamamalıdır.
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

// Kind, yapılandırmadaki BROKER değeri.
type Kind string

const (
	KindLocal Kind = "local"
	KindRedis Kind = "redis"
	KindNATS  Kind = "nats"
)

// Options, Open'ın ihtiyaç duyduğu bağlantı bilgileri.
type Options struct {
	Kind   Kind
	NodeID string
	Topic  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NATSURL string
}

// Open, seçilen broker'ı oluşturur ve bağlantısını doğrular.
func Open(ctx context.Context, opts Options) (Broker, error) {
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}
	switch opts.Kind {
	case "", KindLocal:
		return NewLocal(), nil
	case KindRedis:
		return NewRedis(ctx, opts)
	case KindNATS:
		return NewNATS(opts)
	default:
		return nil, fmt.Errorf("unknown broker kind %q", opts.Kind)
	}
}

// wireMessage, node'lar arası taşınan zarf.
type wireMessage struct {
	Room    string          `json:"room"`
	Origin  string          `json:"origin,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

func encode(origin, room string, payload []byte) ([]byte, error) {
	if room == "" {
		return nil, errors.New("room is required")
	}
	data, err := json.Marshal(wireMessage{Room: room, Origin: origin, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode broker message: %w", err)
	}
	return data, nil
}

func decode(data []byte) (wireMessage, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("failed to decode broker message: %w", err)
	}
	if msg.Room == "" {
		return msg, errors.New("broker message without room")
	}
	return msg, nil
}
