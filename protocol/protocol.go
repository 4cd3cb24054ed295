// Package protocol, WebSocket üzerinden taşınan event kataloğunu tanımlar.
//
// Hem server (ws paketi) hem client (client/... paketleri) bu paketi kullanır:
// op isimleri ve payload şekilleri tek yerde tanımlanır.
//
// Zarf (envelope) formatı:
//
//	{"op": "read_state_update", "d": {...}, "seq": 42, "nonce": "abc"}
//
// Op kapalı bir kümedir: her op için catalog'da bir payload fabrikası bulunur.
// Dispatch string eşleştirme ile değil, map[Op]... lookup tablosu ile yapılır.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Op, event türü.
type Op string

// Client → Server operasyonları
const (
	OpHeartbeat      Op = "heartbeat"       // Client her 30sn'de gönderir — "hâlâ bağlıyım" sinyali
	OpMarkRead       Op = "mark_read"       // "Bu mesaja kadar okudum"
	OpSubscribeRooms Op = "subscribe_rooms" // Üye olunan tüm kanal/DM odalarına katıl
)

// Server → Client operasyonları
const (
	OpReady             Op = "ready"               // Bağlantı aktif olduğunda ilk gönderilen
	OpHeartbeatAck      Op = "heartbeat_ack"       // Heartbeat'e yanıt — "seni duydum"
	OpError             Op = "error"               // Bir client isteği başarısız oldu
	OpReadStateUpdate   Op = "read_state_update"   // Kullanıcının kendi oturumlarına: watermark ilerledi
	OpReadReceiptUpdate Op = "read_receipt_update" // DM katılımcılarına: "X şu mesaja kadar gördü"
	OpMessageCreate     Op = "message_create"
	OpMessageUpdate     Op = "message_update"
	OpMessageDelete     Op = "message_delete"
	OpReactionUpdate    Op = "reaction_update"
	OpMessagePin        Op = "message_pin"
	OpMessageUnpin      Op = "message_unpin"
	OpThreadUpdate      Op = "thread_update" // Thread parent'ının yanıt sayısı değişti
)

// İki yönlü: client durum seçer, server herkese yayınlar.
const OpPresenceUpdate Op = "presence_update"

// ErrUnknownOp, katalogda olmayan bir op decode edilmeye çalışıldığında döner.
var ErrUnknownOp = errors.New("unknown op")

// Event, server'ın gönderdiği (outbound) zarf.
//
// Seq (sequence number): Her outbound event'e verilen artan sayı.
// Client eksik event tespit etmek için seq'i takip edebilir.
// Nonce: client isteğine bağlı yanıtlarda (error) isteğin nonce'u geri döner.
type Event struct {
	Op    Op     `json:"op"`
	Data  any    `json:"d,omitempty"`
	Seq   int64  `json:"seq,omitempty"`
	Nonce string `json:"nonce,omitempty"`
}

// Envelope, decode edilmemiş (inbound) zarf. Data, op'a göre sonradan çözülür.
type Envelope struct {
	Op    Op              `json:"op"`
	Data  json.RawMessage `json:"d,omitempty"`
	Seq   int64           `json:"seq,omitempty"`
	Nonce string          `json:"nonce,omitempty"`
}

// serverCatalog: server → client op'ları ve payload fabrikaları.
var serverCatalog = map[Op]func() any{
	OpReady:             func() any { return new(ReadyPayload) },
	OpHeartbeatAck:      func() any { return new(struct{}) },
	OpError:             func() any { return new(ErrorPayload) },
	OpReadStateUpdate:   func() any { return new(ReadStateUpdatePayload) },
	OpReadReceiptUpdate: func() any { return new(ReadReceiptUpdatePayload) },
	OpMessageCreate:     func() any { return new(MessagePayload) },
	OpMessageUpdate:     func() any { return new(MessagePayload) },
	OpMessageDelete:     func() any { return new(MessageDeletePayload) },
	OpReactionUpdate:    func() any { return new(ReactionUpdatePayload) },
	OpMessagePin:        func() any { return new(PinPayload) },
	OpMessageUnpin:      func() any { return new(PinPayload) },
	OpThreadUpdate:      func() any { return new(ThreadUpdatePayload) },
	OpPresenceUpdate:    func() any { return new(PresencePayload) },
}

// clientCatalog: client → server op'ları.
var clientCatalog = map[Op]func() any{
	OpHeartbeat:      func() any { return new(struct{}) },
	OpMarkRead:       func() any { return new(MarkReadPayload) },
	OpSubscribeRooms: func() any { return new(struct{}) },
	OpPresenceUpdate: func() any { return new(PresencePayload) },
}

// ServerOps, server'ın gönderebileceği tüm op'ları sıralı döner.
// Client event bus'ı her biri için tek bir transport listener kaydeder.
func ServerOps() []Op {
	return sortedOps(serverCatalog)
}

// ClientOps, client'ın gönderebileceği tüm op'ları sıralı döner.
func ClientOps() []Op {
	return sortedOps(clientCatalog)
}

func sortedOps(catalog map[Op]func() any) []Op {
	ops := make([]Op, 0, len(catalog))
	for op := range catalog {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// IsServerOp, op'un server → client kataloğunda olup olmadığını döner.
func IsServerOp(op Op) bool {
	_, ok := serverCatalog[op]
	return ok
}

// IsClientOp, op'un client → server kataloğunda olup olmadığını döner.
func IsClientOp(op Op) bool {
	_, ok := clientCatalog[op]
	return ok
}

// DecodeServer, server'dan gelen zarfın payload'ını katalogdaki tipe çözer.
// Dönen değer her zaman pointer'dır (*ReadStateUpdatePayload gibi).
func DecodeServer(env Envelope) (any, error) {
	return decode(serverCatalog, env)
}

// DecodeClient, client'tan gelen zarfın payload'ını çözer.
func DecodeClient(env Envelope) (any, error) {
	return decode(clientCatalog, env)
}

func decode(catalog map[Op]func() any, env Envelope) (any, error) {
	factory, ok := catalog[env.Op]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, env.Op)
	}
	payload := factory()
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return payload, nil
	}
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", env.Op, err)
	}
	return payload, nil
}

// DecodeInto, zarfın payload'ını doğrudan T tipine çözer.
//
// Generic helper — çağıran hangi tipi beklediğini biliyorsa catalog'a
// gitmeden type-safe decode sağlar:
//
//	p, err := protocol.DecodeInto[protocol.ReadStateUpdatePayload](env)
func DecodeInto[T any](env Envelope) (T, error) {
	var v T
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, fmt.Errorf("invalid %s payload: %w", env.Op, err)
	}
	return v, nil
}

// NewEnvelope, giden bir client isteğini zarf haline getirir.
func NewEnvelope(op Op, data any, nonce string) (Envelope, error) {
	env := Envelope{Op: op, Nonce: nonce}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", op, err)
	}
	env.Data = raw
	return env, nil
}

// ToEnvelope, server event'ini client tarafındaki decode edilmemiş forma çevirir.
// Testlerde ve aynı process içindeki client'larda kullanılır.
func (e Event) ToEnvelope() (Envelope, error) {
	env, err := NewEnvelope(e.Op, e.Data, e.Nonce)
	if err != nil {
		return Envelope{}, err
	}
	env.Seq = e.Seq
	return env, nil
}
