// Package ws, WebSocket bağlantı yönetimi ve gerçek zamanlı event dağıtımını sağlar.
//
// Mimari:
//   - Hub: Tüm bağlantıları ve odaları (room) yöneten merkezi yapı (Observer pattern)
//   - Client: Her WebSocket bağlantısını temsil eder, bir durum makinesi taşır
//   - Broker: Oda yayınlarını node'lar arasında taşır (broker paketi)
//
// Event akışı (okuma durumu):
//  1. Client mark_read gönderir → Client.handleMarkRead
//  2. ReadStateMarker (service) watermark'ı ilerletir
//  3. ReadStateBroadcaster, read_state_update'i "user:<id>" odasına yayınlar;
//     DM ise read_receipt_update'i "dm:<id>" odasına da yayınlar
//  4. Hub event'i broker'a verir, broker her node'un yerel oda üyelerine dağıtır
//  5. Her client'ın WritePump'ı event'i WebSocket'e yazar
package ws

import (
	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/protocol"
)

// Event, WebSocket üzerinden giden bir mesaj. Zarf formatı protocol paketindedir;
// ws paketini kullanan service'ler ws.Event yazmaya devam edebilsin diye alias.
type Event = protocol.Event

// broadcastRoom, her bağlantının kayıt sırasında katıldığı genel oda.
// BroadcastToAll (ör. presence) bu odayı kullanır.
const broadcastRoom = "broadcast"

// UserRoom, bir kullanıcının tüm oturumlarının katıldığı oda.
func UserRoom(userID string) string {
	return "user:" + userID
}

// ConversationRoom, kanal veya DM odasının adı ("channel:<id>" / "dm:<id>").
func ConversationRoom(conv models.Conversation) string {
	return conv.Key()
}
