package database

import "time"

// Zaman damgaları DB'de INTEGER unix nanosaniye olarak tutulur.
//
// TEXT/DATETIME yerine neden integer? Unread sayımı "created_at > watermark"
// karşılaştırmasına dayanır ve eşitlik (aynı nanosaniye) anlamlıdır:
// eşit sentAt "okunmuş" sayılır. String formatlarında hassasiyet ve timezone
// farkları bu karşılaştırmayı bozar.

// ToUnixNano, time.Time'ı DB değerine çevirir.
func ToUnixNano(t time.Time) int64 {
	return t.UnixNano()
}

// FromUnixNano, DB değerini UTC time.Time'a çevirir.
func FromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// NullableUnixNano, nullable bir kolonu *time.Time'a çevirir.
func NullableUnixNano(n *int64) *time.Time {
	if n == nil {
		return nil
	}
	t := FromUnixNano(*n)
	return &t
}
