// Package ratelimit — kullanıcı bazlı aksiyon rate limiting.
//
// WS üzerinden gelen "mark_read" istekleri ucuz görünür ama her biri
// 2-3 DB sorgusu + upsert + broadcast demektir. Scroll sırasında çok hızlı
// mark_read gönderen (veya bozuk) bir client'ı sınırlamak için kullanılır.
//
// Tasarım (window + cooldown):
//   - window içinde maxActions aksiyona izin verilir.
//   - Limit aşılınca cooldown süresi boyunca tüm aksiyonlar reddedilir.
//   - Cooldown bitince window sıfırlanır.
package ratelimit

import (
	"sync"
	"time"
)

// bucket, bir key için sayaç ve cooldown bilgisi tutar.
type bucket struct {
	count         int
	windowStart   time.Time
	cooldownUntil time.Time // zero value = cooldown yok
}

// ActionRateLimiter, key (genelde userID) bazlı window + cooldown limiter.
//
// Kullanım:
//
//	limiter := NewActionRateLimiter(20, 5*time.Second, 10*time.Second)
//	if !limiter.Allow(userID) { ... reddet ... }
type ActionRateLimiter struct {
	mu          sync.Mutex
	buckets     map[string]*bucket
	maxActions  int
	window      time.Duration
	cooldown    time.Duration
	now         func() time.Time
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewActionRateLimiter, yeni limiter oluşturur ve arka plan temizleme goroutine'ini başlatır.
func NewActionRateLimiter(maxActions int, window, cooldown time.Duration) *ActionRateLimiter {
	rl := &ActionRateLimiter{
		buckets:     make(map[string]*bucket),
		maxActions:  maxActions,
		window:      window,
		cooldown:    cooldown,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow, key için bir aksiyona izin verilip verilmediğini döner.
//
// Akış:
// 1. Cooldown'daysa → reject.
// 2. Cooldown bitmişse veya window dolmuşsa → yeni pencere başlat.
// 3. Window içindeyse → count artır, max aşıldıysa cooldown başlat.
func (rl *ActionRateLimiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, exists := rl.buckets[key]
	if !exists {
		rl.buckets[key] = &bucket{count: 1, windowStart: now}
		return true
	}

	if !b.cooldownUntil.IsZero() {
		if now.Before(b.cooldownUntil) {
			return false
		}
		b.count = 1
		b.windowStart = now
		b.cooldownUntil = time.Time{}
		return true
	}

	if now.Sub(b.windowStart) > rl.window {
		b.count = 1
		b.windowStart = now
		return true
	}

	b.count++
	if b.count > rl.maxActions {
		b.cooldownUntil = now.Add(rl.cooldown)
		return false
	}

	return true
}

// CooldownSeconds, kalan cooldown süresini saniye cinsinden döner (yoksa 0).
// HTTP Retry-After header değeri olarak kullanılır.
func (rl *ActionRateLimiter) CooldownSeconds(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, exists := rl.buckets[key]
	if !exists || b.cooldownUntil.IsZero() {
		return 0
	}

	remaining := b.cooldownUntil.Sub(rl.now())
	if remaining <= 0 {
		return 0
	}
	// +1 yuvarlama: client'ın tam süreyi beklemesi için
	return int(remaining.Seconds()) + 1
}

// Close, temizleme goroutine'ini durdurur. Birden fazla çağrılabilir.
func (rl *ActionRateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

func (rl *ActionRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup, hem window'u hem cooldown'u bitmiş bucket'ları siler.
func (rl *ActionRateLimiter) cleanup() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, b := range rl.buckets {
		windowExpired := now.Sub(b.windowStart) > rl.window
		cooldownExpired := b.cooldownUntil.IsZero() || now.After(b.cooldownUntil)
		if windowExpired && cooldownExpired {
			delete(rl.buckets, key)
		}
	}
}
