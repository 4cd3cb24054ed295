// Package querycache — client tarafı sorgu cache'i (stale-while-revalidate).
//
// Store, key → son bilinen sorgu sonucu eşlemesini tutar. Her kaydın bir
// "stale" (bayat) bayrağı vardır:
//
//   - Get her zaman elindeki veriyi HEMEN döner; kayıt bayatsa arka planda
//     tek bir yeniden yükleme (refetch) başlatır. UI asla fetch'i beklemez.
//   - MarkStale kayıtları silmez, sadece bayat işaretler. Yeniden bağlanmada
//     kaçırılmış olabilecek her liste bu şekilde işaretlenir.
//   - Set ve Update (push event'ler) ile fetch sonuçları geliş sırasına göre
//     uygulanır: sonra gelen kazanır. Uçuştaki fetch iptal edilmez.
//
// Thread safety: sync.Mutex ile korunur. Fetcher'lar ayrı goroutine'lerde
// çalışır ve Store'a sadece sonuç yazarken kilit alır.
package querycache

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
)

// Fetcher, bir key'in güncel değerini server'dan getirir.
type Fetcher func(ctx context.Context, key string) (any, error)

// Options, Store ayarları.
type Options struct {
	// StaleTime: bir sonuç bu süreden eskiyse Get'te bayat sayılır.
	// 0 ise sonuçlar sadece MarkStale ile bayatlar.
	StaleTime time.Duration
	// GCTime: bu süre boyunca okunmayan kayıtlar periyodik temizlemede silinir.
	// 0 ise kayıtlar hiç silinmez.
	GCTime time.Duration
	// CleanupInterval: periyodik temizleme aralığı (varsayılan 1 dakika).
	CleanupInterval time.Duration
}

// entry, cache'teki tek bir kayıt.
type entry struct {
	value      any
	hasValue   bool
	stale      bool
	fetching   bool
	gen        uint64 // MarkStale her çağrıldığında artar
	updatedAt  time.Time
	accessedAt time.Time
}

type prefixFetcher struct {
	prefix string
	fetch  Fetcher
}

// Store, stale-while-revalidate sorgu cache'i.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*entry
	fetchers []prefixFetcher
	opts     Options
	now      func() time.Time

	// ctx, uçuştaki fetch'lere verilir; Close ile iptal edilir.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// New, Store oluşturur ve GCTime verilmişse periyodik temizleme goroutine'ini başlatır.
func New(opts Options) *Store {
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		entries:     make(map[string]*entry),
		opts:        opts,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		stopCleanup: make(chan struct{}),
	}

	if opts.GCTime > 0 {
		go func() {
			ticker := time.NewTicker(opts.CleanupInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					s.evictIdle()
				case <-s.stopCleanup:
					return
				}
			}
		}()
	}

	return s
}

// Register, prefix ile başlayan key'ler için fetcher kaydeder.
// Birden fazla prefix eşleşirse en uzunu kullanılır.
func (s *Store) Register(prefix string, f Fetcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchers = append(s.fetchers, prefixFetcher{prefix: prefix, fetch: f})
}

func (s *Store) fetcherFor(key string) Fetcher {
	var best prefixFetcher
	for _, pf := range s.fetchers {
		if strings.HasPrefix(key, pf.prefix) && len(pf.prefix) >= len(best.prefix) && pf.fetch != nil {
			best = pf
		}
	}
	return best.fetch
}

// Get, key'in cache'teki değerini döner.
//
// Kayıt yoksa veya bayatsa, zaten uçuşta bir fetch yoksa arka planda tek
// bir fetch başlatılır. Dönüş beklemez: (value, true) eldeki veridir,
// veri hiç yüklenmemişse (nil, false).
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{stale: true}
		s.entries[key] = e
	}
	e.accessedAt = now

	if s.opts.StaleTime > 0 && e.hasValue && now.Sub(e.updatedAt) > s.opts.StaleTime {
		e.stale = true
	}
	if e.stale || !e.hasValue {
		s.startFetchLocked(key, e)
	}
	return e.value, e.hasValue
}

// Load, Get'in tipli hali. Değer T değilse (nil, false) gibi davranır.
func Load[T any](s *Store, key string) (T, bool) {
	v, ok := s.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// Peek, fetch tetiklemeden ve erişim zamanını güncellemeden değeri döner.
func (s *Store) Peek(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || !e.hasValue {
		return nil, false
	}
	return e.value, true
}

// Set, key'e taze bir değer yazar.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{accessedAt: s.now()}
		s.entries[key] = e
	}
	e.value = value
	e.hasValue = true
	e.stale = false
	e.updatedAt = s.now()
}

// Update, cache'te T tipinde bir değer varsa fn ile dönüştürür.
//
// Push event'ler bu yolla uygulanır. Bayat bayrağına dokunulmaz: push bir
// listeyi yamasa da bağlantı kopukken kaçırılan event'ler hâlâ eksik olabilir.
// Kayıt yoksa false döner; yüklenmemiş bir sorgu yamalanmaz.
func Update[T any](s *Store, key string, fn func(T) T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.hasValue {
		return false
	}
	current, ok := e.value.(T)
	if !ok {
		return false
	}
	e.value = fn(current)
	return true
}

// UpdatePrefix, prefix ile başlayan ve T tipinde olan tüm kayıtları dönüştürür.
// Dönüştürülen kayıt sayısını döner.
func UpdatePrefix[T any](s *Store, prefix string, fn func(key string, v T) T) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, e := range s.entries {
		if !e.hasValue || !strings.HasPrefix(key, prefix) {
			continue
		}
		if current, ok := e.value.(T); ok {
			e.value = fn(key, current)
			n++
		}
	}
	return n
}

// MarkStale, verilen prefix'lerden biriyle başlayan tüm kayıtları bayat işaretler.
// Kayıtlar silinmez; bir sonraki Get arka plan fetch'ini tetikler.
// İşaretlenen kayıt sayısını döner.
func (s *Store) MarkStale(prefixes ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, e := range s.entries {
		for _, p := range prefixes {
			if strings.HasPrefix(key, p) {
				e.stale = true
				e.gen++
				n++
				break
			}
		}
	}
	return n
}

// IsStale, kaydın bayat olup olmadığını döner. Kayıt yoksa true.
func (s *Store) IsStale(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return !ok || e.stale
}

// Delete, kaydı tamamen siler.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len, cache'teki kayıt sayısı.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Wait, uçuştaki tüm fetch'lerin bitmesini bekler.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Close, periyodik temizlemeyi durdurur ve uçuştaki fetch'lerin context'ini iptal eder.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
		s.cancel()
	})
	s.wg.Wait()
}

// startFetchLocked, kayıt için fire-and-forget fetch başlatır. s.mu tutulmalıdır.
func (s *Store) startFetchLocked(key string, e *entry) {
	if e.fetching || s.ctx.Err() != nil {
		return
	}
	f := s.fetcherFor(key)
	if f == nil {
		return
	}
	e.fetching = true
	gen := e.gen

	s.wg.Add(1)
	go s.fetch(key, f, gen)
}

func (s *Store) fetch(key string, f Fetcher, gen uint64) {
	defer s.wg.Done()

	value, err := f(s.ctx, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		// Fetch sürerken silindi (Delete/GC); sonuç yine de cache'e girer.
		e = &entry{accessedAt: s.now()}
		s.entries[key] = e
	}
	e.fetching = false

	if err != nil {
		// Kayıt bayat kalır; bir sonraki Get tekrar dener.
		if s.ctx.Err() == nil {
			log.Printf("[client] refetch %s failed: %v", key, err)
		}
		return
	}

	e.value = value
	e.hasValue = true
	e.updatedAt = s.now()
	// Fetch sürerken MarkStale çağrıldıysa sonuç o işaretlemeden önceki
	// durumu yansıtıyor olabilir; kayıt bayat kalır.
	e.stale = e.gen != gen
}

// evictIdle, GCTime boyunca okunmamış kayıtları siler.
func (s *Store) evictIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, e := range s.entries {
		if !e.fetching && now.Sub(e.accessedAt) > s.opts.GCTime {
			delete(s.entries, key)
		}
	}
}
