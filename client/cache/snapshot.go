// Package cache, client tarafındaki sorgu cache'lerini push event'lerle
// yamayan saf (pure) fonksiyonları içerir.
//
// Kurallar:
//   - Girdi snapshot'ı ASLA yerinde değiştirilmez; değişiklik varsa yeni snapshot döner.
//   - Değişiklik yoksa aynı pointer döner. Çağıran `next == prev` ile
//     "bir şey değişti mi?" sorusunu ucuzca cevaplayabilir.
//   - Eşleşme bulunamaması hata değildir: silinmiş bir mesaja gelen update
//     bir yarıştır (race), bug değil. Fonksiyonlar hata dönmez.
//
// Sıralama: Infinite ve Flat mesaj listeleri newest-first tutulur (ilk sayfanın
// ilk elemanı en yeni mesaj). Thread yanıtları ise oldest-first (thread.go).
package cache

// Keyed, cache'te tekilleştirilebilen her kayıt.
// models.Message Key() olarak mesaj ID'sini döner.
type Keyed interface {
	Key() string
}

// Page, infinite listenin tek bir sayfası.
// Cursor, bu sayfadan sonraki (daha eski) sayfayı getirmek için kullanılır.
type Page[T Keyed] struct {
	Items  []T
	Cursor string
}

// Infinite, çok sayfalı (scroll ile eski mesajlar yüklenen) snapshot.
// Kanal mesaj geçmişi bu şekilde tutulur.
type Infinite[T Keyed] struct {
	Pages []Page[T]
}

// Flat, tek sayfalık snapshot. DM mesaj geçmişi bu şekilde tutulur.
type Flat[T Keyed] struct {
	Items  []T
	Cursor string
}

// ─── Infinite ───

// PrependInfinite, item'ı ilk sayfanın başına ekler.
// Aynı key herhangi bir sayfada zaten varsa snapshot aynen döner; aynı mesaj
// hem push hem refetch ile gelebilir.
// nil snapshot (henüz yüklenmemiş sorgu) nil kalır.
func PrependInfinite[T Keyed](s *Infinite[T], item T) *Infinite[T] {
	if s == nil {
		return nil
	}
	if _, _, ok := FindInfinite(s, item.Key()); ok {
		return s
	}

	pages := clonePages(s.Pages)
	if len(pages) == 0 {
		pages = []Page[T]{{}}
	}
	pages[0].Items = prepend(pages[0].Items, item)
	return &Infinite[T]{Pages: pages}
}

// UpdateInfinite, key'i eşleşen ilk kaydı item ile değiştirir.
func UpdateInfinite[T Keyed](s *Infinite[T], item T) *Infinite[T] {
	return PatchInfinite(s, item.Key(), func(T) T { return item })
}

// PatchInfinite, key'i eşleşen ilk kaydı fn'in döndürdüğü değerle değiştirir.
// Sayfa sayfa arar; mesaj hangi sayfada olursa olsun bulunur.
func PatchInfinite[T Keyed](s *Infinite[T], key string, fn func(T) T) *Infinite[T] {
	_, page, idx, ok := locate(s, key)
	if !ok {
		return s
	}
	pages := clonePages(s.Pages)
	items := cloneItems(pages[page].Items)
	items[idx] = fn(items[idx])
	pages[page].Items = items
	return &Infinite[T]{Pages: pages}
}

// RemoveInfinite, key'i eşleşen ilk kaydı siler.
func RemoveInfinite[T Keyed](s *Infinite[T], key string) *Infinite[T] {
	_, page, idx, ok := locate(s, key)
	if !ok {
		return s
	}
	pages := clonePages(s.Pages)
	pages[page].Items = removeAt(pages[page].Items, idx)
	return &Infinite[T]{Pages: pages}
}

// FindInfinite, key'i eşleşen kaydı ve bulunduğu sayfa indeksini döner.
func FindInfinite[T Keyed](s *Infinite[T], key string) (T, int, bool) {
	item, page, _, ok := locate(s, key)
	return item, page, ok
}

func locate[T Keyed](s *Infinite[T], key string) (item T, page, idx int, ok bool) {
	if s == nil {
		return item, -1, -1, false
	}
	for p, pg := range s.Pages {
		if i := indexOf(pg.Items, key); i >= 0 {
			return pg.Items[i], p, i, true
		}
	}
	return item, -1, -1, false
}

// ─── Flat ───

// PrependFlat, item'ı listenin başına ekler; key zaten varsa snapshot aynen döner.
func PrependFlat[T Keyed](s *Flat[T], item T) *Flat[T] {
	if s == nil {
		return nil
	}
	if indexOf(s.Items, item.Key()) >= 0 {
		return s
	}
	return &Flat[T]{Items: prepend(s.Items, item), Cursor: s.Cursor}
}

// UpdateFlat, key'i eşleşen ilk kaydı item ile değiştirir.
func UpdateFlat[T Keyed](s *Flat[T], item T) *Flat[T] {
	return PatchFlat(s, item.Key(), func(T) T { return item })
}

// PatchFlat, key'i eşleşen ilk kaydı fn ile dönüştürür.
func PatchFlat[T Keyed](s *Flat[T], key string, fn func(T) T) *Flat[T] {
	if s == nil {
		return nil
	}
	idx := indexOf(s.Items, key)
	if idx < 0 {
		return s
	}
	items := cloneItems(s.Items)
	items[idx] = fn(items[idx])
	return &Flat[T]{Items: items, Cursor: s.Cursor}
}

// RemoveFlat, key'i eşleşen ilk kaydı siler.
func RemoveFlat[T Keyed](s *Flat[T], key string) *Flat[T] {
	if s == nil {
		return nil
	}
	idx := indexOf(s.Items, key)
	if idx < 0 {
		return s
	}
	return &Flat[T]{Items: removeAt(s.Items, idx), Cursor: s.Cursor}
}

// FindFlat, key'i eşleşen kaydı ve listedeki indeksini döner.
func FindFlat[T Keyed](s *Flat[T], key string) (T, int, bool) {
	var zero T
	if s == nil {
		return zero, -1, false
	}
	idx := indexOf(s.Items, key)
	if idx < 0 {
		return zero, -1, false
	}
	return s.Items[idx], idx, true
}

// ─── slice helpers ───
//
// Hepsi yeni backing array üretir; girdi slice'ın paylaşılan array'ine yazılmaz.

func indexOf[T Keyed](items []T, key string) int {
	for i, it := range items {
		if it.Key() == key {
			return i
		}
	}
	return -1
}

func prepend[T any](items []T, item T) []T {
	out := make([]T, 0, len(items)+1)
	out = append(out, item)
	return append(out, items...)
}

func removeAt[T any](items []T, idx int) []T {
	out := make([]T, 0, len(items)-1)
	out = append(out, items[:idx]...)
	return append(out, items[idx+1:]...)
}

func cloneItems[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}

// clonePages, sayfa dilimini kopyalar. Sayfaların Items slice'ları paylaşılır;
// değiştirilecek sayfanın Items'ı çağıran tarafından ayrıca kopyalanır.
func clonePages[T Keyed](pages []Page[T]) []Page[T] {
	out := make([]Page[T], len(pages))
	copy(out, pages)
	return out
}
