package cache

// Thread, bir thread'in yanıtları. Mesaj listelerinin aksine oldest-first
// (kronolojik artan) tutulur: ekranda yukarıdan aşağıya okunur.
//
// OlderCursor daha eski yanıtları, NewerCursor daha yenileri getirmek içindir.
type Thread[T Keyed] struct {
	Items       []T
	OlderCursor string
	NewerCursor string
}

// MergeThreadNewer, daha yeni yanıtlardan oluşan sayfayı mevcut yanıtların
// SONUNA ekler. page kendi içinde artan sıradadır.
//
// Başa eklemek kronolojik sırayı tersine çevirirdi. Zaten var olan yanıtlar
// atlanır, mevcut yanıtların birbirine göre sırası hiç değişmez.
func MergeThreadNewer[T Keyed](t *Thread[T], page []T, newerCursor string) *Thread[T] {
	if t == nil {
		return &Thread[T]{Items: dedupe(nil, page), NewerCursor: newerCursor}
	}
	fresh := dedupe(t.Items, page)
	if len(fresh) == 0 && newerCursor == t.NewerCursor {
		return t
	}
	items := make([]T, 0, len(t.Items)+len(fresh))
	items = append(items, t.Items...)
	items = append(items, fresh...)
	return &Thread[T]{Items: items, OlderCursor: t.OlderCursor, NewerCursor: newerCursor}
}

// MergeThreadOlder, daha eski yanıtlardan oluşan sayfayı mevcut yanıtların
// ÖNÜNE yerleştirir.
func MergeThreadOlder[T Keyed](t *Thread[T], page []T, olderCursor string) *Thread[T] {
	if t == nil {
		return &Thread[T]{Items: dedupe(nil, page), OlderCursor: olderCursor}
	}
	fresh := dedupe(t.Items, page)
	if len(fresh) == 0 && olderCursor == t.OlderCursor {
		return t
	}
	items := make([]T, 0, len(t.Items)+len(fresh))
	items = append(items, fresh...)
	items = append(items, t.Items...)
	return &Thread[T]{Items: items, OlderCursor: olderCursor, NewerCursor: t.NewerCursor}
}

// AppendThread, push ile gelen tek bir yeni yanıtı sona ekler (varsa atlar).
func AppendThread[T Keyed](t *Thread[T], item T) *Thread[T] {
	if t == nil {
		return nil
	}
	if indexOf(t.Items, item.Key()) >= 0 {
		return t
	}
	items := make([]T, 0, len(t.Items)+1)
	items = append(items, t.Items...)
	items = append(items, item)
	return &Thread[T]{Items: items, OlderCursor: t.OlderCursor, NewerCursor: t.NewerCursor}
}

// PatchThread, key'i eşleşen yanıtı fn ile dönüştürür.
func PatchThread[T Keyed](t *Thread[T], key string, fn func(T) T) *Thread[T] {
	if t == nil {
		return nil
	}
	idx := indexOf(t.Items, key)
	if idx < 0 {
		return t
	}
	items := cloneItems(t.Items)
	items[idx] = fn(items[idx])
	return &Thread[T]{Items: items, OlderCursor: t.OlderCursor, NewerCursor: t.NewerCursor}
}

// RemoveThread, key'i eşleşen yanıtı siler.
func RemoveThread[T Keyed](t *Thread[T], key string) *Thread[T] {
	if t == nil {
		return nil
	}
	idx := indexOf(t.Items, key)
	if idx < 0 {
		return t
	}
	return &Thread[T]{Items: removeAt(t.Items, idx), OlderCursor: t.OlderCursor, NewerCursor: t.NewerCursor}
}

// dedupe, page'den existing'de (ve page'in kendi önceki elemanlarında)
// bulunmayanları sırası korunarak döner.
func dedupe[T Keyed](existing, page []T) []T {
	seen := make(map[string]struct{}, len(existing)+len(page))
	for _, it := range existing {
		seen[it.Key()] = struct{}{}
	}
	out := make([]T, 0, len(page))
	for _, it := range page {
		if _, dup := seen[it.Key()]; dup {
			continue
		}
		seen[it.Key()] = struct{}{}
		out = append(out, it)
	}
	return out
}
