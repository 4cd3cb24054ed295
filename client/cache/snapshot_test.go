package cache

import (
	"reflect"
	"slices"
	"testing"
)

type item struct {
	id   string
	text string
}

func (i item) Key() string { return i.id }

func items(ids ...string) []item {
	out := make([]item, len(ids))
	for i, id := range ids {
		out[i] = item{id: id}
	}
	return out
}

func ids[T Keyed](list []T) []string {
	out := make([]string, len(list))
	for i, it := range list {
		out[i] = it.Key()
	}
	return out
}

func twoPages() *Infinite[item] {
	return &Infinite[item]{Pages: []Page[item]{
		{Items: items("m5", "m4", "m3"), Cursor: "m3"},
		{Items: items("m2", "m1"), Cursor: ""},
	}}
}

func TestPrependInfinite(t *testing.T) {
	s := twoPages()
	before := ids(s.Pages[0].Items)

	next := PrependInfinite(s, item{id: "m6"})
	if next == s {
		t.Fatal("expected a new snapshot")
	}
	if got := ids(next.Pages[0].Items); !slices.Equal(got, []string{"m6", "m5", "m4", "m3"}) {
		t.Errorf("first page = %v", got)
	}
	if got := ids(s.Pages[0].Items); !slices.Equal(got, before) {
		t.Errorf("input mutated: %v", got)
	}

	// Sonraki sayfadaki bir mesajın tekrarı bile snapshot'ı değiştirmez.
	if again := PrependInfinite(next, item{id: "m1"}); again != next {
		t.Error("duplicate from a later page should return the same snapshot")
	}
}

func TestPrependIsIdempotent(t *testing.T) {
	tests := []struct {
		name string
		s    *Infinite[item]
		m    item
	}{
		{name: "new item", s: twoPages(), m: item{id: "m9"}},
		{name: "existing item", s: twoPages(), m: item{id: "m4"}},
		{name: "empty snapshot", s: &Infinite[item]{}, m: item{id: "m1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := PrependInfinite(tt.s, tt.m)
			twice := PrependInfinite(once, tt.m)
			if twice != once {
				t.Error("second prepend returned a different snapshot")
			}
			if !reflect.DeepEqual(once, twice) {
				t.Errorf("prepend(prepend(S, m), m) = %+v, want %+v", twice, once)
			}
		})
	}

	flat := &Flat[item]{Items: items("b", "a"), Cursor: "a"}
	once := PrependFlat(flat, item{id: "c"})
	if twice := PrependFlat(once, item{id: "c"}); twice != once {
		t.Error("flat prepend not idempotent")
	}
	if once.Cursor != "a" {
		t.Errorf("cursor = %q, want a", once.Cursor)
	}
}

func TestPrependNilSnapshot(t *testing.T) {
	if got := PrependInfinite[item](nil, item{id: "x"}); got != nil {
		t.Error("nil infinite should stay nil")
	}
	if got := PrependFlat[item](nil, item{id: "x"}); got != nil {
		t.Error("nil flat should stay nil")
	}
}

func TestUpdateRemoveFindInfinite(t *testing.T) {
	s := twoPages()

	updated := UpdateInfinite(s, item{id: "m2", text: "edited"})
	if updated == s {
		t.Fatal("update of an item on page 2 should produce a new snapshot")
	}
	got, page, ok := FindInfinite(updated, "m2")
	if !ok || page != 1 || got.text != "edited" {
		t.Errorf("find = %+v page=%d ok=%v", got, page, ok)
	}
	if orig, _, _ := FindInfinite(s, "m2"); orig.text != "" {
		t.Error("input mutated by update")
	}
	// Değişmeyen sayfa paylaşılır.
	if &updated.Pages[0].Items[0] != &s.Pages[0].Items[0] {
		t.Error("untouched page should share its backing array")
	}

	removed := RemoveInfinite(updated, "m4")
	if got := ids(removed.Pages[0].Items); !slices.Equal(got, []string{"m5", "m3"}) {
		t.Errorf("after remove = %v", got)
	}
	if len(updated.Pages[0].Items) != 3 {
		t.Error("input mutated by remove")
	}

	for name, fn := range map[string]func() *Infinite[item]{
		"update missing": func() *Infinite[item] { return UpdateInfinite(s, item{id: "nope"}) },
		"remove missing": func() *Infinite[item] { return RemoveInfinite(s, "nope") },
	} {
		if fn() != s {
			t.Errorf("%s: expected same snapshot", name)
		}
	}
	if _, page, ok := FindInfinite(s, "nope"); ok || page != -1 {
		t.Errorf("find missing = page %d ok %v", page, ok)
	}
}

func TestFlatOperations(t *testing.T) {
	s := &Flat[item]{Items: items("c", "b", "a"), Cursor: "a"}

	tests := []struct {
		name    string
		apply   func() *Flat[item]
		want    []string
		sameRef bool
	}{
		{name: "update", apply: func() *Flat[item] { return UpdateFlat(s, item{id: "b", text: "x"}) }, want: []string{"c", "b", "a"}},
		{name: "update missing", apply: func() *Flat[item] { return UpdateFlat(s, item{id: "z"}) }, want: []string{"c", "b", "a"}, sameRef: true},
		{name: "remove", apply: func() *Flat[item] { return RemoveFlat(s, "c") }, want: []string{"b", "a"}},
		{name: "remove missing", apply: func() *Flat[item] { return RemoveFlat(s, "z") }, want: []string{"c", "b", "a"}, sameRef: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.apply()
			if (got == s) != tt.sameRef {
				t.Errorf("same snapshot = %v, want %v", got == s, tt.sameRef)
			}
			if !slices.Equal(ids(got.Items), tt.want) {
				t.Errorf("items = %v, want %v", ids(got.Items), tt.want)
			}
			if got.Cursor != "a" {
				t.Errorf("cursor = %q", got.Cursor)
			}
		})
	}

	if it, idx, ok := FindFlat(s, "a"); !ok || idx != 2 || it.id != "a" {
		t.Errorf("find = %+v %d %v", it, idx, ok)
	}
	if !slices.Equal(ids(s.Items), []string{"c", "b", "a"}) {
		t.Error("input mutated")
	}
}
