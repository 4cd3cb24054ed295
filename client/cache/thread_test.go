package cache

import (
	"slices"
	"testing"
)

func TestMergeThread(t *testing.T) {
	base := &Thread[item]{Items: items("r3", "r4"), OlderCursor: "r3", NewerCursor: "r4"}

	tests := []struct {
		name        string
		merge       func() *Thread[item]
		want        []string
		wantOlder   string
		wantNewer   string
		wantSameRef bool
	}{
		{
			name:      "newer page is appended",
			merge:     func() *Thread[item] { return MergeThreadNewer(base, items("r5", "r6"), "r6") },
			want:      []string{"r3", "r4", "r5", "r6"},
			wantOlder: "r3",
			wantNewer: "r6",
		},
		{
			name:      "older page is placed before",
			merge:     func() *Thread[item] { return MergeThreadOlder(base, items("r1", "r2"), "r1") },
			want:      []string{"r1", "r2", "r3", "r4"},
			wantOlder: "r1",
			wantNewer: "r4",
		},
		{
			name:      "overlapping newer page drops duplicates",
			merge:     func() *Thread[item] { return MergeThreadNewer(base, items("r4", "r5", "r5"), "r5") },
			want:      []string{"r3", "r4", "r5"},
			wantOlder: "r3",
			wantNewer: "r5",
		},
		{
			name:        "fully duplicate page with same cursor is a no-op",
			merge:       func() *Thread[item] { return MergeThreadNewer(base, items("r3", "r4"), "r4") },
			want:        []string{"r3", "r4"},
			wantOlder:   "r3",
			wantNewer:   "r4",
			wantSameRef: true,
		},
		{
			name:      "first page into empty thread",
			merge:     func() *Thread[item] { return MergeThreadNewer(nil, items("a", "b"), "b") },
			want:      []string{"a", "b"},
			wantNewer: "b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.merge()
			if (got == base) != tt.wantSameRef {
				t.Errorf("same snapshot = %v, want %v", got == base, tt.wantSameRef)
			}
			if !slices.Equal(ids(got.Items), tt.want) {
				t.Errorf("items = %v, want %v", ids(got.Items), tt.want)
			}
			if got.OlderCursor != tt.wantOlder || got.NewerCursor != tt.wantNewer {
				t.Errorf("cursors = (%q, %q), want (%q, %q)", got.OlderCursor, got.NewerCursor, tt.wantOlder, tt.wantNewer)
			}
		})
	}

	if !slices.Equal(ids(base.Items), []string{"r3", "r4"}) {
		t.Errorf("base mutated: %v", ids(base.Items))
	}
}

// Daha önce var olan iki yanıtın birbirine göre sırası hiçbir birleştirmede değişmez.
func TestMergeThreadPreservesRelativeOrder(t *testing.T) {
	th := MergeThreadNewer(nil, items("r2", "r3"), "r3")
	th = MergeThreadOlder(th, items("r1"), "r1")
	th = MergeThreadNewer(th, items("r3", "r4"), "r4")
	th = AppendThread(th, item{id: "r5"})
	th = AppendThread(th, item{id: "r5"})

	if want := []string{"r1", "r2", "r3", "r4", "r5"}; !slices.Equal(ids(th.Items), want) {
		t.Errorf("items = %v, want %v", ids(th.Items), want)
	}
}

func TestPatchAndRemoveThread(t *testing.T) {
	th := &Thread[item]{Items: items("r1", "r2")}

	patched := PatchThread(th, "r2", func(i item) item { i.text = "x"; return i })
	if patched.Items[1].text != "x" || th.Items[1].text != "" {
		t.Error("patch should copy, not mutate")
	}
	if PatchThread(th, "nope", func(i item) item { return i }) != th {
		t.Error("patch missing should return the same thread")
	}
	if got := RemoveThread(th, "r1"); !slices.Equal(ids(got.Items), []string{"r2"}) {
		t.Errorf("remove = %v", ids(got.Items))
	}
	if RemoveThread(th, "nope") != th {
		t.Error("remove missing should return the same thread")
	}
}
