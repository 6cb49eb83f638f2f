package contacts

import (
	"reflect"
	"testing"

	"github.com/otaviofr/convo/internal/store"
)

func TestBuildIndexLatin(t *testing.T) {
	index := BuildIndex([]store.Identity{
		{UserID: "u1", DisplayName: "alice"},
		{UserID: "u2", DisplayName: "Bob"},
		{UserID: "u3", DisplayName: "Anna"},
	})

	a := index["A"]
	if len(a) != 2 || a[0].DisplayName != "Anna" || a[1].DisplayName != "alice" {
		t.Fatalf("unexpected A bucket %+v", a)
	}
	if len(index["B"]) != 1 {
		t.Fatalf("unexpected B bucket %+v", index["B"])
	}
}

func TestBuildIndexHan(t *testing.T) {
	index := BuildIndex([]store.Identity{
		{UserID: "u1", DisplayName: "张伟"}, // zhang -> Z
		{UserID: "u2", DisplayName: "李娜"}, // li -> L
	})

	if len(index["Z"]) != 1 || index["Z"][0].UserID != "u1" {
		t.Fatalf("expected 张伟 in Z, got %+v", index["Z"])
	}
	if len(index["L"]) != 1 || index["L"][0].UserID != "u2" {
		t.Fatalf("expected 李娜 in L, got %+v", index["L"])
	}
}

func TestBuildIndexCatchAll(t *testing.T) {
	index := BuildIndex([]store.Identity{
		{UserID: "u1", DisplayName: "123go"},
		{UserID: "u2", DisplayName: "+crew"},
		{UserID: "u3", DisplayName: "Жанна"},
		{UserID: "u4", DisplayName: ""},
	})

	if len(index[CatchAll]) != 3 {
		t.Fatalf("unexpected catch-all bucket %+v", index[CatchAll])
	}
	// A blank display name buckets by user id instead.
	if len(index["U"]) != 1 || index["U"][0].UserID != "u4" {
		t.Fatalf("expected id fallback in U, got %+v", index["U"])
	}
}

func TestBucketKeysOrder(t *testing.T) {
	index := BuildIndex([]store.Identity{
		{UserID: "u1", DisplayName: "zoe"},
		{UserID: "u2", DisplayName: "!ops"},
		{UserID: "u3", DisplayName: "alice"},
	})

	got := BucketKeys(index)
	want := []string{"A", "Z", CatchAll}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got keys %v, want %v", got, want)
	}
}

func TestBuildIndexDeterministic(t *testing.T) {
	a := []store.Identity{
		{UserID: "u1", DisplayName: "alice"},
		{UserID: "u2", DisplayName: "alice"},
		{UserID: "u3", DisplayName: "Bob"},
	}
	b := []store.Identity{a[2], a[1], a[0]}

	first := BuildIndex(a)
	second := BuildIndex(b)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("index depends on input order:\n%+v\n%+v", first, second)
	}
	if got := first["A"]; got[0].UserID != "u1" || got[1].UserID != "u2" {
		t.Fatalf("ties must break by user id, got %+v", got)
	}
}
