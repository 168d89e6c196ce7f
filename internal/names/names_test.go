package names

import (
	"testing"

	"github.com/lua-family/delua/internal/arena"
)

func TestGetOrAddInterns(t *testing.T) {
	tbl := New(arena.New())
	a := tbl.GetOrAdd("foo")
	b := tbl.GetOrAdd("foo")
	if a != b {
		t.Fatalf("expected pointer-identical Name for repeated spelling")
	}
	c := tbl.GetOrAdd("bar")
	if a == c {
		t.Fatalf("distinct spellings must not share a Name")
	}
}

func TestReservedClassification(t *testing.T) {
	tbl := New(arena.New())
	if n := tbl.GetOrAdd("while"); !n.IsReserved() {
		t.Fatalf("expected 'while' to be classified reserved")
	}
	if n := tbl.GetOrAdd("x"); n.IsReserved() {
		t.Fatalf("expected 'x' to not be classified reserved")
	}
}

func TestLookupMissing(t *testing.T) {
	tbl := New(arena.New())
	if _, ok := tbl.Lookup("nope"); ok {
		t.Fatalf("expected lookup miss before any GetOrAdd")
	}
	tbl.GetOrAdd("nope")
	if _, ok := tbl.Lookup("nope"); !ok {
		t.Fatalf("expected lookup hit after GetOrAdd")
	}
}
