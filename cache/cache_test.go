package cache

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chazu/ember/vm"
)

func openTemp(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "sub", "cache.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCompileStoresImage(t *testing.T) {
	c := openTemp(t)
	src := "function sq(x) { return x * x }\nsq(7)"

	if _, err := c.Get(src); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get before Compile error = %v, want ErrNotFound", err)
	}

	prog, err := c.Compile(src)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if n, _ := c.Len(); n != 1 {
		t.Errorf("Len() = %d, want 1", n)
	}

	cached, err := c.Get(src)
	if err != nil {
		t.Fatalf("Get after Compile failed: %v", err)
	}
	if got, want := vm.Disassemble(cached), vm.Disassemble(prog); got != want {
		t.Errorf("cached program differs:\n%s\nwant:\n%s", got, want)
	}

	v := vm.New()
	if err := v.Load(cached); err != nil {
		t.Fatal(err)
	}
	result, err := v.Run()
	if err != nil {
		t.Fatal(err)
	}
	if result.AsInt() != 49 {
		t.Errorf("result = %s, want 49", vm.Inspect(result))
	}

	if _, err := c.Compile(src); err != nil {
		t.Fatalf("second Compile failed: %v", err)
	}
	if n, _ := c.Len(); n != 1 {
		t.Errorf("Len() after hit = %d, want 1", n)
	}
}

func TestCompileErrorNotCached(t *testing.T) {
	c := openTemp(t)
	if _, err := c.Compile("let = 1"); err == nil {
		t.Fatal("Compile should fail on a syntax error")
	}
	if n, _ := c.Len(); n != 0 {
		t.Errorf("Len() = %d, want 0", n)
	}
}

func TestCorruptEntryIsReplaced(t *testing.T) {
	c := openTemp(t)
	src := "1 + 1"
	if _, err := c.db.Exec("INSERT INTO images (hash, image, created) VALUES (?, ?, ?)", Key(src), []byte("junk"), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(src); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on junk error = %v, want a decode error", err)
	}
	if _, err := c.Compile(src); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if _, err := c.Get(src); err != nil {
		t.Errorf("entry should be replaced, Get error = %v", err)
	}
}

func TestPrune(t *testing.T) {
	c := openTemp(t)
	if _, err := c.Compile("1"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.db.Exec("UPDATE images SET created = 0"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Compile("2"); err != nil {
		t.Fatal(err)
	}

	n, err := c.Prune(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Prune removed %d, want 1", n)
	}
	if _, err := c.Get("2"); err != nil {
		t.Errorf("fresh entry should survive, Get error = %v", err)
	}
}

func TestKey(t *testing.T) {
	if Key("a") == Key("b") {
		t.Error("different sources should have different keys")
	}
	if len(Key("")) != 64 {
		t.Errorf("Key length = %d, want 64", len(Key("")))
	}
}
