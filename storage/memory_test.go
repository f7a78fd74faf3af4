package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/c360studio/agora/governance"
)

func testCollection(id string) *governance.Collection {
	return &governance.Collection{
		ID:        id,
		Name:      "notes",
		Model:     governance.ModelMultisig,
		Admins:    []string{"alice"},
		Threshold: 1,
		Proposals: make(map[string]*governance.Proposal),
	}
}

func TestMemoryRegistryCreateAndGet(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	if err := r.Create(ctx, testCollection("col_1")); err != nil {
		t.Fatal(err)
	}

	got, err := r.Get(ctx, "col_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "notes" || !got.IsAdmin("alice") {
		t.Errorf("got %+v", got)
	}
}

func TestMemoryRegistryCreateDuplicate(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	if err := r.Create(ctx, testCollection("col_1")); err != nil {
		t.Fatal(err)
	}
	if err := r.Create(ctx, testCollection("col_1")); !errors.Is(err, governance.ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestMemoryRegistryGetMissing(t *testing.T) {
	r := NewMemoryRegistry()
	if _, err := r.Get(context.Background(), "col_missing"); !errors.Is(err, governance.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryRegistryGetReturnsCopies(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	if err := r.Create(ctx, testCollection("col_1")); err != nil {
		t.Fatal(err)
	}

	first, err := r.Get(ctx, "col_1")
	if err != nil {
		t.Fatal(err)
	}
	first.Admins = append(first.Admins, "mallory")
	first.Proposals["p1"] = &governance.Proposal{ID: "p1"}

	second, err := r.Get(ctx, "col_1")
	if err != nil {
		t.Fatal(err)
	}
	if second.IsAdmin("mallory") {
		t.Error("mutation of a returned copy leaked into storage")
	}
	if len(second.Proposals) != 0 {
		t.Error("proposal added to a returned copy leaked into storage")
	}
}

func TestMemoryRegistryPutOverwrites(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	if err := r.Create(ctx, testCollection("col_1")); err != nil {
		t.Fatal(err)
	}

	c, err := r.Get(ctx, "col_1")
	if err != nil {
		t.Fatal(err)
	}
	c.Name = "renamed"
	if err := r.Put(ctx, c); err != nil {
		t.Fatal(err)
	}

	got, err := r.Get(ctx, "col_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "renamed" {
		t.Errorf("name = %q, want renamed", got.Name)
	}
}

func TestMemoryRegistryDelete(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	if err := r.Create(ctx, testCollection("col_1")); err != nil {
		t.Fatal(err)
	}
	if err := r.Delete(ctx, "col_1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(ctx, "col_1"); !errors.Is(err, governance.ErrNotFound) {
		t.Errorf("err after delete = %v, want ErrNotFound", err)
	}
	if err := r.Delete(ctx, "col_1"); !errors.Is(err, governance.ErrNotFound) {
		t.Errorf("double delete: err = %v, want ErrNotFound", err)
	}
}

func TestMemoryRegistryList(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	for _, id := range []string{"col_1", "col_2", "col_3"} {
		if err := r.Create(ctx, testCollection(id)); err != nil {
			t.Fatal(err)
		}
	}

	collections, err := r.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(collections) != 3 {
		t.Errorf("listed %d collections, want 3", len(collections))
	}
	for _, c := range collections {
		if c.Proposals == nil {
			t.Errorf("collection %s listed with nil proposals map", c.ID)
		}
	}
}
