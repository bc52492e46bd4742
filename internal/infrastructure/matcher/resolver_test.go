package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/buildcost/docpipe/internal/core/domain"
	"github.com/buildcost/docpipe/internal/core/ports"
)

type catalogFake struct {
	entries map[domain.EntityKind][]domain.CatalogEntry
	err     error

	lastQuery string
}

func (f *catalogFake) Search(_ context.Context, kind domain.EntityKind, query string) ([]domain.CatalogEntry, error) {
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[kind], nil
}

var _ ports.CatalogRepository = (*catalogFake)(nil)

func TestResolveExactMatchScoresFull(t *testing.T) {
	catalog := &catalogFake{entries: map[domain.EntityKind][]domain.CatalogEntry{
		domain.EntityVendor: {
			{ID: "v-1", Name: "Acme Lumber Co"},
			{ID: "v-2", Name: "Budget Hardware"},
		},
	}}
	r := New(catalog)

	candidates, err := r.Resolve(context.Background(), domain.EntityVendor, "ACME LUMBER CO.")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(candidates) == 0 {
		t.Fatalf("expected candidates")
	}
	if candidates[0].ID != "v-1" || candidates[0].Score != 1.0 {
		t.Fatalf("expected exact normalized match, got %+v", candidates[0])
	}
}

func TestResolveRanksByScore(t *testing.T) {
	catalog := &catalogFake{entries: map[domain.EntityKind][]domain.CatalogEntry{
		domain.EntityMaterial: {
			{ID: "m-1", Name: "Oak Plank"},
			{ID: "m-2", Name: "Pine Board 2x4"},
			{ID: "m-3", Name: "Pine Board"},
		},
	}}
	r := New(catalog)

	candidates, err := r.Resolve(context.Background(), domain.EntityMaterial, "pine board 2x4")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(candidates) < 2 {
		t.Fatalf("expected multiple candidates, got %+v", candidates)
	}
	if candidates[0].ID != "m-2" || candidates[0].Score != 1.0 {
		t.Fatalf("expected exact match first, got %+v", candidates[0])
	}
	if candidates[1].ID != "m-3" {
		t.Fatalf("expected partial match second, got %+v", candidates[1])
	}
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Score > candidates[i-1].Score {
			t.Fatalf("candidates out of order: %+v", candidates)
		}
	}
}

func TestResolveTieBreaksByName(t *testing.T) {
	catalog := &catalogFake{entries: map[domain.EntityKind][]domain.CatalogEntry{
		domain.EntityVendor: {
			{ID: "v-b", Name: "Acme South"},
			{ID: "v-a", Name: "Acme North"},
		},
	}}
	r := New(catalog)

	candidates, err := r.Resolve(context.Background(), domain.EntityVendor, "acme")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected both candidates, got %+v", candidates)
	}
	if candidates[0].Name != "Acme North" {
		t.Fatalf("equal scores must order by name, got %+v", candidates)
	}
}

func TestResolveQueriesByFirstToken(t *testing.T) {
	catalog := &catalogFake{}
	r := New(catalog)

	if _, err := r.Resolve(context.Background(), domain.EntityVendor, "Acme Lumber Co"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if catalog.lastQuery != "acme" {
		t.Fatalf("expected first normalized token as query, got %q", catalog.lastQuery)
	}
}

func TestResolveEmptyNameSkipsCatalog(t *testing.T) {
	catalog := &catalogFake{err: errors.New("must not be called")}
	r := New(catalog)

	candidates, err := r.Resolve(context.Background(), domain.EntityVendor, "  ---  ")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if candidates != nil {
		t.Fatalf("expected no candidates, got %+v", candidates)
	}
}

func TestResolvePropagatesCatalogError(t *testing.T) {
	catalog := &catalogFake{err: errors.New("db down")}
	r := New(catalog)

	if _, err := r.Resolve(context.Background(), domain.EntityVendor, "acme"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  Acme, Lumber & Co.  ": "acme lumber co",
		"PINE-BOARD 2x4":         "pine board 2x4",
		"---":                    "",
	}
	for in, want := range cases {
		if got := normalize(in); got != want {
			t.Fatalf("normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSimilarityBounds(t *testing.T) {
	if got := similarity("pine board", "pine board"); got != 1.0 {
		t.Fatalf("identical strings must score 1.0, got %v", got)
	}
	if got := similarity("pine board", ""); got != 0 {
		t.Fatalf("empty side must score 0, got %v", got)
	}
	got := similarity("pine board", "oak plank")
	if got < 0 || got >= 1 {
		t.Fatalf("dissimilar strings must score in [0,1), got %v", got)
	}
}
