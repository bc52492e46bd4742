package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/buildcost/docpipe/internal/core/domain"
)

type commitFixture struct {
	repo      *docRepoFake
	items     *itemRepoFake
	canonical *canonicalFake
	events    *eventLogFake
	uc        *CommitUseCase
}

func newCommitFixture() *commitFixture {
	f := &commitFixture{
		repo:      newDocRepoFake(),
		items:     newItemRepoFake(),
		canonical: &canonicalFake{},
		events:    &eventLogFake{},
	}
	f.uc = NewCommitUseCase(f.repo, f.items, f.canonical, f.events, tracerFake{}, DefaultThresholds(), nil)
	f.repo.put(&domain.Document{
		ID:         "doc-1",
		Filename:   "invoice.txt",
		Status:     domain.StatusStaged,
		Confidence: 0.9,
	})
	f.items.put(&domain.ExtractedItem{
		ID:         "item-good",
		DocumentID: "doc-1",
		Title:      "Pine Board 2x4",
		IsValid:    true,
		Confidence: 0.9,
	})
	return f
}

func TestCommitWritesEligibleItems(t *testing.T) {
	f := newCommitFixture()

	result, err := f.uc.Commit(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if result.AlreadyCommitted {
		t.Fatalf("first commit must not be marked already committed")
	}
	if result.TraceID != "trace-test" {
		t.Fatalf("expected trace id propagated, got %q", result.TraceID)
	}
	if len(f.canonical.committed) != 1 || f.canonical.committed[0].ID != "item-good" {
		t.Fatalf("expected one canonical write, got %+v", f.canonical.committed)
	}

	stages := f.events.stages()
	if len(stages) != 2 || stages[0] != "commit:start" || stages[1] != "commit:ok" {
		t.Fatalf("expected commit start/ok events, got %v", stages)
	}
}

func TestCommitFiltersIneligibleItems(t *testing.T) {
	f := newCommitFixture()
	f.items.put(&domain.ExtractedItem{
		ID:         "item-low",
		DocumentID: "doc-1",
		Title:      "Nails",
		IsValid:    true,
		Confidence: 0.6,
	})
	f.items.put(&domain.ExtractedItem{
		ID:         "item-invalid",
		DocumentID: "doc-1",
		Title:      "Glue",
		IsValid:    false,
		Confidence: 0.95,
	})

	if _, err := f.uc.Commit(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if len(f.canonical.committed) != 1 || f.canonical.committed[0].ID != "item-good" {
		t.Fatalf("only the valid high-confidence item may commit, got %+v", f.canonical.committed)
	}
}

func TestCommitIsIdempotent(t *testing.T) {
	f := newCommitFixture()
	committedAt := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	doc := f.repo.docs["doc-1"]
	doc.CommittedAt = &committedAt
	doc.Status = domain.StatusCommitted

	result, err := f.uc.Commit(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if !result.AlreadyCommitted {
		t.Fatalf("expected already committed result")
	}
	if !result.CommittedAt.Equal(committedAt) {
		t.Fatalf("expected original commit time, got %v", result.CommittedAt)
	}
	if len(result.Counts) != 0 {
		t.Fatalf("repeat commit must report zero writes, got %v", result.Counts)
	}
	if len(f.canonical.committed) != 0 {
		t.Fatalf("repeat commit must not touch canonical tables")
	}
	if len(f.events.events) != 0 {
		t.Fatalf("repeat commit must not append events, got %v", f.events.stages())
	}
}

func TestCommitConflictsWhileReviewOpen(t *testing.T) {
	f := newCommitFixture()
	f.repo.docs["doc-1"].Status = domain.StatusNeedsReview

	_, err := f.uc.Commit(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCommitConflictsBeforeStaging(t *testing.T) {
	f := newCommitFixture()
	f.repo.docs["doc-1"].Status = domain.StatusExtracted

	_, err := f.uc.Commit(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCommitConflictsWithoutEligibleItems(t *testing.T) {
	f := newCommitFixture()
	f.items = newItemRepoFake()
	f.uc = NewCommitUseCase(f.repo, f.items, f.canonical, f.events, tracerFake{}, DefaultThresholds(), nil)

	_, err := f.uc.Commit(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for empty item set, got %v", err)
	}
	if len(f.events.events) != 0 {
		t.Fatalf("no commit events expected, got %v", f.events.stages())
	}
}

func TestCommitCanonicalFailureSurfaces(t *testing.T) {
	f := newCommitFixture()
	f.canonical.err = errors.New("vendor_prices constraint violated")

	_, err := f.uc.Commit(context.Background(), "doc-1")
	if err == nil {
		t.Fatalf("expected error")
	}

	stages := f.events.stages()
	if len(stages) != 2 || stages[1] != "commit:fail" {
		t.Fatalf("expected trailing commit:fail event, got %v", stages)
	}
}

func TestCommitUnknownDocument(t *testing.T) {
	f := newCommitFixture()

	_, err := f.uc.Commit(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
