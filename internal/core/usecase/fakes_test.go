package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/buildcost/docpipe/internal/core/domain"
	"github.com/buildcost/docpipe/internal/core/ports"
)

type docRepoFake struct {
	docs        map[string]*domain.Document
	byHash      map[string]string
	createCalls int
	createErr   error
	findErr     error

	// findNotFoundOnce makes the next FindByHash miss, simulating a
	// concurrent writer landing between dedup lookup and insert.
	findNotFoundOnce bool
}

func newDocRepoFake() *docRepoFake {
	return &docRepoFake{
		docs:   make(map[string]*domain.Document),
		byHash: make(map[string]string),
	}
}

func (f *docRepoFake) put(doc *domain.Document) {
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	f.byHash[doc.ContentHash] = doc.ID
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.createCalls++
	f.put(doc)
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "document", fmt.Errorf("no document %s", id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *docRepoFake) FindByHash(_ context.Context, hash string) (*domain.Document, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.findNotFoundOnce {
		f.findNotFoundOnce = false
		return nil, domain.WrapError(domain.ErrNotFound, "document", fmt.Errorf("no document with hash %s", hash))
	}
	id, ok := f.byHash[hash]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "document", fmt.Errorf("no document with hash %s", hash))
	}
	copyDoc := *f.docs[id]
	return &copyDoc, nil
}

func (f *docRepoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "document", fmt.Errorf("no document %s", id))
	}
	doc.Status = status
	doc.Error = errMessage
	return nil
}

func (f *docRepoFake) SetStoragePath(_ context.Context, id, path string) error {
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "document", fmt.Errorf("no document %s", id))
	}
	doc.StoragePath = path
	return nil
}

func (f *docRepoFake) SetClassification(_ context.Context, id string, docType domain.DocumentType, language string) error {
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "document", fmt.Errorf("no document %s", id))
	}
	doc.DetectedType = docType
	doc.DetectedLanguage = language
	return nil
}

func (f *docRepoFake) SetConfidence(_ context.Context, id string, confidence float64, status domain.DocumentStatus) error {
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "document", fmt.Errorf("no document %s", id))
	}
	doc.Confidence = confidence
	doc.Status = status
	return nil
}

func (f *docRepoFake) MarkCommitted(_ context.Context, id string, at time.Time) error {
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "document", fmt.Errorf("no document %s", id))
	}
	doc.CommittedAt = &at
	doc.Status = domain.StatusCommitted
	return nil
}

func (f *docRepoFake) SoftDelete(_ context.Context, id string) error {
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "document", fmt.Errorf("no document %s", id))
	}
	now := time.Now().UTC()
	doc.DeletedAt = &now
	return nil
}

func (f *docRepoFake) HardDelete(_ context.Context, id string) error {
	if doc, ok := f.docs[id]; ok {
		delete(f.byHash, doc.ContentHash)
	}
	delete(f.docs, id)
	return nil
}

func (f *docRepoFake) ListForReview(_ context.Context, onlyNeedsReview bool, _ float64) ([]domain.ReviewEntry, error) {
	entries := make([]domain.ReviewEntry, 0, len(f.docs))
	for _, doc := range f.docs {
		if onlyNeedsReview && doc.Status != domain.StatusNeedsReview {
			continue
		}
		entries = append(entries, domain.ReviewEntry{Document: *doc})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Document.ID < entries[j].Document.ID
	})
	return entries, nil
}

type itemRepoFake struct {
	items map[string]*domain.ExtractedItem
	order []string

	replaceErr error
}

func newItemRepoFake() *itemRepoFake {
	return &itemRepoFake{items: make(map[string]*domain.ExtractedItem)}
}

func (f *itemRepoFake) put(item *domain.ExtractedItem) {
	copyItem := *item
	if _, ok := f.items[item.ID]; !ok {
		f.order = append(f.order, item.ID)
	}
	f.items[item.ID] = &copyItem
}

func (f *itemRepoFake) ReplaceForDocument(_ context.Context, documentID string, items []domain.ExtractedItem) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	kept := f.order[:0]
	for _, id := range f.order {
		if f.items[id].DocumentID == documentID && f.items[id].CommittedAt == nil {
			delete(f.items, id)
			continue
		}
		kept = append(kept, id)
	}
	f.order = kept
	for i := range items {
		f.put(&items[i])
	}
	return nil
}

func (f *itemRepoFake) ListByDocument(_ context.Context, documentID string) ([]domain.ExtractedItem, error) {
	out := make([]domain.ExtractedItem, 0, len(f.order))
	for _, id := range f.order {
		if f.items[id].DocumentID == documentID {
			out = append(out, *f.items[id])
		}
	}
	return out, nil
}

func (f *itemRepoFake) GetByID(_ context.Context, id string) (*domain.ExtractedItem, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "item", fmt.Errorf("no item %s", id))
	}
	copyItem := *item
	return &copyItem, nil
}

func (f *itemRepoFake) Update(_ context.Context, item *domain.ExtractedItem) error {
	if _, ok := f.items[item.ID]; !ok {
		return domain.WrapError(domain.ErrNotFound, "item", fmt.Errorf("no item %s", item.ID))
	}
	copyItem := *item
	f.items[item.ID] = &copyItem
	return nil
}

func (f *itemRepoFake) UpdateValidation(_ context.Context, id string, outcome domain.ValidationOutcome) error {
	item, ok := f.items[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "item", fmt.Errorf("no item %s", id))
	}
	item.IsValid = outcome.IsValid
	item.Issues = outcome.Issues
	item.Confidence = outcome.AdjustedConfidence
	return nil
}

func (f *itemRepoFake) UpdateLink(_ context.Context, id, vendorID, materialID string) error {
	item, ok := f.items[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "item", fmt.Errorf("no item %s", id))
	}
	item.VendorID = vendorID
	item.MaterialID = materialID
	return nil
}

type eventLogFake struct {
	events []domain.IngestEvent
}

func (f *eventLogFake) Append(_ context.Context, ev domain.IngestEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *eventLogFake) ListByDocument(_ context.Context, documentID string) ([]domain.IngestEvent, error) {
	out := make([]domain.IngestEvent, 0, len(f.events))
	for _, ev := range f.events {
		if ev.DocumentID == documentID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// stages returns the (stage, status) sequence for assertion on ordering.
func (f *eventLogFake) stages() []string {
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, string(ev.Stage)+":"+string(ev.Status))
	}
	return out
}

type questionRepoFake struct {
	questions map[string]*domain.ClarificationQuestion
	order     []string
}

func newQuestionRepoFake() *questionRepoFake {
	return &questionRepoFake{questions: make(map[string]*domain.ClarificationQuestion)}
}

func (f *questionRepoFake) Create(_ context.Context, q *domain.ClarificationQuestion) error {
	copyQ := *q
	f.questions[q.ID] = &copyQ
	f.order = append(f.order, q.ID)
	return nil
}

func (f *questionRepoFake) GetByID(_ context.Context, id string) (*domain.ClarificationQuestion, error) {
	q, ok := f.questions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "clarification", fmt.Errorf("no question %s", id))
	}
	copyQ := *q
	return &copyQ, nil
}

func (f *questionRepoFake) ListOpenByDocument(_ context.Context, documentID string) ([]domain.ClarificationQuestion, error) {
	out := make([]domain.ClarificationQuestion, 0, len(f.order))
	for _, id := range f.order {
		q := f.questions[id]
		if q.DocumentID == documentID && q.Status == domain.QuestionOpen {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (f *questionRepoFake) MarkAnswered(_ context.Context, id, answer string, at time.Time) error {
	q, ok := f.questions[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "clarification", fmt.Errorf("no question %s", id))
	}
	q.Status = domain.QuestionAnswered
	q.Answer = answer
	q.AnsweredAt = &at
	return nil
}

type storageFake struct {
	blobs    map[string][]byte
	tempSeq  int
	saveErr  error
	promErr  error
	deleted  []string
	promoted []string
}

func newStorageFake() *storageFake {
	return &storageFake{blobs: make(map[string][]byte)}
}

func (f *storageFake) SaveTemp(_ context.Context, data io.Reader) (string, int64, error) {
	if f.saveErr != nil {
		return "", 0, f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", 0, err
	}
	f.tempSeq++
	path := fmt.Sprintf("tmp/%d", f.tempSeq)
	f.blobs[path] = raw
	return path, int64(len(raw)), nil
}

func (f *storageFake) Promote(_ context.Context, tempPath, key string) (string, error) {
	if f.promErr != nil {
		return "", f.promErr
	}
	data, ok := f.blobs[tempPath]
	if !ok {
		return "", fmt.Errorf("no temp blob %s", tempPath)
	}
	final := "blobs/" + key
	f.blobs[final] = data
	delete(f.blobs, tempPath)
	f.promoted = append(f.promoted, final)
	return final, nil
}

func (f *storageFake) Open(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := f.blobs[path]
	if !ok {
		return nil, fmt.Errorf("no blob %s", path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *storageFake) Delete(_ context.Context, path string) error {
	delete(f.blobs, path)
	f.deleted = append(f.deleted, path)
	return nil
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishPipelineRequested(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, documentID)
	return nil
}

func (f *queueFake) SubscribePipelineRequested(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

type textExtractorFake struct {
	parsed *domain.ParsedDocument
	err    error
}

func (f *textExtractorFake) Extract(context.Context, *domain.Document) (*domain.ParsedDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.parsed, nil
}

type classifierFake struct {
	cls domain.Classification
	err error
}

func (f *classifierFake) Classify(context.Context, string) (domain.Classification, error) {
	if f.err != nil {
		return domain.Classification{}, f.err
	}
	return f.cls, nil
}

type packerFake struct {
	empty bool
}

func (f *packerFake) Pack(parsed *domain.ParsedDocument) []domain.Chunk {
	if f.empty {
		return nil
	}
	return []domain.Chunk{{Index: 0, Text: parsed.Text()}}
}

type structuredFake struct {
	result *domain.ExtractionResult
	err    error
	calls  int
}

func (f *structuredFake) ExtractStructured(_ context.Context, _ domain.SchemaKind, _ []domain.Chunk) (*domain.ExtractionResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type resolverFake struct {
	candidates map[string][]domain.Candidate
	err        error
}

func (f *resolverFake) Resolve(_ context.Context, kind domain.EntityKind, name string) ([]domain.Candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates[string(kind)+"/"+name], nil
}

type tracerFake struct{}

func (tracerFake) Start(ctx context.Context, _ string) (context.Context, func(error)) {
	return ctx, func(error) {}
}

func (tracerFake) TraceID(context.Context) string { return "trace-test" }

type canonicalFake struct {
	committed []domain.ExtractedItem
	err       error
	result    *domain.CommitResult
}

func (f *canonicalFake) CommitItems(_ context.Context, doc *domain.Document, items []domain.ExtractedItem) (*domain.CommitResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.committed = append(f.committed, items...)
	if f.result != nil {
		return f.result, nil
	}
	return &domain.CommitResult{
		DocumentID:  doc.ID,
		Counts:      map[string]int{domain.TablePurchases: len(items)},
		CommittedAt: time.Now().UTC(),
	}, nil
}

var _ ports.DocumentRepository = (*docRepoFake)(nil)
var _ ports.ItemRepository = (*itemRepoFake)(nil)
var _ ports.EventLog = (*eventLogFake)(nil)
var _ ports.ClarificationRepository = (*questionRepoFake)(nil)
var _ ports.ObjectStorage = (*storageFake)(nil)
var _ ports.MessageQueue = (*queueFake)(nil)
var _ ports.TextExtractor = (*textExtractorFake)(nil)
var _ ports.DocumentClassifier = (*classifierFake)(nil)
var _ ports.ContextPacker = (*packerFake)(nil)
var _ ports.StructuredExtractor = (*structuredFake)(nil)
var _ ports.EntityResolver = (*resolverFake)(nil)
var _ ports.Tracer = (tracerFake{})
var _ ports.CanonicalStore = (*canonicalFake)(nil)
