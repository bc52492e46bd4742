package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/buildcost/docpipe/internal/core/domain"
	"github.com/buildcost/docpipe/internal/core/ports"
)

// Thresholds are tunable confidence gates, not hard contracts.
type Thresholds struct {
	DefaultItemConfidence float64
	ReviewThreshold       float64
	ItemReviewThreshold   float64
	SimilarityThreshold   float64
	CommitThreshold       float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		DefaultItemConfidence: 0.8,
		ReviewThreshold:       0.8,
		ItemReviewThreshold:   0.7,
		SimilarityThreshold:   0.3,
		CommitThreshold:       0.7,
	}
}

type PipelineUseCase struct {
	repo       ports.DocumentRepository
	items      ports.ItemRepository
	events     ports.EventLog
	questions  ports.ClarificationRepository
	extractor  ports.TextExtractor
	classifier ports.DocumentClassifier
	packer     ports.ContextPacker
	structured ports.StructuredExtractor
	resolver   ports.EntityResolver
	tracer     ports.Tracer
	thresholds Thresholds
	logger     *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewPipelineUseCase(
	repo ports.DocumentRepository,
	items ports.ItemRepository,
	events ports.EventLog,
	questions ports.ClarificationRepository,
	extractor ports.TextExtractor,
	classifier ports.DocumentClassifier,
	packer ports.ContextPacker,
	structured ports.StructuredExtractor,
	resolver ports.EntityResolver,
	tracer ports.Tracer,
	thresholds Thresholds,
	logger *slog.Logger,
) *PipelineUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineUseCase{
		repo:       repo,
		items:      items,
		events:     events,
		questions:  questions,
		extractor:  extractor,
		classifier: classifier,
		packer:     packer,
		structured: structured,
		resolver:   resolver,
		tracer:     tracer,
		thresholds: thresholds,
		logger:     logger,
		inFlight:   make(map[string]struct{}),
	}
}

// runState is the working set of one pipeline execution.
type runState struct {
	doc            *domain.Document
	traceID        string
	onEvent        func(domain.StageEvent)
	parsed         *domain.ParsedDocument
	text           string
	classification domain.Classification
	chunks         []domain.Chunk
	items          []domain.ExtractedItem
	stageMessage   string
}

// Run executes the seven stages strictly in order. Stage failures are
// converted into a structured RunResult; an error return means the run
// never started (unknown document, or one already in flight).
func (p *PipelineUseCase) Run(ctx context.Context, documentID string, onEvent func(domain.StageEvent)) (*domain.RunResult, error) {
	if !p.acquire(documentID) {
		return nil, domain.WrapError(domain.ErrConflict, "pipeline",
			fmt.Errorf("document %s already has a run in flight", documentID))
	}
	defer p.release(documentID)

	doc, err := p.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	// A committed document is frozen; re-running would regress its status
	// while committed_at stays set.
	if doc.CommittedAt != nil {
		return nil, domain.WrapError(domain.ErrConflict, "pipeline",
			fmt.Errorf("document %s is already committed", documentID))
	}

	ctx, endRun := p.tracer.Start(ctx, "pipeline.run")
	run := &runState{doc: doc, traceID: p.tracer.TraceID(ctx), onEvent: onEvent}

	stages := []struct {
		name domain.Stage
		fn   func(context.Context, *runState) error
	}{
		{domain.StageParse, p.parse},
		{domain.StageClassify, p.classify},
		{domain.StagePack, p.pack},
		{domain.StageExtract, p.extract},
		{domain.StageValidate, p.validate},
		{domain.StageLink, p.link},
		{domain.StageStage, p.stage},
	}

	total := len(stages)
	for i, st := range stages {
		// Cancellation is honored between stages only; a stage already in
		// flight runs to completion or timeout.
		if err := ctx.Err(); err != nil {
			endRun(err)
			return p.failResult(ctx, run, st.name, err), nil
		}
		if err := p.runStage(ctx, run, st.name, float64(i+1)/float64(total), st.fn); err != nil {
			endRun(err)
			return p.failResult(ctx, run, st.name, err), nil
		}
	}
	endRun(nil)

	p.emit(run, domain.StageComplete, domain.EventOK, 1.0, "")

	return &domain.RunResult{
		DocumentID:        doc.ID,
		Status:            run.doc.Status,
		OverallConfidence: run.doc.Confidence,
		RequiresReview:    run.doc.Status == domain.StatusNeedsReview,
		ItemCount:         len(run.items),
		TraceID:           run.traceID,
	}, nil
}

// runStage brackets one stage with tracing, the append-only event log and
// panic containment. Nothing thrown inside a stage escapes the orchestrator.
func (p *PipelineUseCase) runStage(
	ctx context.Context,
	run *runState,
	stage domain.Stage,
	progress float64,
	fn func(context.Context, *runState) error,
) (err error) {
	run.stageMessage = ""
	p.appendEvent(ctx, run, stage, domain.EventStart, "")
	p.emit(run, stage, domain.EventStart, progress, "")

	stageCtx, endSpan := p.tracer.Start(ctx, "pipeline."+string(stage))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", stage, r)
		}
		endSpan(err)
		if err != nil {
			p.appendEvent(ctx, run, stage, domain.EventFail, err.Error())
			p.emit(run, stage, domain.EventFail, progress, err.Error())
			return
		}
		p.appendEvent(ctx, run, stage, domain.EventOK, run.stageMessage)
		p.emit(run, stage, domain.EventOK, progress, run.stageMessage)
		if stage == domain.StageStage {
			// The stage step persists its own staged/needs_review decision.
			return
		}
		if updErr := p.repo.UpdateStatus(ctx, run.doc.ID, domain.StatusForStage(stage), ""); updErr != nil {
			p.logger.Warn("stage_status_update_failed",
				"document_id", run.doc.ID, "stage", stage, "error", updErr)
		} else {
			run.doc.Status = domain.StatusForStage(stage)
		}
	}()

	return fn(stageCtx, run)
}

// failResult records the failure but leaves the document at its last good
// state so it stays queryable; only the error message and the run result
// carry the failed stage.
func (p *PipelineUseCase) failResult(ctx context.Context, run *runState, stage domain.Stage, cause error) *domain.RunResult {
	message := fmt.Sprintf("%s: %v", stage, cause)
	if err := p.repo.UpdateStatus(ctx, run.doc.ID, run.doc.Status, message); err != nil {
		p.logger.Warn("failure_status_update_failed", "document_id", run.doc.ID, "error", err)
	}
	p.logger.Error("pipeline_stage_failed",
		"document_id", run.doc.ID, "stage", stage, "error", cause)
	return &domain.RunResult{
		DocumentID:  run.doc.ID,
		Status:      domain.StatusFailed,
		FailedStage: stage,
		ItemCount:   len(run.items),
		TraceID:     run.traceID,
		Error:       message,
	}
}

func (p *PipelineUseCase) parse(ctx context.Context, run *runState) error {
	parsed, err := p.extractor.Extract(ctx, run.doc)
	if err != nil {
		return fmt.Errorf("extract text: %w", err)
	}
	text := parsed.Text()
	if strings.TrimSpace(text) == "" {
		return domain.WrapError(domain.ErrStageFailed, "parse", errors.New("document produced no text"))
	}
	run.parsed = parsed
	run.text = text
	run.stageMessage = fmt.Sprintf("elements=%d language=%s", len(parsed.Elements), parsed.Language)
	return nil
}

// classify never halts the run: a failed or unknown label falls back to the
// generic extraction schema.
func (p *PipelineUseCase) classify(ctx context.Context, run *runState) error {
	cls, err := p.classifier.Classify(ctx, run.text)
	if err != nil {
		p.logger.Warn("classification_failed_using_generic",
			"document_id", run.doc.ID, "error", err)
		cls = domain.Classification{Label: domain.TypeOther}
		run.stageMessage = "fallback: generic schema"
	} else {
		if !knownDocumentType(cls.Label) {
			cls.Label = domain.TypeOther
		}
		run.stageMessage = fmt.Sprintf("label=%s confidence=%.2f", cls.Label, cls.Confidence)
	}
	run.classification = cls
	if err := p.repo.SetClassification(ctx, run.doc.ID, cls.Label, run.parsed.Language); err != nil {
		return fmt.Errorf("persist classification: %w", err)
	}
	run.doc.DetectedType = cls.Label
	run.doc.DetectedLanguage = run.parsed.Language
	return nil
}

func (p *PipelineUseCase) pack(_ context.Context, run *runState) error {
	chunks := p.packer.Pack(run.parsed)
	if len(chunks) == 0 {
		return domain.WrapError(domain.ErrStageFailed, "pack", errors.New("packing produced zero chunks"))
	}
	run.chunks = chunks
	run.stageMessage = fmt.Sprintf("chunks=%d", len(chunks))
	return nil
}

func (p *PipelineUseCase) extract(ctx context.Context, run *runState) error {
	schema := domain.SchemaForType(run.classification.Label)
	result, err := p.structured.ExtractStructured(ctx, schema, run.chunks)
	if err != nil {
		return fmt.Errorf("structured extraction (%s): %w", schema, err)
	}

	now := time.Now().UTC()
	occurredAt := parseDocumentDate(result.DocumentDate)
	items := make([]domain.ExtractedItem, 0, len(result.Items))
	for _, li := range result.Items {
		confidence := li.Confidence
		if confidence <= 0 {
			confidence = result.Confidence
		}
		if confidence <= 0 {
			confidence = p.thresholds.DefaultItemConfidence
		}
		confidence = clamp01(confidence)

		evidence, ref := locateEvidence(run.text, li)
		items = append(items, domain.ExtractedItem{
			ID:            uuid.NewString(),
			DocumentID:    run.doc.ID,
			Type:          normalizeItemType(li.Type),
			Title:         strings.TrimSpace(li.Title),
			VendorName:    strings.TrimSpace(result.VendorName),
			MaterialName:  strings.TrimSpace(li.MaterialName),
			Quantity:      li.Quantity,
			Unit:          li.Unit,
			UnitPrice:     li.UnitPrice,
			TotalPrice:    li.TotalPrice,
			TaxPercent:    li.TaxPercent,
			LeadTimeDays:  li.LeadTimeDays,
			SourceRef:     ref,
			Evidence:      evidence,
			RawConfidence: confidence,
			Confidence:    confidence,
			OccurredAt:    occurredAt,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	if err := p.items.ReplaceForDocument(ctx, run.doc.ID, items); err != nil {
		return fmt.Errorf("persist extracted items: %w", err)
	}
	run.items = items
	run.stageMessage = fmt.Sprintf("schema=%s items=%d", schema, len(items))
	return nil
}

func (p *PipelineUseCase) validate(ctx context.Context, run *runState) error {
	valid := 0
	for i := range run.items {
		item := &run.items[i]
		outcome := ValidateItem(item)
		item.IsValid = outcome.IsValid
		item.Issues = outcome.Issues
		item.Confidence = outcome.AdjustedConfidence
		if outcome.IsValid {
			valid++
		}
		if err := p.items.UpdateValidation(ctx, item.ID, outcome); err != nil {
			return fmt.Errorf("persist validation for item %s: %w", item.ID, err)
		}
	}
	run.stageMessage = fmt.Sprintf("valid=%d/%d", valid, len(run.items))
	return nil
}

// link never blocks the run; unresolved names stay unresolved and remain
// eligible for manual linking during review.
func (p *PipelineUseCase) link(ctx context.Context, run *runState) error {
	linked := 0
	for i := range run.items {
		item := &run.items[i]
		vendorID := p.resolveName(ctx, domain.EntityVendor, item.VendorName)
		materialID := p.resolveName(ctx, domain.EntityMaterial, item.MaterialName)
		if vendorID == "" && materialID == "" {
			continue
		}
		item.VendorID = vendorID
		item.MaterialID = materialID
		if err := p.items.UpdateLink(ctx, item.ID, vendorID, materialID); err != nil {
			return fmt.Errorf("persist link for item %s: %w", item.ID, err)
		}
		linked++
	}
	run.stageMessage = fmt.Sprintf("linked=%d/%d", linked, len(run.items))
	return nil
}

func (p *PipelineUseCase) resolveName(ctx context.Context, kind domain.EntityKind, name string) string {
	if strings.TrimSpace(name) == "" {
		return ""
	}
	candidates, err := p.resolver.Resolve(ctx, kind, name)
	if err != nil {
		p.logger.Warn("entity_resolution_failed", "kind", kind, "name", name, "error", err)
		return ""
	}
	if len(candidates) == 0 || candidates[0].Score < p.thresholds.SimilarityThreshold {
		return ""
	}
	return candidates[0].ID
}

func (p *PipelineUseCase) stage(ctx context.Context, run *runState) error {
	overall := overallConfidence(run.items)
	review := requiresReview(run.items, overall, p.thresholds.ReviewThreshold, p.thresholds.ItemReviewThreshold)
	status := domain.StatusStaged
	if review {
		status = domain.StatusNeedsReview
		p.raiseQuestions(ctx, run)
	}
	if err := p.repo.SetConfidence(ctx, run.doc.ID, overall, status); err != nil {
		return fmt.Errorf("persist staging decision: %w", err)
	}
	run.doc.Confidence = overall
	run.doc.Status = status
	run.stageMessage = fmt.Sprintf("confidence=%.2f requires_review=%t", overall, review)
	return nil
}

// raiseQuestions opens one clarification per problematic item, best-effort.
func (p *PipelineUseCase) raiseQuestions(ctx context.Context, run *runState) {
	now := time.Now().UTC()
	for _, item := range run.items {
		if item.IsValid && item.Confidence >= p.thresholds.ItemReviewThreshold {
			continue
		}
		fieldKey, question := questionForItem(item)
		q := &domain.ClarificationQuestion{
			ID:         uuid.NewString(),
			DocumentID: run.doc.ID,
			ItemID:     item.ID,
			FieldKey:   fieldKey,
			Question:   question,
			Status:     domain.QuestionOpen,
			CreatedAt:  now,
		}
		if err := p.questions.Create(ctx, q); err != nil {
			p.logger.Warn("clarification_create_failed",
				"document_id", run.doc.ID, "item_id", item.ID, "error", err)
		}
	}
}

func questionForItem(item domain.ExtractedItem) (string, string) {
	if len(item.Issues) > 0 {
		switch item.Issues[0] {
		case domain.IssueMissingDescription:
			return domain.FieldDescription, "What does this line item describe?"
		case domain.IssueInvalidQuantity:
			return domain.FieldQuantity, fmt.Sprintf("What is the correct quantity for %q?", item.Title)
		case domain.IssueInvalidUnitPrice:
			return domain.FieldUnitPrice, fmt.Sprintf("What is the correct unit price for %q?", item.Title)
		case domain.IssueInvalidTotalPrice, domain.IssuePriceInconsistency:
			return domain.FieldTotalPrice, fmt.Sprintf("Quantity and unit price for %q do not match the total; what is the correct total?", item.Title)
		}
	}
	return domain.FieldDescription, fmt.Sprintf("Please confirm the extracted details for %q.", item.Title)
}

func (p *PipelineUseCase) acquire(documentID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inFlight[documentID]; ok {
		return false
	}
	p.inFlight[documentID] = struct{}{}
	return true
}

func (p *PipelineUseCase) release(documentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, documentID)
}

func (p *PipelineUseCase) appendEvent(ctx context.Context, run *runState, stage domain.Stage, status domain.EventStatus, message string) {
	ev := domain.IngestEvent{
		DocumentID: run.doc.ID,
		Stage:      stage,
		Status:     status,
		Message:    message,
		TraceID:    run.traceID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := p.events.Append(ctx, ev); err != nil {
		p.logger.Warn("ingest_event_append_failed",
			"document_id", run.doc.ID, "stage", stage, "error", err)
	}
}

func (p *PipelineUseCase) emit(run *runState, stage domain.Stage, status domain.EventStatus, progress float64, message string) {
	if run.onEvent == nil {
		return
	}
	run.onEvent(domain.StageEvent{
		Stage:     stage,
		Status:    status,
		Progress:  progress,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func knownDocumentType(t domain.DocumentType) bool {
	for _, known := range domain.KnownDocumentTypes() {
		if t == known {
			return true
		}
	}
	return false
}

func normalizeItemType(t domain.ItemType) domain.ItemType {
	switch t {
	case domain.ItemMaterial, domain.ItemLabor, domain.ItemShipping, domain.ItemDecision:
		return t
	default:
		return domain.ItemMaterial
	}
}

// locateEvidence anchors the item's source reference to a real span inside
// the working text, falling back to the document head when the snippet
// cannot be found verbatim.
func locateEvidence(text string, li domain.ExtractedLineItem) (string, domain.SourceRef) {
	evidence := strings.TrimSpace(li.Evidence)
	if evidence == "" {
		evidence = strings.TrimSpace(li.Title)
	}
	if evidence != "" {
		if idx := strings.Index(text, evidence); idx >= 0 {
			return evidence, domain.SourceRef{
				Page:      li.Page,
				SpanStart: idx,
				SpanEnd:   idx + len(evidence),
			}
		}
	}
	end := len(text)
	if end > 120 {
		end = 120
	}
	return text[:end], domain.SourceRef{Page: li.Page, SpanStart: 0, SpanEnd: end}
}

func parseDocumentDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", "02.01.2006", "01/02/2006", "January 2, 2006"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}
	return nil
}
