package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/buildcost/docpipe/internal/core/ports"
	"github.com/buildcost/docpipe/internal/observability/metrics"
)

const maxMultipartMemory = 32 << 20

type Router struct {
	ingestor ports.DocumentIngestor
	runner   ports.PipelineRunner
	review   ports.ReviewService
	commit   ports.CommitService
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(
	ingestor ports.DocumentIngestor,
	runner ports.PipelineRunner,
	review ports.ReviewService,
	commit ports.CommitService,
	m *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		ingestor: ingestor,
		runner:   runner,
		review:   review,
		commit:   commit,
		metrics:  m,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/documents", rt.uploadDocuments)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	mux.HandleFunc("POST /v1/documents/{id}/process", rt.processDocument)
	mux.HandleFunc("POST /v1/documents/{id}/commit", rt.commitDocument)
	mux.HandleFunc("GET /v1/review/queue", rt.reviewQueue)
	mux.HandleFunc("POST /v1/clarifications/{id}/answer", rt.answerClarification)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	return withRequestTelemetry(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type uploadFileResult struct {
	Filename  string `json:"filename"`
	Document  any    `json:"document,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Error     string `json:"error,omitempty"`
}

// uploadDocuments accepts one or more files in a single multipart call.
// Each file is stored independently; one bad file does not reject the rest.
func (rt *Router) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart body"})
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'files' is required"})
		return
	}

	projectID := strings.TrimSpace(r.FormValue("project_id"))
	tags := parseTags(r.FormValue("tags"))

	results := make([]uploadFileResult, 0, len(headers))
	accepted := 0
	for _, header := range headers {
		entry := uploadFileResult{Filename: header.Filename}

		file, err := header.Open()
		if err != nil {
			entry.Error = "unreadable multipart file"
			results = append(results, entry)
			continue
		}

		res, err := rt.ingestor.Upload(r.Context(), ports.UploadRequest{
			Filename:  header.Filename,
			MimeType:  header.Header.Get("Content-Type"),
			ProjectID: projectID,
			Tags:      tags,
			Body:      file,
		})
		file.Close()
		if err != nil {
			entry.Error = err.Error()
			results = append(results, entry)
			continue
		}

		entry.Document = res.Document
		entry.Duplicate = res.Duplicate
		results = append(results, entry)
		accepted++

		if rt.metrics != nil {
			outcome := "created"
			if res.Duplicate {
				outcome = "duplicate"
			}
			rt.metrics.RecordUpload("api", outcome, res.Document.SizeBytes)
		}
	}

	status := http.StatusAccepted
	if accepted == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]any{"results": results})
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	view, err := rt.review.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := rt.ingestor.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) commitDocument(w http.ResponseWriter, r *http.Request) {
	result, err := rt.commit.Commit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) reviewQueue(w http.ResponseWriter, r *http.Request) {
	onlyNeedsReview := true
	if r.URL.Query().Get("status") == "all" {
		onlyNeedsReview = false
	}

	entries, err := rt.review.Queue(r.Context(), onlyNeedsReview)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (rt *Router) answerClarification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Answer) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "answer is required"})
		return
	}

	result, err := rt.review.Answer(r.Context(), r.PathValue("id"), req.Answer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
