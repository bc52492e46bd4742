package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/buildcost/docpipe/internal/core/domain"
)

// processDocument runs the full pipeline synchronously and streams stage
// events to the caller as server-sent events. The same run is visible to
// background workers through the orchestrator's in-flight guard, so a
// concurrent queue delivery is rejected rather than duplicated.
func (rt *Router) processDocument(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming is not supported"})
		return
	}

	stream := &sseStream{w: w, flusher: flusher}
	result, err := rt.runner.Run(r.Context(), r.PathValue("id"), func(ev domain.StageEvent) {
		stream.send(ev)
	})
	if err != nil {
		// Before the first event nothing has been written, so a plain
		// error response is still possible.
		if !stream.started {
			writeError(w, err)
			return
		}
		stream.send(map[string]string{"error": err.Error()})
		stream.done()
		return
	}

	stream.send(result)
	stream.done()
}

type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *sseStream) send(payload any) {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return
	}
	s.flusher.Flush()
}

func (s *sseStream) done() {
	if !s.started {
		return
	}
	_, _ = io.WriteString(s.w, "data: [DONE]\n\n")
	s.flusher.Flush()
}
