package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lamarhealth/go-intake/internal/document"
	"github.com/lamarhealth/go-intake/internal/observability/metrics"
)

// maxDocumentBytes caps uploaded record size at 20 MiB.
const maxDocumentBytes = 20 << 20

// DocumentHandler exposes text extraction for uploaded clinical records.
type DocumentHandler struct {
	extractor *document.Extractor
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewDocumentHandler creates the document handler.
func NewDocumentHandler(extractor *document.Extractor, logger *zap.Logger, m *metrics.Metrics) *DocumentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentHandler{extractor: extractor, logger: logger, metrics: m}
}

// Routes returns the handler routes.
func (h *DocumentHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/extract", h.Extract)
	return r
}

// Extract handles POST /documents/extract. It accepts a multipart upload
// under the "file" field and returns the extracted plain text. A document
// the parser cannot read at all is a 400, not a server error.
func (h *DocumentHandler) Extract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "multipart upload with a 'file' field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "could not read uploaded file")
		return
	}

	res, err := h.extractor.Extract(data)
	if err != nil {
		h.logger.Warn("document extraction failed",
			zap.String("filename", header.Filename), zap.Error(err))
		writeErrorMessage(w, http.StatusBadRequest, "document could not be parsed")
		return
	}

	if h.metrics != nil {
		h.metrics.DocumentsExtracted.Inc()
	}
	h.logger.Info("document extracted",
		zap.String("filename", header.Filename),
		zap.Int("pages", res.Pages),
		zap.Int("skipped_pages", res.SkippedPages))

	writeJSON(w, http.StatusOK, res)
}
