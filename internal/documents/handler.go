package documents

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"auditdocs-backend/internal/shared/server/middleware"
	"auditdocs-backend/internal/shared/server/respond"
	"auditdocs-backend/internal/shared/util"
)

const (
	maxUploadSize     = 25 << 20 // 25MB
	maxBulkUploadSize = 100 << 20
)

// Handler wires HTTP handlers to the document service and reconciler.
type Handler struct {
	Svc        *Service
	Reconciler *Reconciler
	limiter    *pollLimiter
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, rec *Reconciler) *Handler {
	return &Handler{
		Svc:        svc,
		Reconciler: rec,
		limiter:    newPollLimiter(pollLimitWindow, nil),
	}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.ingest)
	rg.POST("/documents/bulk", h.ingestBulk)
	rg.POST("/documents/recheck", h.recheckBulk)
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id", h.get)
	rg.POST("/documents/:id/recheck", h.recheck)
	rg.PATCH("/documents/:id", h.update)
	rg.DELETE("/documents/:id", h.remove)
}

func (h *Handler) ingest(c *gin.Context) {
	ownerID := middleware.UserIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "file is required", nil)
		return
	}

	fileName, err := util.SanitizeFileName(fileHeader.Filename)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid file name", nil)
		return
	}

	data, err := readMultipartFile(fileHeader)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "unable to read file", nil)
		return
	}

	doc, isNew, err := h.Svc.Ingest(c.Request.Context(), IngestInput{
		OwnerID:      ownerID,
		FileName:     fileName,
		Title:        c.PostForm("title"),
		MimeType:     fileHeader.Header.Get("Content-Type"),
		ScopeTag:     c.PostForm("scope"),
		AuthorityTag: c.PostForm("authority"),
		Data:         data,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	if isNew {
		h.Reconciler.Spawn(doc.ID)
	}

	c.Set("documentId", doc.ID)
	respond.OK(c, gin.H{
		"documentId": doc.ID,
		"status":     doc.Status,
		"duplicate":  !isNew,
	})
}

func (h *Handler) ingestBulk(c *gin.Context) {
	ownerID := middleware.UserIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBulkUploadSize)

	form, err := c.MultipartForm()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "multipart form is required", nil)
		return
	}

	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "at least one file is required", nil)
		return
	}

	meta := SharedMetadata{
		ScopeTag:     strings.TrimSpace(c.PostForm("scope")),
		AuthorityTag: strings.TrimSpace(c.PostForm("authority")),
	}

	// Optional per-file titles, positional against the files parts.
	titles := form.Value["titles"]

	files := make([]BatchFile, 0, len(fileHeaders))
	for i, fh := range fileHeaders {
		// A rejected name becomes a per-file error downstream.
		fileName, err := util.SanitizeFileName(fh.Filename)
		if err != nil {
			fileName = ""
		}
		data, err := readMultipartFile(fh)
		if err != nil {
			// Unreadable parts become per-file errors downstream; keep the
			// batch going with an empty payload the pipeline will reject.
			data = nil
		}
		title := ""
		if i < len(titles) {
			title = strings.TrimSpace(titles[i])
		}
		files = append(files, BatchFile{
			FileName: fileName,
			Title:    title,
			MimeType: fh.Header.Get("Content-Type"),
			Data:     data,
		})
	}

	result, err := h.Svc.IngestBatch(c.Request.Context(), ownerID, meta, files)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	respond.OK(c, result)
}

func (h *Handler) list(c *gin.Context) {
	ownerID := middleware.UserIDFromContext(c)

	limit := parseIntQuery(c, "limit", 20, 0, 100)
	offset := parseIntQuery(c, "offset", 0, 0, 1<<30)

	docs, err := h.Svc.List(c.Request.Context(), ownerID, limit, offset)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	resp := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		resp = append(resp, toResponse(doc))
	}
	respond.OK(c, resp)
}

func (h *Handler) get(c *gin.Context) {
	ownerID := middleware.UserIDFromContext(c)

	doc, err := h.Svc.GetOwned(c.Request.Context(), ownerID, c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respond.OK(c, toResponse(doc))
}

func (h *Handler) recheck(c *gin.Context) {
	ownerID := middleware.UserIDFromContext(c)
	docID := c.Param("id")

	doc, err := h.Svc.GetOwned(c.Request.Context(), ownerID, docID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	if doc.Terminal() {
		respond.OK(c, gin.H{
			"documentId": doc.ID,
			"status":     doc.Status,
		})
		return
	}

	if !h.limiter.Allow(ownerID, docID) {
		c.Header("Retry-After", strconv.Itoa(h.limiter.RetryAfterSeconds()))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "recheck already in progress, retry later", nil)
		return
	}

	h.Reconciler.Spawn(docID)

	cfg := h.Reconciler.Cfg
	respond.JSON(c, http.StatusAccepted, gin.H{
		"documentId":  doc.ID,
		"status":      doc.Status,
		"maxAttempts": cfg.MaxAttempts,
		"baseDelayMs": cfg.BaseDelay.Milliseconds(),
		"maxDelayMs":  cfg.MaxDelay.Milliseconds(),
	})
}

type recheckBulkRequest struct {
	DocumentIDs []string `json:"documentIds"`
}

func (h *Handler) recheckBulk(c *gin.Context) {
	ownerID := middleware.UserIDFromContext(c)

	var req recheckBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid request body", nil)
		return
	}
	if len(req.DocumentIDs) == 0 {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "documentIds is required", nil)
		return
	}

	// Ids the caller does not own are reported as not found, never probed.
	owned := make([]string, 0, len(req.DocumentIDs))
	rejected := make(map[string]string)
	for _, id := range req.DocumentIDs {
		if _, err := h.Svc.GetOwned(c.Request.Context(), ownerID, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				rejected[id] = "document not found"
			} else {
				rejected[id] = err.Error()
			}
			continue
		}
		owned = append(owned, id)
	}

	result := h.Reconciler.RecheckMany(c.Request.Context(), owned)
	for id, msg := range rejected {
		result.Errors[id] = msg
	}
	respond.OK(c, result)
}

type updateRequest struct {
	Title     *string `json:"title"`
	Scope     *string `json:"scope"`
	Authority *string `json:"authority"`
}

func (h *Handler) update(c *gin.Context) {
	ownerID := middleware.UserIDFromContext(c)

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid request body", nil)
		return
	}

	doc, err := h.Svc.UpdateMetadata(c.Request.Context(), ownerID, c.Param("id"), MetadataPatch{
		Title:        req.Title,
		ScopeTag:     req.Scope,
		AuthorityTag: req.Authority,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	respond.OK(c, toResponse(doc))
}

func (h *Handler) remove(c *gin.Context) {
	ownerID := middleware.UserIDFromContext(c)

	if err := h.Svc.Delete(c.Request.Context(), ownerID, c.Param("id")); err != nil {
		h.respondServiceError(c, err)
		return
	}
	respond.OK(c, gin.H{"deleted": true})
}

func (h *Handler) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, "document not found", nil)
	case errors.Is(err, ErrStorage):
		respond.Error(c, http.StatusInternalServerError, ErrorCodeStorage, "failed to store document", nil)
	case errors.Is(err, ErrIndex):
		respond.Error(c, http.StatusInternalServerError, ErrorCodeIndex, "failed to register document with index", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "internal error", nil)
	}
}

func readMultipartFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func parseIntQuery(c *gin.Context, key string, def, min, max int) int {
	val := def
	if raw := c.Query(key); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			val = parsed
		}
	}
	if val < min {
		val = min
	}
	if val > max {
		val = max
	}
	return val
}
