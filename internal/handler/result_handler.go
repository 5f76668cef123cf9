package handler

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bankparse/internal/domain"
	"bankparse/internal/export"
	"bankparse/internal/service"
)

// ResultHandler handles stored parse result endpoints.
type ResultHandler struct {
	statementService service.StatementService
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(statementService service.StatementService) *ResultHandler {
	return &ResultHandler{statementService: statementService}
}

// List handles GET /api/v1/results
func (h *ResultHandler) List(c *gin.Context) {
	offset, limit := parsePagination(c)

	results, total, err := h.statementService.ListResults(c.Request.Context(), offset, limit)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondPaginated(c, results, PagMeta{Total: total, Offset: offset, Limit: limit})
}

// GetByID handles GET /api/v1/results/:id
func (h *ResultHandler) GetByID(c *gin.Context) {
	id, ok := parseResultID(c)
	if !ok {
		return
	}

	result, err := h.statementService.GetResult(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, result)
}

// Delete handles DELETE /api/v1/results/:id
func (h *ResultHandler) Delete(c *gin.Context) {
	id, ok := parseResultID(c)
	if !ok {
		return
	}

	if err := h.statementService.DeleteResult(c.Request.Context(), id); err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, gin.H{"message": "result deleted"})
}

// Export handles GET /api/v1/results/:id/export?format=csv|xlsx
func (h *ResultHandler) Export(c *gin.Context) {
	id, ok := parseResultID(c)
	if !ok {
		return
	}
	format := domain.ExportFormat(c.DefaultQuery("format", string(domain.ExportCSV)))

	var buf bytes.Buffer
	filename, err := h.statementService.ExportResult(c.Request.Context(), id, format, &buf)
	if err != nil {
		HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, export.ContentType(format), buf.Bytes())
}

// Source handles GET /api/v1/results/:id/source
func (h *ResultHandler) Source(c *gin.Context) {
	id, ok := parseResultID(c)
	if !ok {
		return
	}

	url, err := h.statementService.SourceURL(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, gin.H{"download_url": url})
}

// Reparse handles POST /api/v1/results/:id/reparse
func (h *ResultHandler) Reparse(c *gin.Context) {
	id, ok := parseResultID(c)
	if !ok {
		return
	}
	strategy, provider, err := parseSelectors(c)
	if err != nil {
		HandleError(c, err)
		return
	}

	result, outcome, err := h.statementService.Reparse(c.Request.Context(), id, strategy, provider)
	if err != nil {
		HandleError(c, err)
		return
	}
	respondOutcome(c, result, outcome)
}

func parseResultID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid result ID")
		return uuid.Nil, false
	}
	return id, true
}
