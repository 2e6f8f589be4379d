package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"invoicedash/internal"
	"invoicedash/internal/dashboard"
	"invoicedash/internal/export"
	"invoicedash/internal/logger"
	"invoicedash/internal/storage"
	"invoicedash/internal/summary"
)

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

// writeError maps service errors onto status codes.
func writeError(c *gin.Context, err error) {
	var verr *dashboard.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": verr.Error(), "fields": verr.Fields})
	case errors.Is(err, storage.ErrNotFound):
		fail(c, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrAlreadyResolved):
		fail(c, http.StatusConflict, "error invoice already resolved")
	case errors.Is(err, summary.ErrNoModel):
		fail(c, http.StatusServiceUnavailable, "summaries are not configured")
	default:
		_ = c.Error(err)
		logger.FromContext(c.Request.Context()).Error("request failed", "path", c.FullPath(), "err", err)
		fail(c, http.StatusInternalServerError, "internal error")
	}
}

func parseQuery(c *gin.Context) (dashboard.Query, error) {
	q := dashboard.Query{
		Q:       c.Query("q"),
		Company: c.Query("company"),
		From:    c.Query("from"),
		To:      c.Query("to"),
		Sort:    c.Query("sort"),
		Order:   c.Query("order"),
	}
	var err error
	if q.MinTotal, err = floatParam(c, "minTotal"); err != nil {
		return q, err
	}
	if q.MaxTotal, err = floatParam(c, "maxTotal"); err != nil {
		return q, err
	}
	if q.Page, err = intParam(c, "page"); err != nil {
		return q, err
	}
	if q.PageSize, err = intParam(c, "pageSize"); err != nil {
		return q, err
	}
	return q, nil
}

func floatParam(c *gin.Context, name string) (*float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return &v, nil
}

func intParam(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

func (s *Server) listInvoices(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	page, err := s.dashboard.ListInvoices(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, page)
}

func (s *Server) getInvoice(c *gin.Context) {
	inv, err := s.dashboard.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, inv)
}

func (s *Server) summarizeInvoice(c *gin.Context) {
	sum, err := s.dashboard.Summarize(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, summary.ErrNoModel):
		s.metrics.summary("disabled")
	case err != nil:
		s.metrics.summary("error")
	case sum.Cached:
		s.metrics.summary("cached")
	default:
		s.metrics.summary("generated")
	}
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, sum)
}

func (s *Server) stats(c *gin.Context) {
	st, err := s.dashboard.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, st)
}

func (s *Server) listErrors(c *gin.Context) {
	var status internal.ErrorStatus
	switch raw := c.DefaultQuery("status", string(internal.ErrorPending)); raw {
	case "all":
	case string(internal.ErrorPending), string(internal.ErrorResolved):
		status = internal.ErrorStatus(raw)
	default:
		fail(c, http.StatusBadRequest, "status must be pending, resolved or all")
		return
	}
	list, err := s.dashboard.ListErrorInvoices(c.Request.Context(), status)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, list)
}

func (s *Server) getError(c *gin.Context) {
	e, err := s.dashboard.GetErrorInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, e)
}

func (s *Server) errorPDF(c *gin.Context) {
	path, err := s.dashboard.OpenErrorPDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Type", "application/pdf")
	c.File(path)
}

func (s *Server) correctError(c *gin.Context) {
	var form dashboard.CorrectionForm
	if err := c.ShouldBindJSON(&form); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	inv, err := s.dashboard.CorrectErrorInvoice(c.Request.Context(), c.Param("id"), form)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, inv)
}

func (s *Server) exportXLSX(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	invoices, err := s.dashboard.Export(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	name := fmt.Sprintf("invoices-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := export.InvoicesToXLSX(invoices, c.Writer); err != nil {
		_ = c.Error(err)
		logger.FromContext(c.Request.Context()).Error("export failed", "err", err)
	}
}
