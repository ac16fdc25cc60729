package handler

import (
	"strconv"

	"github.com/erp/docflow/internal/application/numbering"
	"github.com/gin-gonic/gin"
)

// NextNumberRequest asks for the next number of a series
type NextNumberRequest struct {
	Domain   string `json:"domain" binding:"required,max=50"`
	TenantID string `json:"tenantId" binding:"max=50"`
	Year     *int   `json:"year" binding:"omitempty,min=1,max=9999"`
}

// NextNumberResponse carries an issued number
type NextNumberResponse struct {
	Number string `json:"number"`
}

// ResetCounterRequest sets a series' counter, zero when Value is omitted.
// Force allows a value below the current counter.
type ResetCounterRequest struct {
	Domain   string `json:"domain" binding:"required,max=50"`
	TenantID string `json:"tenantId" binding:"max=50"`
	Year     *int   `json:"year" binding:"omitempty,min=1,max=9999"`
	Value    *int64 `json:"value" binding:"omitempty,min=0"`
	Force    bool   `json:"force"`
}

// NumberingHandler serves document number series
type NumberingHandler struct {
	BaseHandler
	generator *numbering.Generator
}

// NewNumberingHandler creates a NumberingHandler
func NewNumberingHandler(generator *numbering.Generator) *NumberingHandler {
	return &NumberingHandler{generator: generator}
}

// Next issues the next number. The tenant defaults to the caller's.
func (h *NumberingHandler) Next(c *gin.Context) {
	var req NextNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	number, err := h.generator.Next(c.Request.Context(), req.Domain, firstNonEmpty(req.TenantID, actorOf(c).TenantID), req.Year)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, NextNumberResponse{Number: number})
}

// Status reports a series without consuming a number
func (h *NumberingHandler) Status(c *gin.Context) {
	domain := c.Query("domain")
	if domain == "" {
		h.BadRequest(c, "domain is required")
		return
	}
	var year *int
	if raw := c.Query("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil {
			h.BadRequest(c, "year must be an integer")
			return
		}
		year = &y
	}
	st, err := h.generator.Status(c.Request.Context(), domain, firstNonEmpty(c.Query("tenantId"), actorOf(c).TenantID), year)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, st)
}

// Reset sets a series' counter. Administrators only.
func (h *NumberingHandler) Reset(c *gin.Context) {
	var req ResetCounterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	ctx := c.Request.Context()
	tenantID := firstNonEmpty(req.TenantID, actorOf(c).TenantID)
	var value int64
	if req.Value != nil {
		value = *req.Value
	}
	if err := h.generator.Reset(ctx, req.Domain, tenantID, req.Year, value, req.Force); err != nil {
		h.HandleError(c, err)
		return
	}
	st, err := h.generator.Status(ctx, req.Domain, tenantID, req.Year)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, st)
}
