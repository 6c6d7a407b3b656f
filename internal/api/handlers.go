package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"configforge/internal/blob"
	"configforge/internal/core"
	"configforge/pkg/domain"
)

// Handlers holds the HTTP handlers.
type Handlers struct {
	svc    *core.Service
	logger *slog.Logger
}

// NewHandlers creates handlers for svc.
func NewHandlers(svc *core.Service, logger *slog.Logger) *Handlers {
	return &Handlers{svc: svc, logger: logger}
}

// SelectRequest is the body of PUT /v1/hierarchy.
type SelectRequest struct {
	Level domain.Level `json:"level" binding:"required"`
	ID    string       `json:"id" binding:"required"`
}

// StepRequest is the body of PUT /v1/step.
type StepRequest struct {
	Step int `json:"step" binding:"required"`
}

// FieldUpdate is the body of the PATCH endpoints.
type FieldUpdate struct {
	Field string `json:"field" binding:"required"`
	Value any    `json:"value"`
}

// RollbackRequest is the optional body of POST /v1/patches/rollback. When To
// is set the queue is truncated to its first To entries, otherwise the last
// entry is dropped.
type RollbackRequest struct {
	To *int `json:"to"`
}

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	Message string `json:"message" binding:"required"`
	Apply   bool   `json:"apply"`
}

// SavedConfiguration is the reply of GET /v1/configurations/*key.
type SavedConfiguration struct {
	Info     blob.Info           `json:"info"`
	Document core.ReviewDocument `json:"document"`
}

// ConfigurationLink is the reply of GET /v1/configurations/*key?link=true.
type ConfigurationLink struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// AskResponse wraps the assistant result and whether it was applied.
type AskResponse struct {
	core.AskResult
	Applied bool `json:"applied"`
}

// PendingPatch is one queue entry with its display text.
type PendingPatch struct {
	Index       int                  `json:"index"`
	Patch       domain.PatchEnvelope `json:"patch"`
	Description string               `json:"description"`
}

// ApplyResponse reports which patches were applied and which were rejected.
type ApplyResponse struct {
	Applied  int              `json:"applied"`
	Rejected []core.Rejection `json:"rejected"`
	State    core.State       `json:"state"`
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "request_id", c.GetString("request_id"), "error", err)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error()})
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

func (h *Handlers) state(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.State())
}

// HandleState handles GET /v1/state.
func (h *Handlers) HandleState(c *gin.Context) { h.state(c) }

// HandleReview handles GET /v1/review.
func (h *Handlers) HandleReview(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.ReviewDocument())
}

// HandleOptions handles GET /v1/options/:level. Options depend on the
// current selection one level up.
func (h *Handlers) HandleOptions(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("level"))
	level := domain.Level(n)
	if err != nil || !level.Selectable() {
		h.badRequest(c, fmt.Errorf("%w: %q", domain.ErrInvalidLevel, c.Param("level")))
		return
	}
	options := h.svc.Options(level)
	if options == nil {
		options = []domain.HierarchyOption{}
	}
	c.JSON(http.StatusOK, options)
}

// HandleSelectHierarchy handles PUT /v1/hierarchy.
func (h *Handlers) HandleSelectHierarchy(c *gin.Context) {
	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.svc.SelectHierarchy(c.Request.Context(), req.Level, req.ID); err != nil {
		h.fail(c, err)
		return
	}
	h.state(c)
}

// HandleSetStep handles PUT /v1/step.
func (h *Handlers) HandleSetStep(c *gin.Context) {
	var req StepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.svc.SetCurrentStep(c.Request.Context(), req.Step); err != nil {
		h.fail(c, err)
		return
	}
	h.state(c)
}

// HandleRecalc handles POST /v1/recalc.
func (h *Handlers) HandleRecalc(c *gin.Context) {
	if err := h.svc.Recalc(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	h.state(c)
}

// HandleUpdateParameter handles PATCH /v1/parameters/:id.
func (h *Handlers) HandleUpdateParameter(c *gin.Context) {
	var req FieldUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.svc.UpdateParameter(c.Request.Context(), c.Param("id"), core.ParameterField(req.Field), req.Value); err != nil {
		h.fail(c, err)
		return
	}
	h.state(c)
}

// HandleResetParameter handles DELETE /v1/parameters/:id/value.
func (h *Handlers) HandleResetParameter(c *gin.Context) {
	if err := h.svc.ResetParameter(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	h.state(c)
}

// HandleCreateCalculation handles POST /v1/calculations with a builder
// draft.
func (h *Handlers) HandleCreateCalculation(c *gin.Context) {
	h.saveCalculation(c, "")
}

// HandleSaveCalculation handles PUT /v1/calculations/:id, replacing the
// builder fields of an existing calculation.
func (h *Handlers) HandleSaveCalculation(c *gin.Context) {
	h.saveCalculation(c, c.Param("id"))
}

func (h *Handlers) saveCalculation(c *gin.Context, editID string) {
	var draft core.CalculationDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		h.badRequest(c, err)
		return
	}
	saved, err := h.svc.SaveCalculation(c.Request.Context(), draft, editID)
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusOK
	if editID == "" {
		status = http.StatusCreated
	}
	c.JSON(status, saved)
}

// HandleUpdateCalculation handles PATCH /v1/calculations/:id.
func (h *Handlers) HandleUpdateCalculation(c *gin.Context) {
	var req FieldUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	value, ok := req.Value.(string)
	if !ok {
		h.badRequest(c, fmt.Errorf("%w: calculation fields take strings", domain.ErrInvalidValue))
		return
	}
	if err := h.svc.UpdateCalculation(c.Request.Context(), c.Param("id"), core.CalculationField(req.Field), value); err != nil {
		h.fail(c, err)
		return
	}
	h.state(c)
}

// HandleRemoveCalculation handles DELETE /v1/calculations/:id.
func (h *Handlers) HandleRemoveCalculation(c *gin.Context) {
	if err := h.svc.RemoveCalculation(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	h.state(c)
}

// HandleListPatches handles GET /v1/patches.
func (h *Handlers) HandleListPatches(c *gin.Context) {
	patches := h.svc.Store().Patches()
	out := make([]PendingPatch, 0, len(patches))
	for i, p := range patches {
		out = append(out, PendingPatch{Index: i, Patch: p.Envelope(), Description: h.svc.DescribePatch(p)})
	}
	c.JSON(http.StatusOK, out)
}

// HandleValidatePatches handles POST /v1/patches/validate.
func (h *Handlers) HandleValidatePatches(c *gin.Context) {
	var envelopes []domain.PatchEnvelope
	if err := c.ShouldBindJSON(&envelopes); err != nil {
		h.badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.ValidatePatches(c.Request.Context(), envelopes))
}

// HandleApplyPatches handles POST /v1/patches/apply. Envelopes are validated
// first and only the valid ones are applied, as one batch.
func (h *Handlers) HandleApplyPatches(c *gin.Context) {
	var envelopes []domain.PatchEnvelope
	if err := c.ShouldBindJSON(&envelopes); err != nil {
		h.badRequest(c, err)
		return
	}
	report := h.svc.ValidatePatches(c.Request.Context(), envelopes)
	if len(report.Valid) > 0 {
		if err := h.svc.ApplyPatches(c.Request.Context(), report.Valid...); err != nil {
			h.fail(c, err)
			return
		}
	}
	rejected := report.Rejected
	if rejected == nil {
		rejected = []core.Rejection{}
	}
	c.JSON(http.StatusOK, ApplyResponse{Applied: len(report.Valid), Rejected: rejected, State: h.svc.State()})
}

// HandleRollback handles POST /v1/patches/rollback.
func (h *Handlers) HandleRollback(c *gin.Context) {
	var req RollbackRequest
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			h.badRequest(c, err)
			return
		}
	}
	var err error
	if req.To != nil {
		err = h.svc.RollbackTo(c.Request.Context(), *req.To)
	} else {
		err = h.svc.Rollback(c.Request.Context())
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	h.state(c)
}

// HandleCommit handles POST /v1/patches/commit.
func (h *Handlers) HandleCommit(c *gin.Context) {
	if err := h.svc.CommitPatches(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	h.state(c)
}

// HandleAsk handles POST /v1/ask. With apply set, validated suggestions are
// applied right away.
func (h *Handlers) HandleAsk(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	result, err := h.svc.Ask(c.Request.Context(), req.Message)
	if err != nil {
		h.fail(c, err)
		return
	}
	if result.Suggestions == nil {
		result.Suggestions = []domain.Patch{}
	}
	resp := AskResponse{AskResult: result}
	if req.Apply && len(result.Suggestions) > 0 {
		if err := h.svc.ApplySuggestions(c.Request.Context(), result); err != nil {
			h.fail(c, err)
			return
		}
		resp.Applied = true
	}
	c.JSON(http.StatusOK, resp)
}

// HandleSaveConfiguration handles POST /v1/configurations.
func (h *Handlers) HandleSaveConfiguration(c *gin.Context) {
	info, err := h.svc.SaveConfiguration(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

// HandleListConfigurations handles GET /v1/configurations.
func (h *Handlers) HandleListConfigurations(c *gin.Context) {
	infos, err := h.svc.ListConfigurations(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, infos)
}

// HandleGetConfiguration handles GET /v1/configurations/*key. With
// link=true it returns a download link instead of the document; expiry
// (a Go duration) bounds the link's lifetime where the driver signs links.
func (h *Handlers) HandleGetConfiguration(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	link, err := strconv.ParseBool(c.DefaultQuery("link", "false"))
	if err != nil {
		h.badRequest(c, fmt.Errorf("invalid link flag %q", c.Query("link")))
		return
	}
	if link {
		var expiry time.Duration
		if raw := c.Query("expiry"); raw != "" {
			expiry, err = time.ParseDuration(raw)
			if err != nil || expiry <= 0 {
				h.badRequest(c, fmt.Errorf("invalid expiry %q", raw))
				return
			}
		}
		url, err := h.svc.ConfigurationURL(c.Request.Context(), key, expiry)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, ConfigurationLink{Key: key, URL: url})
		return
	}
	doc, info, err := h.svc.GetConfiguration(c.Request.Context(), key)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SavedConfiguration{Info: info, Document: doc})
}

// HandleDeleteConfiguration handles DELETE /v1/configurations/*key.
func (h *Handlers) HandleDeleteConfiguration(c *gin.Context) {
	if err := h.svc.DeleteConfiguration(c.Request.Context(), strings.TrimPrefix(c.Param("key"), "/")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
