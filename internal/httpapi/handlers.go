package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/forPelevin/shortify/internal/apperr"
	"github.com/forPelevin/shortify/internal/domain/captions"
	"github.com/forPelevin/shortify/internal/domain/highlights"
	"github.com/forPelevin/shortify/internal/domain/style"
	"github.com/forPelevin/shortify/internal/domain/tokenize"
	"github.com/forPelevin/shortify/internal/domain/windows"
	"github.com/forPelevin/shortify/internal/jobs"
	"github.com/forPelevin/shortify/internal/types"
)

type handlers struct {
	jobs     jobs.Service
	tokenize tokenize.Options
	captions captions.Config
	windows  windows.Config
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// POST /v1/jobs
func (h *handlers) submitJob(c *gin.Context) {
	var req types.JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	rec, err := h.jobs.Submit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": rec})
}

// GET /v1/jobs?limit=N
func (h *handlers) listJobs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, apperr.New(apperr.KindInvalidArgument, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	recs, err := h.jobs.List(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": recs})
}

// GET /v1/jobs/:id
func (h *handlers) getJob(c *gin.Context) {
	rec, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": rec})
}

// POST /v1/jobs/:id/cancel
func (h *handlers) cancelJob(c *gin.Context) {
	rec, err := h.jobs.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": rec})
}

type segmentRequest struct {
	Transcript types.Transcript `json:"transcript"`
	Config     *captions.Config `json:"config,omitempty"`
}

// POST /v1/captions/segment
func (h *handlers) segmentCaptions(c *gin.Context) {
	var req segmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	cfg := h.captions
	if req.Config != nil {
		cfg = *req.Config
	}
	tok, err := tokenize.Tokenize(req.Transcript, h.tokenize)
	if err != nil {
		respondError(c, err)
		return
	}
	segs, err := captions.Segment(tok.Words, cfg)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"timing":      tok.Source,
		"durationSec": tok.DurationSec,
		"segments":    segs,
	})
}

type windowRequest struct {
	Spans       []types.ScoredSpan     `json:"spans"`
	Captions    []types.CaptionSegment `json:"captions,omitempty"`
	DurationSec float64                `json:"durationSec"`
	Config      *windows.Config        `json:"config,omitempty"`
}

// POST /v1/clips/window
func (h *handlers) windowClips(c *gin.Context) {
	var req windowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	cfg := h.windows
	if req.Config != nil {
		cfg = *req.Config
	}
	if req.DurationSec <= 0 {
		respondError(c, apperr.New(apperr.KindInvalidDuration, "durationSec must be > 0"))
		return
	}
	spans := highlights.Normalize(req.Spans, req.DurationSec, highlights.DefaultConfig().DedupeJaccard)
	clips, err := windows.Select(spans, req.Captions, req.DurationSec, cfg)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clips": clips})
}

// POST /v1/styles/resolve
func (h *handlers) resolveStyle(c *gin.Context) {
	var req types.StyleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	d, err := style.Resolve(req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"style": d})
}

// GET /v1/styles
func (h *handlers) listStyles(c *gin.Context) {
	defaults := make(map[string]types.StyleDescriptor, len(style.Presets()))
	for _, name := range style.Presets() {
		if d, ok := style.Preset(name); ok {
			defaults[name] = d
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"presets":    style.Presets(),
		"animations": style.Animations(),
		"positions":  style.Positions(),
		"defaults":   defaults,
	})
}
