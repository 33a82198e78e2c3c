package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sbr_monitor/database"
	"sbr_monitor/models"
	"sbr_monitor/reconcile"
	"sbr_monitor/remote"
	"sbr_monitor/scanner"
	"sbr_monitor/synccontrol"
	"sbr_monitor/transfer"

	"github.com/gin-gonic/gin"
)

const maxImportBytes = 32 << 20

// Handler implements the HTTP endpoints on top of a sync controller
type Handler struct {
	ctl        *synccontrol.Controller
	thresholds models.Thresholds
	now        func() time.Time
}

// NewHandler creates a Handler
func NewHandler(ctl *synccontrol.Controller, thresholds models.Thresholds) *Handler {
	return &Handler{ctl: ctl, thresholds: thresholds, now: time.Now}
}

type measurementRequest struct {
	Point     string   `json:"point"`
	Timestamp *int64   `json:"timestamp"`
	ScaleA    *float64 `json:"scaleA"`
	ScaleB    *float64 `json:"scaleB"`
	Note      string   `json:"note"`
	models.Readings
}

type settingsRequest struct {
	SyncID          *string `json:"syncId"`
	AutoSyncEnabled *bool   `json:"autoSyncEnabled"`
}

type syncResult struct {
	Added    int                  `json:"added"`
	Settings *models.SyncSettings `json:"settings,omitempty"`
	Status   synccontrol.Snapshot `json:"status"`
}

func (h *Handler) ListMeasurements(c *gin.Context) {
	history, err := h.ctl.Store().GetHistory(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	var filter models.Filter
	filter.AlertsOnly, _ = strconv.ParseBool(c.Query("alerts"))
	if p := c.Query("point"); p != "" {
		point, ok := models.ParseSamplingPoint(p)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown sampling point"})
			return
		}
		filter.Point = point
	}
	c.JSON(http.StatusOK, models.FilterHistory(history, filter))
}

func (h *Handler) CreateMeasurement(c *gin.Context) {
	var body measurementRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	point, ok := models.ParseSamplingPoint(body.Point)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown sampling point"})
		return
	}
	ts := h.now()
	if body.Timestamp != nil {
		ts = time.UnixMilli(*body.Timestamp)
	}

	m, err := models.NewMeasurement(models.EntryInput{
		Point:     point,
		Timestamp: ts,
		Readings:  body.Readings,
		ScaleA:    body.ScaleA,
		ScaleB:    body.ScaleB,
		Note:      body.Note,
	}, h.thresholds)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ctl.AddMeasurement(c.Request.Context(), m); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) DeleteMeasurement(c *gin.Context) {
	if err := h.ctl.DeleteMeasurement(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Summary(c *gin.Context) {
	history, err := h.ctl.Store().GetHistory(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Summarize(history, h.now()))
}

func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.ctl.Settings(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings sets or clears the sync identifier and toggles auto-sync.
// An empty syncId clears the settings.
func (h *Handler) UpdateSettings(c *gin.Context) {
	var body settingsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	ctx := c.Request.Context()

	if body.SyncID != nil {
		var err error
		if strings.TrimSpace(*body.SyncID) == "" {
			_, err = h.ctl.ClearSyncID(ctx)
		} else {
			_, err = h.ctl.SetSyncID(ctx, *body.SyncID)
		}
		if err != nil {
			h.writeError(c, err)
			return
		}
	}
	if body.AutoSyncEnabled != nil {
		if _, err := h.ctl.SetAutoSync(ctx, *body.AutoSyncEnabled); err != nil {
			h.writeError(c, err)
			return
		}
	}
	h.GetSettings(c)
}

func (h *Handler) GenerateSyncID(c *gin.Context) {
	settings, err := h.ctl.GenerateSyncID(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) ClearSyncID(c *gin.Context) {
	settings, err := h.ctl.ClearSyncID(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) SyncIDQR(c *gin.Context) {
	settings, err := h.ctl.Settings(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "256"))
	var buf bytes.Buffer
	if err := transfer.WriteSyncIDQR(&buf, settings.SyncID, size); err != nil {
		h.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctl.Status())
}

func (h *Handler) Push(c *gin.Context) {
	settings, err := h.ctl.Push(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, syncResult{Settings: &settings, Status: h.ctl.Status()})
}

func (h *Handler) Pull(c *gin.Context) {
	added, err := h.ctl.Pull(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, syncResult{Added: added, Status: h.ctl.Status()})
}

// PullReplace requires {"confirm": true}. An empty body is an unconfirmed
// request; a malformed one is rejected.
func (h *Handler) PullReplace(c *gin.Context) {
	var body struct {
		Confirm bool `json:"confirm"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	n, err := h.ctl.PullReplace(c.Request.Context(), func(int, int) bool { return body.Confirm })
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"replaced": n, "status": h.ctl.Status()})
}

func (h *Handler) FullSync(c *gin.Context) {
	added, settings, err := h.ctl.FullSync(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, syncResult{Added: added, Settings: &settings, Status: h.ctl.Status()})
}

func (h *Handler) ExportJSON(c *gin.Context) {
	history, err := h.ctl.Store().GetHistory(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := transfer.ExportJSON(&buf, history); err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+h.exportName("json")+`"`)
	c.Data(http.StatusOK, "application/json", buf.Bytes())
}

func (h *Handler) ExportCSV(c *gin.Context) {
	history, err := h.ctl.Store().GetHistory(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := scanner.WriteCSV(&buf, history); err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+h.exportName("csv")+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) ExportCode(c *gin.Context) {
	history, err := h.ctl.Store().GetHistory(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	code, err := transfer.EncodeShareCode(history)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code, "count": len(history)})
}

// Import accepts exported JSON, a share code or base64 JSON as the raw body
func (h *Handler) Import(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	added, err := transfer.Import(c.Request.Context(), h.ctl, data)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added})
}

func (h *Handler) exportName(ext string) string {
	return "sbr-history-" + h.now().Format("2006-01-02") + "." + ext
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, database.ErrMeasurementNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, reconcile.ErrNotConfirmed),
		errors.Is(err, reconcile.ErrHistoryChanged):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, reconcile.ErrSyncDisabled),
		errors.Is(err, remote.ErrInvalidID),
		errors.Is(err, transfer.ErrInvalidFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, remote.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, remote.ErrUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
