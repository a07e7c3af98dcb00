// Package api serves the transfer service over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/franksops/filexfer/engine"
	"github.com/franksops/filexfer/ftp"
	"github.com/franksops/filexfer/store"
	"github.com/franksops/filexfer/translog"
)

// Transferer runs transfer batches.
type Transferer interface {
	Run(ctx context.Context, req engine.TransferRequest) (*engine.BatchResult, error)
	Upload(ctx context.Context, req engine.TransferRequest, payloads []engine.Payload) (*engine.BatchResult, error)
}

// Prober checks that an FTP server accepts a login.
type Prober interface {
	CheckConnectivity(ctx context.Context, host string, port int) error
}

// ProbeRecorder counts probe results.
type ProbeRecorder interface {
	RecordProbe(result string)
}

// Deps are the collaborators of a Handler. Tracker and Probes may be nil.
type Deps struct {
	Transfers Transferer
	Prober    Prober
	Logs      *translog.Logger
	Resolver  engine.Resolver
	Tracker   *engine.JobTracker
	Probes    ProbeRecorder
	Log       *slog.Logger
}

type Handler struct {
	Deps
	startedAt time.Time
}

func NewHandler(deps Deps) *Handler {
	return &Handler{Deps: deps, startedAt: time.Now()}
}

// FileEntry is one row of a directory listing.
type FileEntry struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ModifiedDate string `json:"modifiedDate"`
}

func errorJSON(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

// batchError maps a batch failure onto a status code: rejected requests are
// the caller's fault, anything else is ours.
func (h *Handler) batchError(c *gin.Context, err error) {
	if errors.Is(err, engine.ErrValidation) {
		h.Log.Warn("transfer request rejected", "error", err)
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	h.Log.Error("transfer batch failed", "error", err)
	errorJSON(c, http.StatusInternalServerError, err)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// RunTransfer transfers every file of the source directory.
func (h *Handler) RunTransfer(c *gin.Context) {
	var req engine.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	result, err := h.Transfers.Run(c.Request.Context(), req)
	if err != nil {
		h.batchError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// UploadFiles sends the files of a multipart form to the destination FTP
// server.
func (h *Handler) UploadFiles(c *gin.Context) {
	var req engine.TransferRequest
	if err := c.ShouldBind(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		h.batchError(c, engine.ErrNoFiles)
		return
	}

	headers := form.File["files"]
	payloads := make([]engine.Payload, len(headers))
	for i, fh := range headers {
		fh := fh
		payloads[i] = engine.Payload{
			Name: fh.Filename,
			Size: fh.Size,
			Open: func(context.Context) (io.ReadCloser, error) {
				return fh.Open()
			},
		}
	}

	result, err := h.Transfers.Upload(c.Request.Context(), req, payloads)
	if err != nil {
		h.batchError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CheckFTP logs in to an FTP server and disconnects. server is a label
// echoed back to the caller.
func (h *Handler) CheckFTP(c *gin.Context) {
	server := c.Query("server")
	host := c.Query("ftpServerIp")
	port, err := strconv.Atoi(c.Query("ftpPort"))
	if host == "" || err != nil || port <= 0 {
		errorJSON(c, http.StatusBadRequest, errors.New("ftpServerIp and ftpPort are required"))
		return
	}

	err = h.Prober.CheckConnectivity(c.Request.Context(), host, port)
	if err == nil {
		h.recordProbe("ok")
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Connected to FTP server " + server,
		})
		return
	}

	status, kind := http.StatusInternalServerError, "protocol"
	if ftp.IsNetworkError(err) {
		status, kind = http.StatusBadGateway, "network"
	}
	h.recordProbe(kind + "_error")
	h.Log.Error("ftp probe failed", "server", server, "host", host, "port", port, "kind", kind, "error", err)
	c.JSON(status, gin.H{
		"success":   false,
		"server":    server,
		"errorKind": kind,
		"error":     err.Error(),
	})
}

func (h *Handler) recordProbe(result string) {
	if h.Probes != nil {
		h.Probes.RecordProbe(result)
	}
}

// GetLogs returns the lines of every log channel.
func (h *Handler) GetLogs(c *gin.Context) {
	lines := []string{}
	for _, ch := range translog.Channels {
		chLines, err := h.Logs.ReadAll(ch)
		if err != nil {
			h.Log.Error("read log channel failed", "channel", ch, "error", err)
			errorJSON(c, http.StatusInternalServerError, err)
			return
		}
		lines = append(lines, chLines...)
	}
	c.JSON(http.StatusOK, lines)
}

// GetChecksumLogs returns the lines of the checksum channel.
func (h *Handler) GetChecksumLogs(c *gin.Context) {
	lines, err := h.Logs.ReadAll(translog.ChannelChecksum)
	if err != nil {
		h.Log.Error("read log channel failed", "channel", translog.ChannelChecksum, "error", err)
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, lines)
}

// ClearLogs empties every channel. Channels that cannot be cleared are
// reported on the service log only.
func (h *Handler) ClearLogs(c *gin.Context) {
	if err := h.Logs.ClearAll(); err != nil {
		h.Log.Warn("some log channels could not be cleared", "error", err)
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Logs cleared",
	})
}

// ListFiles lists the files of the source (server=1) or destination
// directory. A missing directory lists as empty.
func (h *Handler) ListFiles(c *gin.Context) {
	sourcePath := c.Query("sourcePath")
	destinationPath := c.Query("destinationPath")
	if sourcePath == "" || destinationPath == "" {
		errorJSON(c, http.StatusBadRequest, errors.New("sourcePath and destinationPath are required"))
		return
	}

	dir := destinationPath
	if c.Query("server") == "1" {
		dir = sourcePath
	}

	ctx := c.Request.Context()
	p, err := h.Resolver.Resolve(ctx, dir)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	entries, err := p.List(ctx, "")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		h.Log.Error("list directory failed", "dir", dir, "error", err)
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}

	files := []FileEntry{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, FileEntry{
			Name:         e.Name(),
			Size:         e.Size(),
			ModifiedDate: e.ModTime().Format(translog.TimestampLayout),
		})
	}
	c.JSON(http.StatusOK, files)
}

// GetBatch returns the audit record of a batch and its files.
func (h *Handler) GetBatch(c *gin.Context) {
	batch, jobs, err := h.Tracker.Lookup(c.Param("id"))
	if errors.Is(err, store.ErrBatchNotFound) {
		errorJSON(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		h.Log.Error("batch lookup failed", "batch", c.Param("id"), "error", err)
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"batch": batch,
		"files": jobs,
	})
}
