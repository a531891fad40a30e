package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/corestack/corestack/internal/archive"
	"github.com/corestack/corestack/pkg/middleware"
)

// ArchiveHandler exposes binary uploads backed by the object store,
// with one metadata document per entry. All routes require an
// authenticated account; uploads are attributed to it.
type ArchiveHandler struct {
	archiveSvc *archive.Service
	auth       *middleware.Authenticator
}

func NewArchiveHandler(a *archive.Service, auth *middleware.Authenticator) *ArchiveHandler {
	return &ArchiveHandler{archiveSvc: a, auth: auth}
}

// Register routes under /archive/v1
func (h *ArchiveHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/archive/v1", h.auth.Authenticated())
	a.GET("/", h.List)
	a.POST("/", h.Upload)
	a.GET("/:key", h.Download)
	a.DELETE("/:key", h.Delete)
}

// List returns metadata entries, optionally filtered by ?query=.
func (h *ArchiveHandler) List(c *gin.Context) {
	query, err := decodeParam(c, "query")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entries, err := h.archiveSvc.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Upload accepts a multipart form with a `file` part and stores the
// payload plus a metadata document.
func (h *ArchiveHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' required"})
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	acct, _, _ := middleware.AccountFrom(c)
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	entry, err := h.archiveSvc.Upload(c.Request.Context(), header.Filename, contentType, header.Size, f, acct.Key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"entry": entry})
}

// presignTTL bounds how long a direct download URL stays valid.
const presignTTL = 15 * time.Minute

// Download streams one archived payload, or returns a time-limited
// direct URL when ?presign=true and the object store supports it.
func (h *ArchiveHandler) Download(c *gin.Context) {
	if c.Query("presign") == "true" {
		url, err := h.archiveSvc.PresignURL(c.Request.Context(), c.Param("key"), presignTTL)
		if errors.Is(err, archive.ErrPresignUnsupported) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url})
		return
	}

	meta, rc, err := h.archiveSvc.Open(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()

	contentType, _ := meta["contentType"].(string)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	size, _ := meta["size"].(int64)
	name, _ := meta["name"].(string)
	extra := map[string]string{}
	if name != "" {
		extra["Content-Disposition"] = `attachment; filename="` + name + `"`
	}
	c.DataFromReader(http.StatusOK, size, contentType, rc, extra)
}

// Delete removes an entry's metadata and payload.
func (h *ArchiveHandler) Delete(c *gin.Context) {
	if err := h.archiveSvc.Remove(c.Request.Context(), c.Param("key")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
