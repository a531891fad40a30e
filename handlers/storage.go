package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corestack/corestack/internal/store"
	"github.com/corestack/corestack/pkg/metrics"
)

// StorageHandler exposes the generic document store.
type StorageHandler struct {
	storeSvc *store.Service
}

func NewStorageHandler(s *store.Service) *StorageHandler {
	return &StorageHandler{storeSvc: s}
}

// Register routes under /storage/v1
func (h *StorageHandler) Register(rg *gin.RouterGroup) {
	s := rg.Group("/storage/v1")
	s.GET("/:collection", h.Find)
	s.GET("/:collection/:key", h.Get)
	s.POST("/:collection", h.Insert)
	s.POST("/:collection/aggregate", h.Aggregate)
	s.PATCH("/:collection", h.Update)
	s.PATCH("/:collection/:key", h.UpdateOne)
	s.DELETE("/:collection", h.Delete)
	s.DELETE("/:collection/:key", h.DeleteOne)
}

// decodeParam unmarshals a JSON document from a URL query parameter.
// Numbers stay json.Number so the store can retype them precisely.
func decodeParam(c *gin.Context, name string) (store.Document, error) {
	raw := c.Query(name)
	if raw == "" {
		return store.Document{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var doc store.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parameter %q: %w", name, err)
	}
	return doc, nil
}

// keysProjection turns a JSON string array (?keys=["name","email"])
// into an inclusion projection.
func keysProjection(c *gin.Context) (store.Document, error) {
	raw := c.Query("keys")
	if raw == "" {
		return nil, nil
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, fmt.Errorf("parameter %q: %w", "keys", err)
	}
	proj := store.Document{}
	for _, k := range keys {
		proj[k] = int64(1)
	}
	return proj, nil
}

func (h *StorageHandler) done(c *gin.Context, op string, err error) bool {
	if err != nil {
		metrics.StorageOps.WithLabelValues(op, "error").Inc()
		respondError(c, err)
		return false
	}
	metrics.StorageOps.WithLabelValues(op, "ok").Inc()
	return true
}

// Find returns every document matching ?query=, optionally trimmed to
// ?keys=.
func (h *StorageHandler) Find(c *gin.Context) {
	query, err := decodeParam(c, "query")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	projection, err := keysProjection(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	docs, err := h.storeSvc.Find(c.Request.Context(), c.Param("collection"), query, projection)
	if !h.done(c, "find", err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// Get returns one document by id.
func (h *StorageHandler) Get(c *gin.Context) {
	doc, err := h.storeSvc.Get(c.Request.Context(), c.Param("collection"), c.Param("key"))
	if !h.done(c, "get", err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": doc})
}

// Insert stores one document or a list of documents and returns the
// generated ids in input order.
func (h *StorageHandler) Insert(c *gin.Context) {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var docs []store.Document
	switch v := body.(type) {
	case map[string]any:
		docs = []store.Document{v}
	case []any:
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "array items must be objects"})
				return
			}
			docs = append(docs, m)
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be an object or an array of objects"})
		return
	}
	ids, err := h.storeSvc.Insert(c.Request.Context(), c.Param("collection"), docs)
	if !h.done(c, "insert", err) {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ids": ids})
}

type updateRequest struct {
	Update store.Document `json:"update" binding:"required"`
	Query  store.Document `json:"query"`
}

// Update applies an update to every document matching the query.
func (h *StorageHandler) Update(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	modified, err := h.storeSvc.Update(c.Request.Context(), c.Param("collection"), req.Update, req.Query)
	if !h.done(c, "update", err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"modified": modified})
}

// UpdateOne applies an update to the document with the given id.
func (h *StorageHandler) UpdateOne(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	query := store.Document{"_id": c.Param("key")}
	modified, err := h.storeSvc.Update(c.Request.Context(), c.Param("collection"), req.Update, query)
	if !h.done(c, "update", err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"modified": modified})
}

// Delete removes every document matching ?query=.
func (h *StorageHandler) Delete(c *gin.Context) {
	query, err := decodeParam(c, "query")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deleted, err := h.storeSvc.Delete(c.Request.Context(), c.Param("collection"), query)
	if !h.done(c, "delete", err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// DeleteOne removes the document with the given id.
func (h *StorageHandler) DeleteOne(c *gin.Context) {
	query := store.Document{"_id": c.Param("key")}
	deleted, err := h.storeSvc.Delete(c.Request.Context(), c.Param("collection"), query)
	if !h.done(c, "delete", err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// Aggregate runs a whitelisted aggregation pipeline.
func (h *StorageHandler) Aggregate(c *gin.Context) {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	var req struct {
		Pipeline []any `json:"pipeline"`
	}
	if err := dec.Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var pipeline []store.Document
	for _, stage := range req.Pipeline {
		m, ok := stage.(map[string]any)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pipeline stages must be objects"})
			return
		}
		pipeline = append(pipeline, m)
	}
	docs, err := h.storeSvc.Aggregate(c.Request.Context(), c.Param("collection"), pipeline)
	if !h.done(c, "aggregate", err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}
