package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qiniu/alert-policies/internal/alerting/catalog"
	"github.com/qiniu/alert-policies/internal/alerting/provision"
	"github.com/qiniu/alert-policies/internal/metrics"
	"github.com/qiniu/alert-policies/internal/middleware"
	"github.com/rs/zerolog/log"
)

// Catalog is the read-only view of the catalog the API serves.
type Catalog interface {
	ListPolicies(ctx context.Context) ([]*catalog.Entry, error)
	ListChangeLogs(ctx context.Context, limit int) ([]*catalog.ChangeLog, error)
}

// API serves a rendered manifest for review.
type API struct {
	manifest provision.Manifest
	index    map[string]int
	metrics  *metrics.Metrics
	catalog  Catalog
}

// New creates the API over m. mt and cat may be nil; the matching routes then
// report 404.
func New(m provision.Manifest, mt *metrics.Metrics, cat Catalog) *API {
	index := make(map[string]int, len(m.Policies))
	for i, d := range m.Policies {
		index[d.DisplayName] = i
	}
	return &API{manifest: m, index: index, metrics: mt, catalog: cat}
}

// NewRouter returns a gin engine with the API routes registered behind mws.
func NewRouter(a *API, mws ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestLogger())
	router.Use(gin.Recovery())
	router.Use(mws...)
	a.Register(router)
	return router
}

func (a *API) Register(router *gin.Engine) {
	router.GET("/healthz", a.Healthz)
	router.GET("/v1/alert-policies", a.ListPolicies)
	router.GET("/v1/alert-policies/:name", a.GetPolicy)
	router.GET("/v1/catalog/alert-policies", a.ListCatalog)
	router.GET("/v1/changelog/alert-policies", a.ListChangeLogs)
	if a.metrics != nil {
		router.GET("/metrics", gin.WrapH(a.metrics.Handler()))
	}
}

func (a *API) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *API) ListPolicies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"runId":       a.manifest.RunID,
		"generatedAt": a.manifest.GeneratedAt,
		"items":       a.manifest.Policies,
		"total":       len(a.manifest.Policies),
	})
}

func (a *API) GetPolicy(c *gin.Context) {
	name := c.Param("name")
	i, ok := a.index[name]
	if !ok {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "alert policy "+name+" not found")
		return
	}
	c.JSON(http.StatusOK, a.manifest.Policies[i])
}

type catalogItem struct {
	Name        string          `json:"name"`
	Kind        string          `json:"kind"`
	Fingerprint string          `json:"fingerprint"`
	RunID       string          `json:"runId"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Spec        json.RawMessage `json:"spec"`
}

// ListCatalog returns what the catalog last recorded as applied, per policy.
func (a *API) ListCatalog(c *gin.Context) {
	if a.catalog == nil {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "catalog is not configured")
		return
	}
	entries, err := a.catalog.ListPolicies(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list catalog alert policies")
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list catalog")
		return
	}
	items := make([]catalogItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, catalogItem{
			Name:        e.Name,
			Kind:        e.Kind,
			Fingerprint: e.Fingerprint,
			RunID:       e.RunID,
			UpdatedAt:   e.UpdatedAt,
			Spec:        json.RawMessage(e.Spec),
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (a *API) ListChangeLogs(c *gin.Context) {
	if a.catalog == nil {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "catalog is not configured")
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(c, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	items, err := a.catalog.ListChangeLogs(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list alert policy change logs")
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list change logs")
		return
	}
	if items == nil {
		items = []*catalog.ChangeLog{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}
