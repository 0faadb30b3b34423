// Package httpapi mounts Core Nexus's REST surface on a gin.Engine,
// grounded on the teacher's internal/plugin/route/* MountRoutes convention.
package httpapi

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/corenexus/memory-service/internal/errs"
	"github.com/corenexus/memory-service/internal/facade"
	"github.com/corenexus/memory-service/internal/graph"
	"github.com/corenexus/memory-service/internal/model"
	registryvector "github.com/corenexus/memory-service/internal/registry/vectorprovider"
	"github.com/corenexus/memory-service/internal/unifiedstore"
)

// MountRoutes mounts the memory and graph endpoints on r.
func MountRoutes(r *gin.Engine, svc *facade.MemoryService, gp *graph.Provider, store *unifiedstore.Orchestrator) {
	r.POST("/memories", func(c *gin.Context) { createMemory(c, svc) })
	r.POST("/memories/batch", func(c *gin.Context) { createMemoriesBatch(c, svc) })
	r.POST("/memories/query", func(c *gin.Context) { queryMemories(c, svc) })
	r.GET("/memories/:id", func(c *gin.Context) { getMemory(c, svc) })
	r.DELETE("/memories/:id", func(c *gin.Context) { deleteMemory(c, svc) })

	r.GET("/providers", func(c *gin.Context) { providerInventory(c, store) })

	r.GET("/graph/stats", func(c *gin.Context) { graphStats(c, gp) })
	r.POST("/graph/query", func(c *gin.Context) { graphQuery(c, gp) })
	r.GET("/graph/explore/:name", func(c *gin.Context) { graphExplore(c, gp) })
	r.POST("/graph/sync/:memory_id", func(c *gin.Context) { graphSync(c, svc, gp) })
}

type createMemoryRequest struct {
	Content        string                 `json:"content" binding:"required"`
	Metadata       map[string]interface{} `json:"metadata"`
	UserID         *string                `json:"userId"`
	ConversationID *string                `json:"conversationId"`
}

type memoryResponse struct {
	ID              uuid.UUID              `json:"id"`
	Content         string                 `json:"content"`
	Metadata        map[string]interface{} `json:"metadata"`
	ImportanceScore float64                `json:"importanceScore"`
	LowQuality      bool                   `json:"lowQuality"`
	Embedding       []float32              `json:"embedding,omitempty"`
}

type queryFiltersRequest struct {
	Metadata       map[string]interface{} `json:"metadata"`
	UserID         *string                `json:"userId"`
	ConversationID *string                `json:"conversationId"`
}

func (f queryFiltersRequest) toFilters() registryvector.Filters {
	return registryvector.Filters{
		Metadata:       f.Metadata,
		UserID:         f.UserID,
		ConversationID: f.ConversationID,
	}
}

func createMemory(c *gin.Context, svc *facade.MemoryService) {
	var req createMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := svc.CreateMemory(c.Request.Context(), req.Content, req.Metadata, req.UserID, req.ConversationID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMemoryResponse(c, result.Memory))
}

type createMemoriesBatchRequest struct {
	Memories []createMemoryRequest `json:"memories" binding:"required"`
}

func createMemoriesBatch(c *gin.Context, svc *facade.MemoryService) {
	var req createMemoriesBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out := make([]memoryResponse, 0, len(req.Memories))
	for _, m := range req.Memories {
		result, err := svc.CreateMemory(c.Request.Context(), m.Content, m.Metadata, m.UserID, m.ConversationID)
		if err != nil {
			handleError(c, err)
			return
		}
		out = append(out, toMemoryResponse(c, result.Memory))
	}
	c.JSON(http.StatusOK, gin.H{"memories": out})
}

type queryMemoriesRequest struct {
	Text          string              `json:"text"`
	Limit         int                 `json:"limit"`
	MinSimilarity float64             `json:"minSimilarity"`
	Filters       queryFiltersRequest `json:"filters"`
}

type queryHit struct {
	MemoryID        uuid.UUID              `json:"memoryId"`
	Score           float64                `json:"score"`
	Content         string                 `json:"content,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	ImportanceScore float64                `json:"importanceScore,omitempty"`
}

func queryMemories(c *gin.Context, svc *facade.MemoryService) {
	var req queryMemoriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	outcome, err := svc.QueryMemories(c.Request.Context(), req.Text, req.Limit, req.MinSimilarity, req.Filters.toFilters())
	if err != nil {
		handleError(c, err)
		return
	}
	hits := make([]queryHit, 0, len(outcome.Results))
	for _, r := range outcome.Results {
		hits = append(hits, queryHit{
			MemoryID:        r.MemoryID,
			Score:           r.Score,
			Content:         r.Content,
			Metadata:        r.Metadata,
			ImportanceScore: r.ImportanceScore,
		})
	}
	if outcome.ServedBy != "" {
		c.Header("X-Served-By", outcome.ServedBy)
	}
	c.JSON(http.StatusOK, gin.H{"results": hits, "servedBy": outcome.ServedBy})
}

func getMemory(c *gin.Context, svc *facade.MemoryService) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid memory id"})
		return
	}
	mem, err := svc.GetMemory(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMemoryResponse(c, mem))
}

func deleteMemory(c *gin.Context, svc *facade.MemoryService) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid memory id"})
		return
	}
	if err := svc.DeleteMemory(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func providerInventory(c *gin.Context, store *unifiedstore.Orchestrator) {
	health := store.HealthSnapshot(c.Request.Context())
	stats := store.Stats(c.Request.Context())
	out := make(map[string]gin.H, len(stats))
	for name, s := range stats {
		out[name] = gin.H{
			"state": health[name],
			"count": s.Count,
		}
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

func graphStats(c *gin.Context, gp *graph.Provider) {
	stats, err := gp.Stats(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodeCount": stats.NodeCount, "relationshipCount": stats.RelationshipCount})
}

type graphQueryRequest struct {
	Mode     string `json:"mode" binding:"required"` // "explore" | "path" | "insights"
	Entity   string `json:"entity"`
	From     string `json:"from"`
	To       string `json:"to"`
	MaxDepth int    `json:"maxDepth"`
	MemoryID string `json:"memoryId"`
}

func graphQuery(c *gin.Context, gp *graph.Provider) {
	var req graphQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Mode {
	case "explore":
		if req.Entity == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "entity is required for explore mode"})
			return
		}
		nodes, err := gp.Explore(c.Request.Context(), req.Entity, req.MaxDepth)
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"nodes": nodes})
	case "path":
		if req.From == "" || req.To == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from and to are required for path mode"})
			return
		}
		nodes, err := gp.Path(c.Request.Context(), req.From, req.To)
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"path": nodes})
	case "insights":
		if req.MemoryID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "memoryId is required for insights mode"})
			return
		}
		memID, err := uuid.Parse(req.MemoryID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid memory id"})
			return
		}
		insights, err := gp.Insights(c.Request.Context(), memID)
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"insights": insights})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be 'explore', 'path' or 'insights'"})
	}
}

func graphExplore(c *gin.Context, gp *graph.Provider) {
	name := c.Param("name")
	maxDepth := queryInt(c, "maxDepth", 0)
	nodes, err := gp.Explore(c.Request.Context(), name, maxDepth)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes})
}

func graphSync(c *gin.Context, svc *facade.MemoryService, gp *graph.Provider) {
	id, err := uuid.Parse(c.Param("memory_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid memory id"})
		return
	}
	mem, err := svc.GetMemory(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	if err := gp.Ingest(c.Request.Context(), mem); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// toMemoryResponse excludes the embedding by default — REDESIGN
// acknowledgment: callers opt in with ?include=embedding.
func toMemoryResponse(c *gin.Context, mem model.Memory) memoryResponse {
	resp := memoryResponse{
		ID:              mem.ID,
		Content:         mem.Content,
		Metadata:        mem.Metadata,
		ImportanceScore: mem.ImportanceScore,
		LowQuality:      mem.LowQuality,
	}
	if c.Query("include") == "embedding" {
		resp.Embedding = mem.Embedding
	}
	return resp
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil {
		return def
	}
	return i
}

func handleError(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	status := errs.HTTPStatus(kind)
	if status >= 500 {
		log.Error("httpapi: request failed", "err", err, "stack", string(debug.Stack()))
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": string(kind)})
}
