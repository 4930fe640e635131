package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/aihub/classroom-rag/internal/database"
	"github.com/aihub/classroom-rag/internal/knowledge"
	"github.com/aihub/classroom-rag/internal/storage"
)

// HealthController 依赖健康检查
type HealthController struct {
	BaseController
	DB       *database.HealthChecker
	Index    knowledge.VectorIndex
	Embedder knowledge.Embedder
	Blobs    storage.BlobStore
}

// Get GET /health，任一必需依赖不可用时返回 503
func (c *HealthController) Get() {
	ctx, cancel := context.WithTimeout(c.Ctx.Request.Context(), 3*time.Second)
	defer cancel()

	components := map[string]interface{}{}
	healthy := true

	if c.DB != nil {
		result := c.DB.Result()
		components["database"] = result
		healthy = healthy && result.Healthy
	}
	if c.Index != nil {
		ready := c.Index.Ready()
		components["vector_index"] = map[string]bool{"ready": ready}
		healthy = healthy && ready
	}
	if c.Embedder != nil {
		ready := c.Embedder.Ready()
		components["embedder"] = map[string]bool{"ready": ready}
		healthy = healthy && ready
	}
	if c.Blobs != nil {
		ready := c.Blobs.Ready(ctx)
		components["storage"] = map[string]bool{"ready": ready}
		healthy = healthy && ready
	}

	status, label := http.StatusOK, "healthy"
	if !healthy {
		status, label = http.StatusServiceUnavailable, "unhealthy"
	}
	c.JSON(status, map[string]interface{}{
		"status":     label,
		"components": components,
		"time":       time.Now().UTC(),
	})
}
