package handler

import (
	"net/http"

	"bunker-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ModelHandler 处理模型目录查询。
type ModelHandler struct {
	catalogService service.CatalogService
}

// NewModelHandler 创建一个新的 ModelHandler。
func NewModelHandler(catalogService service.CatalogService) *ModelHandler {
	return &ModelHandler{catalogService: catalogService}
}

// List 处理 GET /models。聚合永远成功，单个后端失败只是贡献零条目。
func (h *ModelHandler) List(c *gin.Context) {
	catalog := h.catalogService.ListModels(c.Request.Context())
	c.JSON(http.StatusOK, catalog)
}
