package handler

import (
	"net/http"
	"strconv"

	"docchat-go/internal/config"
	"docchat-go/internal/service"
	"docchat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 负责处理上下文检索相关的 API 请求。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Context 按查询检索上下文片段，主要供调试和前端预览使用。
func (h *SearchHandler) Context(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少查询参数 q"})
		return
	}

	limit := config.Conf.Retrieval.ContextLimit
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit 必须是正整数"})
			return
		}
		limit = parsed
	}

	snippets, err := h.searchService.SearchDocumentsForContext(c.Request.Context(), query, limit)
	if err != nil {
		log.Errorf("Context: 上下文检索失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "检索失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": snippets})
}
