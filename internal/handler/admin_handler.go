package handler

import (
	"net/http"

	"docchat-go/internal/service"
	"docchat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AdminHandler 负责处理管理端 API 请求。
type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// Status 返回所有外部依赖的健康状态。
func (h *AdminHandler) Status(c *gin.Context) {
	status := h.adminService.Status(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": status})
}

// Reprocess 启动全量文档重建任务，立即返回任务 id。
func (h *AdminHandler) Reprocess(c *gin.Context) {
	jobID, err := h.adminService.StartReprocessAll(c.Request.Context())
	if err != nil {
		log.Errorf("Reprocess: 启动重建任务失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "启动重建任务失败"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"code":    http.StatusAccepted,
		"message": "重建任务已启动",
		"data":    gin.H{"jobId": jobID},
	})
}

// GetJob 查询重建任务的进度。
func (h *AdminHandler) GetJob(c *gin.Context) {
	job, err := h.adminService.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		log.Errorf("GetJob: 查询任务失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询任务失败"})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": job})
}
