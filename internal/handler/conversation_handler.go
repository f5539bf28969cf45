package handler

import (
	"net/http"

	"docchat-go/internal/service"
	"docchat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 负责处理对话记录相关的 API 请求。
type ConversationHandler struct {
	chatService service.ChatService
}

// NewConversationHandler 创建一个新的 ConversationHandler 实例。
func NewConversationHandler(chatService service.ChatService) *ConversationHandler {
	return &ConversationHandler{chatService: chatService}
}

// List 返回当前用户的所有对话，按更新时间倒序。
func (h *ConversationHandler) List(c *gin.Context) {
	user := mustCurrentUser(c)
	if user == nil {
		return
	}

	conversations, err := h.chatService.GetConversations(c.Request.Context(), user.ID)
	if err != nil {
		log.Errorf("List: 查询对话列表失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询对话列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": conversations})
}

// Get 返回单个对话的完整消息记录。
func (h *ConversationHandler) Get(c *gin.Context) {
	user := mustCurrentUser(c)
	if user == nil {
		return
	}

	conv, err := h.chatService.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		log.Errorf("Get: 查询对话失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询对话失败"})
		return
	}
	if conv == nil || conv.UserID != user.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "对话不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": conv})
}

// Delete 删除单个对话。
func (h *ConversationHandler) Delete(c *gin.Context) {
	user := mustCurrentUser(c)
	if user == nil {
		return
	}

	conv, err := h.chatService.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		log.Errorf("Delete: 查询对话失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除对话失败"})
		return
	}
	if conv == nil || conv.UserID != user.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "对话不存在"})
		return
	}

	deleted, err := h.chatService.DeleteConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		log.Errorf("Delete: 删除对话失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除对话失败"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "对话不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "删除成功", "data": nil})
}
