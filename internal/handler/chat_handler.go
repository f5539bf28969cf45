package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"docchat-go/internal/service"
	"docchat-go/pkg/log"
	"docchat-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理问答请求，包括 REST 和 WebSocket 两种方式。
type ChatHandler struct {
	chatService service.ChatService
	userService service.UserService
	jwtManager  *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, userService service.UserService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		userService: userService,
		jwtManager:  jwtManager,
	}
}

// ChatRequest 定义了问答 API 的请求体结构。
type ChatRequest struct {
	Query          string `json:"query" binding:"required"`
	ConversationID string `json:"conversationId"`
	Model          string `json:"model"`
	UseContext     *bool  `json:"useContext"`
}

// Chat 处理一次非流式问答请求。
func (h *ChatHandler) Chat(c *gin.Context) {
	user := mustCurrentUser(c)
	if user == nil {
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载：query 不能为空"})
		return
	}

	// 未显式指定时默认启用文档上下文
	useContext := true
	if req.UseContext != nil {
		useContext = *req.UseContext
	}

	result, err := h.chatService.InvokeLLM(c.Request.Context(), req.Query, req.ConversationID, req.Model, useContext, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidQuery):
			c.JSON(http.StatusBadRequest, gin.H{"error": "查询至少需要 2 个字符"})
		case errors.Is(err, service.ErrLLMUnavailable):
			c.JSON(http.StatusBadGateway, gin.H{"error": "模型服务暂不可用"})
		default:
			log.Errorf("Chat: 问答失败: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "问答失败"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": result})
}

// streamRequest 是 WebSocket 问答消息的结构。
type streamRequest struct {
	Type           string `json:"type"` // "chat" 或 "stop"
	Query          string `json:"query"`
	ConversationID string `json:"conversationId"`
	Model          string `json:"model"`
	UseContext     *bool  `json:"useContext"`
}

// HandleWS 处理一个传入的 WebSocket 连接。
// token 通过路径参数传递，因为浏览器的 WebSocket API 不支持自定义请求头。
func (h *ChatHandler) HandleWS(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	user, err := h.userService.GetProfile(claims.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", claims.Username)

	var stopFlag bool
	var stopMu sync.Mutex
	shouldStop := func() bool {
		stopMu.Lock()
		defer stopMu.Unlock()
		return stopFlag
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var req streamRequest
		if err := json.Unmarshal(message, &req); err != nil {
			writeWSError(conn, "无法解析消息")
			continue
		}

		if req.Type == "stop" {
			stopMu.Lock()
			stopFlag = true
			stopMu.Unlock()
			continue
		}

		stopMu.Lock()
		stopFlag = false
		stopMu.Unlock()

		useContext := true
		if req.UseContext != nil {
			useContext = *req.UseContext
		}

		err = h.chatService.StreamResponse(c.Request.Context(), req.Query, req.ConversationID, req.Model, useContext, user.ID, conn, shouldStop)
		if err != nil {
			log.Errorf("StreamResponse 失败: %v", err)
			switch {
			case errors.Is(err, service.ErrInvalidQuery):
				writeWSError(conn, "查询至少需要 2 个字符")
			case errors.Is(err, service.ErrLLMUnavailable):
				writeWSError(conn, "模型服务暂不可用")
			default:
				writeWSError(conn, "问答失败")
			}
		}
	}
}

// writeWSError 以 JSON 形式向客户端发送错误通知。
func writeWSError(conn *websocket.Conn, message string) {
	payload := map[string]string{"type": "error", "message": message}
	b, _ := json.Marshal(payload)
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("发送 WebSocket 错误通知失败: %v", err)
	}
}
