package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"docchat-go/internal/model"
	"docchat-go/internal/repository"
	"docchat-go/pkg/llm"
	"docchat-go/pkg/log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrInvalidQuery 表示查询不满足最小长度要求。
var ErrInvalidQuery = errors.New("query must be at least 2 characters")

// ErrLLMUnavailable 表示 LLM 服务端调用失败，handler 层映射为 502。
var ErrLLMUnavailable = errors.New("llm service unavailable")

// titleMaxLen 是从首条消息截取对话标题的最大字符数。
const titleMaxLen = 30

// ChatResult 是一次非流式问答的结果。
type ChatResult struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversationId"`
	UsedContext    bool   `json:"usedContext"`
}

// ChatService 定义了问答编排的业务接口。
type ChatService interface {
	// InvokeLLM 执行一次完整的 RAG 问答：检索上下文、构建提示词、
	// 调用 LLM 并把问答追加到对话记录。
	InvokeLLM(ctx context.Context, query, conversationID, modelName string, useContext bool, userID uint) (*ChatResult, error)
	// StreamResponse 与 InvokeLLM 流程一致，但把 LLM 输出流式写入 websocket。
	StreamResponse(ctx context.Context, query, conversationID, modelName string, useContext bool, userID uint, ws *websocket.Conn, shouldStop func() bool) error
	GetConversations(ctx context.Context, userID uint) ([]model.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) (bool, error)
}

type chatService struct {
	searchService    SearchService
	llmClient        llm.Client
	conversationRepo repository.ConversationRepository
	contextLimit     int
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	searchService SearchService,
	llmClient llm.Client,
	conversationRepo repository.ConversationRepository,
	contextLimit int,
) ChatService {
	return &chatService{
		searchService:    searchService,
		llmClient:        llmClient,
		conversationRepo: conversationRepo,
		contextLimit:     contextLimit,
	}
}

// promptState 保存一次问答的上下文检索结果与发给 LLM 的消息序列。
type promptState struct {
	conversation *model.Conversation
	messages     []llm.Message
	contextUsed  bool
	contextDocs  []model.ContextDocRef
}

func (s *chatService) InvokeLLM(ctx context.Context, query, conversationID, modelName string, useContext bool, userID uint) (*ChatResult, error) {
	state, err := s.prepare(ctx, query, conversationID, modelName, useContext, userID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	answer, err := s.llmClient.Chat(ctx, modelName, state.messages)
	if err != nil {
		log.Errorf("[Chat] LLM 调用失败: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}
	responseTime := time.Since(start).Seconds()

	s.finalize(ctx, state, query, answer, responseTime)

	return &ChatResult{
		Response:       answer,
		ConversationID: state.conversation.ID,
		UsedContext:    state.contextUsed,
	}, nil
}

// StreamResponse 把 LLM 的流式输出包装成 JSON 分块写入 websocket，
// 完成后发送 completion 通知并保存对话。
func (s *chatService) StreamResponse(ctx context.Context, query, conversationID, modelName string, useContext bool, userID uint, ws *websocket.Conn, shouldStop func() bool) error {
	state, err := s.prepare(ctx, query, conversationID, modelName, useContext, userID)
	if err != nil {
		return err
	}

	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: ws, writer: answerBuilder, shouldStop: shouldStop}

	start := time.Now()
	if err := s.llmClient.StreamChatMessages(ctx, modelName, state.messages, interceptor); err != nil {
		log.Errorf("[Chat] LLM 流式调用失败: %v", err)
		return fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}
	responseTime := time.Since(start).Seconds()

	sendCompletion(ws, state.conversation.ID)

	fullAnswer := answerBuilder.String()
	if len(fullAnswer) > 0 {
		// 使用后台上下文：即使请求被取消也要保存已生成的答案
		s.finalize(context.Background(), state, query, fullAnswer, responseTime)
	}
	return nil
}

// prepare 校验查询、装载对话并构建发给 LLM 的消息序列。
// 检索失败只记日志并降级为无上下文回答。
func (s *chatService) prepare(ctx context.Context, query, conversationID, modelName string, useContext bool, userID uint) (*promptState, error) {
	if utf8.RuneCountInString(strings.TrimSpace(query)) < 2 {
		return nil, ErrInvalidQuery
	}

	var conversation *model.Conversation
	if conversationID != "" {
		existing, err := s.conversationRepo.FindByID(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		conversation = existing
	}
	if conversation == nil {
		now := time.Now()
		conversation = &model.Conversation{
			ID:        uuid.NewString(),
			Model:     modelName,
			UserID:    userID,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	messages := make([]llm.Message, 0, len(conversation.Messages)+2)
	for _, m := range conversation.Messages {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: query})

	state := &promptState{conversation: conversation, messages: messages}

	if useContext {
		snippets, err := s.searchService.SearchDocumentsForContext(ctx, query, s.contextLimit)
		if err != nil {
			// 检索子系统故障不阻断问答，降级为无上下文
			log.Errorf("[Chat] 上下文检索失败，降级为无上下文回答: %v", err)
		} else if len(snippets) > 0 {
			state.contextUsed = true
			prompt, docs := buildContextPrompt(snippets, query)
			state.contextDocs = docs

			// 首轮对话直接用增强提示词替换用户消息，
			// 后续轮次把上下文作为 system 消息前置
			if len(state.messages) == 1 {
				state.messages[0].Content = prompt
			} else {
				state.messages = append([]llm.Message{{Role: "system", Content: prompt}}, state.messages...)
			}
		}
	}
	return state, nil
}

// finalize 把问答追加到对话记录、更新元数据并保存。
// 保存失败只记日志，不影响已经生成的回答。
func (s *chatService) finalize(ctx context.Context, state *promptState, query, answer string, responseTime float64) {
	now := time.Now()
	conv := state.conversation
	conv.Messages = append(conv.Messages,
		model.ChatMessage{Role: "user", Content: query, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: answer, Timestamp: now},
	)
	conv.UpdatedAt = now

	if conv.Title == "" {
		conv.Title = makeTitle(conv.Messages[0].Content)
	}

	conv.Metadata.LastQueryUsedContext = state.contextUsed
	if state.contextUsed {
		conv.Metadata.LastContextDocs = state.contextDocs
		conv.Metadata.LastResponseTime = responseTime
	}

	if err := s.conversationRepo.Save(ctx, conv); err != nil {
		log.Errorf("[Chat] 保存对话 %s 失败: %v", conv.ID, err)
	}
}

func (s *chatService) GetConversations(ctx context.Context, userID uint) ([]model.Conversation, error) {
	return s.conversationRepo.FindByUser(ctx, userID)
}

func (s *chatService) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	return s.conversationRepo.FindByID(ctx, conversationID)
}

func (s *chatService) DeleteConversation(ctx context.Context, conversationID string) (bool, error) {
	return s.conversationRepo.Delete(ctx, conversationID)
}

// buildContextPrompt 把检索到的片段按文档分组，格式化为带来源标注的提示词，
// 同时收集本轮引用的文档信息用于对话元数据。
func buildContextPrompt(snippets []model.ContextSnippet, query string) (string, []model.ContextDocRef) {
	var sb strings.Builder
	sb.WriteString("I'll provide relevant information from documents to help answer your question. Please use this information to give an accurate response.\n\n")

	var order []string
	grouped := make(map[string][]model.ContextSnippet)
	docs := make([]model.ContextDocRef, 0, len(snippets))
	for _, snippet := range snippets {
		if _, ok := grouped[snippet.DocumentID]; !ok {
			order = append(order, snippet.DocumentID)
		}
		grouped[snippet.DocumentID] = append(grouped[snippet.DocumentID], snippet)

		pageInfo := snippet.PageInfo
		if pageInfo == "" && snippet.PageNumber > 0 {
			pageInfo = fmt.Sprintf("Page %d", snippet.PageNumber)
		}
		docs = append(docs, model.ContextDocRef{
			DocumentID: snippet.DocumentID,
			Title:      snippet.Title,
			PageInfo:   pageInfo,
		})
	}

	for i, docID := range order {
		group := grouped[docID]
		sort.SliceStable(group, func(a, b int) bool { return group[a].PageNumber < group[b].PageNumber })

		sb.WriteString(fmt.Sprintf("DOCUMENT %d: %q\n", i+1, group[0].Title))
		for _, snippet := range group {
			switch {
			case snippet.PageInfo != "":
				sb.WriteString(fmt.Sprintf("[%s]:\n%s\n\n", snippet.PageInfo, snippet.Snippet))
			case snippet.PageNumber > 0:
				sb.WriteString(fmt.Sprintf("[Page %d]:\n%s\n\n", snippet.PageNumber, snippet.Snippet))
			default:
				sb.WriteString(snippet.Snippet + "\n\n")
			}
		}
	}

	sb.WriteString("QUESTION: " + query + "\n\n")
	sb.WriteString("ANSWER: Please provide a comprehensive answer based on the document information provided above. Include specific details from the documents and cite the source documents and pages when possible.")
	return sb.String(), docs
}

// makeTitle 从首条消息截取对话标题。
func makeTitle(firstMessage string) string {
	runes := []rune(firstMessage)
	if len(runes) <= titleMaxLen {
		return firstMessage
	}
	return string(runes[:titleMaxLen]) + "..."
}

// wsWriterInterceptor 是对 websocket.Conn 的封装，用于捕获写入的消息。
type wsWriterInterceptor struct {
	conn       *websocket.Conn
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	w.writer.Write(data)
	// 将原始分块包装成 {"chunk":"..."}
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(ws *websocket.Conn, conversationID string) {
	notif := map[string]interface{}{
		"type":           "completion",
		"status":         "finished",
		"conversationId": conversationID,
		"timestamp":      time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(notif)
	if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Errorf("[Chat] 发送完成通知失败: %v", err)
	}
}
