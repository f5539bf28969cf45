package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docchat-go/internal/model"
	"docchat-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearchService struct {
	snippets []model.ContextSnippet
	err      error
}

func (s *stubSearchService) SearchDocumentsForContext(ctx context.Context, query string, limit int) ([]model.ContextSnippet, error) {
	return s.snippets, s.err
}

type stubLLMClient struct {
	answer   string
	err      error
	messages []llm.Message
}

func (s *stubLLMClient) Chat(ctx context.Context, model string, messages []llm.Message) (string, error) {
	s.messages = messages
	return s.answer, s.err
}

func (s *stubLLMClient) StreamChatMessages(ctx context.Context, model string, messages []llm.Message, writer llm.MessageWriter) error {
	s.messages = messages
	return s.err
}

func (s *stubLLMClient) Models(ctx context.Context) ([]string, error) {
	return []string{"test-model"}, nil
}

type memConversationRepo struct {
	store map[string]*model.Conversation
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{store: make(map[string]*model.Conversation)}
}

func (r *memConversationRepo) Save(ctx context.Context, conv *model.Conversation) error {
	saved := *conv
	r.store[conv.ID] = &saved
	return nil
}

func (r *memConversationRepo) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	conv, ok := r.store[id]
	if !ok {
		return nil, nil
	}
	copied := *conv
	return &copied, nil
}

func (r *memConversationRepo) Delete(ctx context.Context, id string) (bool, error) {
	if _, ok := r.store[id]; !ok {
		return false, nil
	}
	delete(r.store, id)
	return true, nil
}

func (r *memConversationRepo) FindByUser(ctx context.Context, userID uint) ([]model.Conversation, error) {
	var out []model.Conversation
	for _, conv := range r.store {
		if conv.UserID == userID {
			out = append(out, *conv)
		}
	}
	return out, nil
}

func TestInvokeLLM_RejectsShortQuery(t *testing.T) {
	svc := NewChatService(&stubSearchService{}, &stubLLMClient{}, newMemConversationRepo(), 5)

	_, err := svc.InvokeLLM(context.Background(), "a", "", "test-model", true, 1)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestInvokeLLM_FirstTurnReplacesUserMessage(t *testing.T) {
	search := &stubSearchService{snippets: []model.ContextSnippet{
		{DocumentID: "doc-1", Title: "架构手册", Snippet: "系统采用分层架构", PageNumber: 3, PageInfo: "Page 3", Score: 0.8},
	}}
	llmClient := &stubLLMClient{answer: "回答"}
	svc := NewChatService(search, llmClient, newMemConversationRepo(), 5)

	result, err := svc.InvokeLLM(context.Background(), "系统架构是怎样的", "", "test-model", true, 1)
	require.NoError(t, err)
	assert.True(t, result.UsedContext)

	// 首轮：上下文提示词直接替换用户消息，不引入 system 消息
	require.Len(t, llmClient.messages, 1)
	assert.Equal(t, "user", llmClient.messages[0].Role)
	assert.Contains(t, llmClient.messages[0].Content, `DOCUMENT 1: "架构手册"`)
	assert.Contains(t, llmClient.messages[0].Content, "[Page 3]:")
	assert.Contains(t, llmClient.messages[0].Content, "QUESTION: 系统架构是怎样的")
}

func TestInvokeLLM_LaterTurnPrependsSystemMessage(t *testing.T) {
	search := &stubSearchService{snippets: []model.ContextSnippet{
		{DocumentID: "doc-1", Title: "架构手册", Snippet: "系统采用分层架构", PageNumber: 3, Score: 0.8},
	}}
	llmClient := &stubLLMClient{answer: "第二个回答"}
	repo := newMemConversationRepo()
	svc := NewChatService(search, llmClient, repo, 5)

	first, err := svc.InvokeLLM(context.Background(), "系统架构是怎样的", "", "test-model", true, 1)
	require.NoError(t, err)

	_, err = svc.InvokeLLM(context.Background(), "再详细一点", first.ConversationID, "test-model", true, 1)
	require.NoError(t, err)

	// 后续轮次：system 上下文 + 历史两条 + 本轮用户消息
	require.Len(t, llmClient.messages, 4)
	assert.Equal(t, "system", llmClient.messages[0].Role)
	assert.Equal(t, "user", llmClient.messages[3].Role)
	assert.Equal(t, "再详细一点", llmClient.messages[3].Content)
}

func TestInvokeLLM_UpdatesConversationMetadata(t *testing.T) {
	search := &stubSearchService{snippets: []model.ContextSnippet{
		{DocumentID: "doc-1", Title: "架构手册", Snippet: "内容", PageNumber: 2, PageInfo: "Pages 2-3", Score: 0.7},
	}}
	repo := newMemConversationRepo()
	svc := NewChatService(search, &stubLLMClient{answer: "回答"}, repo, 5)

	result, err := svc.InvokeLLM(context.Background(), "帮我总结文档", "", "test-model", true, 7)
	require.NoError(t, err)

	saved := repo.store[result.ConversationID]
	require.NotNil(t, saved)
	assert.True(t, saved.Metadata.LastQueryUsedContext)
	require.Len(t, saved.Metadata.LastContextDocs, 1)
	assert.Equal(t, "Pages 2-3", saved.Metadata.LastContextDocs[0].PageInfo)
	assert.Equal(t, uint(7), saved.UserID)
	require.Len(t, saved.Messages, 2)
	assert.Equal(t, "user", saved.Messages[0].Role)
	assert.Equal(t, "assistant", saved.Messages[1].Role)
}

func TestInvokeLLM_SearchFailureDegradesToNoContext(t *testing.T) {
	search := &stubSearchService{err: errors.New("search subsystem down")}
	llmClient := &stubLLMClient{answer: "回答"}
	svc := NewChatService(search, llmClient, newMemConversationRepo(), 5)

	result, err := svc.InvokeLLM(context.Background(), "系统架构是怎样的", "", "test-model", true, 1)
	require.NoError(t, err)

	assert.False(t, result.UsedContext)
	require.Len(t, llmClient.messages, 1)
	assert.Equal(t, "系统架构是怎样的", llmClient.messages[0].Content)
}

func TestInvokeLLM_LLMFailureReturnsTypedError(t *testing.T) {
	llmClient := &stubLLMClient{err: errors.New("connection refused")}
	svc := NewChatService(&stubSearchService{}, llmClient, newMemConversationRepo(), 5)

	_, err := svc.InvokeLLM(context.Background(), "系统架构是怎样的", "", "test-model", false, 1)
	assert.ErrorIs(t, err, ErrLLMUnavailable)
}

func TestMakeTitle_TruncatesLongFirstMessage(t *testing.T) {
	long := strings.Repeat("问", 40)
	title := makeTitle(long)
	assert.Equal(t, strings.Repeat("问", 30)+"...", title)

	assert.Equal(t, "短标题", makeTitle("短标题"))
}
