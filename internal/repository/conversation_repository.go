package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"docchat-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// conversationTTL 是对话在 Redis 中的保留时长。
const conversationTTL = 7 * 24 * time.Hour

// ConversationRepository 定义了对话记录的操作接口。
type ConversationRepository interface {
	Save(ctx context.Context, conv *model.Conversation) error
	// FindByID 返回指定对话；不存在时返回 (nil, nil)。
	FindByID(ctx context.Context, conversationID string) (*model.Conversation, error)
	Delete(ctx context.Context, conversationID string) (bool, error)
	// FindByUser 返回用户的全部对话，按更新时间倒序。
	FindByUser(ctx context.Context, userID uint) ([]model.Conversation, error)
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

func conversationKey(id string) string {
	return fmt.Sprintf("conversation:%s", id)
}

func userConversationsKey(userID uint) string {
	return fmt.Sprintf("user:%d:conversations", userID)
}

// Save 序列化整个对话并写入 Redis，同时把对话 id 加入用户索引集合。
func (r *redisConversationRepository) Save(ctx context.Context, conv *model.Conversation) error {
	jsonData, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("序列化对话失败: %w", err)
	}
	if err := r.redisClient.Set(ctx, conversationKey(conv.ID), jsonData, conversationTTL).Err(); err != nil {
		return fmt.Errorf("保存对话失败: %w", err)
	}

	userKey := userConversationsKey(conv.UserID)
	if err := r.redisClient.SAdd(ctx, userKey, conv.ID).Err(); err != nil {
		return fmt.Errorf("更新用户对话索引失败: %w", err)
	}
	return r.redisClient.Expire(ctx, userKey, conversationTTL).Err()
}

func (r *redisConversationRepository) FindByID(ctx context.Context, conversationID string) (*model.Conversation, error) {
	jsonData, err := r.redisClient.Get(ctx, conversationKey(conversationID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取对话失败: %w", err)
	}
	var conv model.Conversation
	if err := json.Unmarshal([]byte(jsonData), &conv); err != nil {
		return nil, fmt.Errorf("反序列化对话失败: %w", err)
	}
	return &conv, nil
}

// Delete 删除对话并清理用户索引，返回是否确实存在。
func (r *redisConversationRepository) Delete(ctx context.Context, conversationID string) (bool, error) {
	conv, err := r.FindByID(ctx, conversationID)
	if err != nil {
		return false, err
	}
	if conv == nil {
		return false, nil
	}
	if err := r.redisClient.Del(ctx, conversationKey(conversationID)).Err(); err != nil {
		return false, fmt.Errorf("删除对话失败: %w", err)
	}
	_ = r.redisClient.SRem(ctx, userConversationsKey(conv.UserID), conversationID).Err()
	return true, nil
}

func (r *redisConversationRepository) FindByUser(ctx context.Context, userID uint) ([]model.Conversation, error) {
	ids, err := r.redisClient.SMembers(ctx, userConversationsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("读取用户对话索引失败: %w", err)
	}

	conversations := make([]model.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			// 对话已过期，顺手清理索引
			_ = r.redisClient.SRem(ctx, userConversationsKey(userID), id).Err()
			continue
		}
		conversations = append(conversations, *conv)
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})
	return conversations, nil
}
