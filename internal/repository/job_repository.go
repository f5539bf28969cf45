package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"docchat-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// jobTTL 是重处理任务状态在 Redis 中的保留时长。
const jobTTL = 24 * time.Hour

// JobRepository 定义了后台重处理任务状态的操作接口，供轮询查询。
type JobRepository interface {
	Save(ctx context.Context, job *model.ReprocessJob) error
	// FindByID 返回指定任务；不存在时返回 (nil, nil)。
	FindByID(ctx context.Context, jobID string) (*model.ReprocessJob, error)
}

type redisJobRepository struct {
	redisClient *redis.Client
}

// NewJobRepository 创建一个新的 JobRepository 实例。
func NewJobRepository(redisClient *redis.Client) JobRepository {
	return &redisJobRepository{redisClient: redisClient}
}

func jobKey(id string) string {
	return fmt.Sprintf("reprocess:job:%s", id)
}

func (r *redisJobRepository) Save(ctx context.Context, job *model.ReprocessJob) error {
	job.UpdatedAt = time.Now()
	jsonData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("序列化任务状态失败: %w", err)
	}
	if err := r.redisClient.Set(ctx, jobKey(job.ID), jsonData, jobTTL).Err(); err != nil {
		return fmt.Errorf("保存任务状态失败: %w", err)
	}
	return nil
}

func (r *redisJobRepository) FindByID(ctx context.Context, jobID string) (*model.ReprocessJob, error) {
	jsonData, err := r.redisClient.Get(ctx, jobKey(jobID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取任务状态失败: %w", err)
	}
	var job model.ReprocessJob
	if err := json.Unmarshal([]byte(jsonData), &job); err != nil {
		return nil, fmt.Errorf("反序列化任务状态失败: %w", err)
	}
	return &job, nil
}
