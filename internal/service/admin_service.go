package service

import (
	"context"
	"encoding/json"
	"time"

	"docchat-go/internal/model"
	"docchat-go/internal/pipeline"
	"docchat-go/internal/repository"
	"docchat-go/pkg/database"
	"docchat-go/pkg/llm"
	"docchat-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
)

// ComponentStatus 描述单个依赖组件的健康状态。
type ComponentStatus struct {
	Status string `json:"status"` // "ok" 或 "error"
	Detail string `json:"detail,omitempty"`
}

// SystemStatus 汇总所有外部依赖的健康检查结果。
type SystemStatus struct {
	Elasticsearch ComponentStatus `json:"elasticsearch"`
	MySQL         ComponentStatus `json:"mysql"`
	Redis         ComponentStatus `json:"redis"`
	LLM           ComponentStatus `json:"llm"`
	Models        []string        `json:"models,omitempty"`
}

// AdminService 定义了管理端操作的业务接口。
type AdminService interface {
	// Status 逐个探测外部依赖，单个组件故障不影响其他检查。
	Status(ctx context.Context) *SystemStatus
	// StartReprocessAll 启动全量文档重建任务，立即返回任务 id。
	// 实际处理在后台进行，进度通过 GetJob 轮询。
	StartReprocessAll(ctx context.Context) (string, error)
	// GetJob 查询重建任务进度；不存在时返回 (nil, nil)。
	GetJob(ctx context.Context, jobID string) (*model.ReprocessJob, error)
}

type adminService struct {
	esClient     *elasticsearch.Client
	llmClient    llm.Client
	documentRepo repository.DocumentRepository
	jobRepo      repository.JobRepository
	processor    pipeline.Processor
}

// NewAdminService 创建一个新的 AdminService 实例。
func NewAdminService(
	esClient *elasticsearch.Client,
	llmClient llm.Client,
	documentRepo repository.DocumentRepository,
	jobRepo repository.JobRepository,
	processor pipeline.Processor,
) AdminService {
	return &adminService{
		esClient:     esClient,
		llmClient:    llmClient,
		documentRepo: documentRepo,
		jobRepo:      jobRepo,
		processor:    processor,
	}
}

func (s *adminService) Status(ctx context.Context) *SystemStatus {
	// 单个组件卡死不应拖垮整个状态检查
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := &SystemStatus{}

	status.Elasticsearch = s.checkElasticsearch(ctx)
	status.MySQL = checkMySQL()
	status.Redis = checkRedis(ctx)

	models, err := s.llmClient.Models(ctx)
	if err != nil {
		status.LLM = ComponentStatus{Status: "error", Detail: err.Error()}
	} else {
		status.LLM = ComponentStatus{Status: "ok"}
		status.Models = models
	}
	return status
}

func (s *adminService) checkElasticsearch(ctx context.Context) ComponentStatus {
	res, err := s.esClient.Cluster.Health(s.esClient.Cluster.Health.WithContext(ctx))
	if err != nil {
		return ComponentStatus{Status: "error", Detail: err.Error()}
	}
	defer res.Body.Close()

	if res.IsError() {
		return ComponentStatus{Status: "error", Detail: res.String()}
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		return ComponentStatus{Status: "error", Detail: err.Error()}
	}
	return ComponentStatus{Status: "ok", Detail: health.Status}
}

func checkMySQL() ComponentStatus {
	sqlDB, err := database.DB.DB()
	if err != nil {
		return ComponentStatus{Status: "error", Detail: err.Error()}
	}
	if err := sqlDB.Ping(); err != nil {
		return ComponentStatus{Status: "error", Detail: err.Error()}
	}
	return ComponentStatus{Status: "ok"}
}

func checkRedis(ctx context.Context) ComponentStatus {
	if err := database.RDB.Ping(ctx).Err(); err != nil {
		return ComponentStatus{Status: "error", Detail: err.Error()}
	}
	return ComponentStatus{Status: "ok"}
}

func (s *adminService) StartReprocessAll(ctx context.Context) (string, error) {
	docs, err := s.documentRepo.FindAllActive()
	if err != nil {
		return "", err
	}

	job := &model.ReprocessJob{
		ID:        uuid.NewString(),
		Status:    model.JobStatusPending,
		Total:     len(docs),
		CreatedAt: time.Now(),
	}
	if err := s.jobRepo.Save(ctx, job); err != nil {
		return "", err
	}

	// 任务在后台执行，请求立即返回 jobId 供轮询
	go s.runReprocess(job, docs)

	log.Infof("[Admin] 重建任务 %s 已启动, 共 %d 个文档", job.ID, len(docs))
	return job.ID, nil
}

// runReprocess 逐个重建文档索引。单个文档失败记录结果后继续，
// 进度在每个文档完成后落盘，轮询方能看到增量进展。
func (s *adminService) runReprocess(job *model.ReprocessJob, docs []model.Document) {
	ctx := context.Background()

	job.Status = model.JobStatusRunning
	if err := s.jobRepo.Save(ctx, job); err != nil {
		log.Errorf("[Admin] 更新任务 %s 状态失败: %v", job.ID, err)
	}

	for _, doc := range docs {
		item := model.JobItemResult{DocumentID: doc.ID, Title: doc.Title}
		if err := s.processor.ProcessDocument(ctx, doc.ID); err != nil {
			log.Errorf("[Admin] 重建文档 %s 失败: %v", doc.ID, err)
			item.Status = "failed"
			item.Error = err.Error()
			job.Failed++
		} else {
			item.Status = "succeeded"
			job.Succeeded++
		}
		job.Items = append(job.Items, item)

		if err := s.jobRepo.Save(ctx, job); err != nil {
			log.Errorf("[Admin] 更新任务 %s 进度失败: %v", job.ID, err)
		}
	}

	job.Status = model.JobStatusCompleted
	if err := s.jobRepo.Save(ctx, job); err != nil {
		log.Errorf("[Admin] 完成任务 %s 状态写入失败: %v", job.ID, err)
	}
	log.Infof("[Admin] 重建任务 %s 完成: 成功 %d, 失败 %d", job.ID, job.Succeeded, job.Failed)
}

func (s *adminService) GetJob(ctx context.Context, jobID string) (*model.ReprocessJob, error) {
	return s.jobRepo.FindByID(ctx, jobID)
}
