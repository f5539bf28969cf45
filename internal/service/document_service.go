package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"docchat-go/internal/model"
	"docchat-go/internal/repository"
	"docchat-go/pkg/log"
	"docchat-go/pkg/pdf"
	"docchat-go/pkg/storage"
	"docchat-go/pkg/tasks"

	"github.com/google/uuid"
)

// maxUploadSize 是单个 PDF 文件的大小上限。
const maxUploadSize = 10 << 20 // 10MB

// ErrInvalidFile 表示上传的文件不是合法的 PDF。
var ErrInvalidFile = errors.New("only PDF files are accepted")

// ErrFileTooLarge 表示上传的文件超过大小限制。
var ErrFileTooLarge = errors.New("file exceeds the 10MB size limit")

// TaskProducer 把文档处理任务投递到消息队列。
type TaskProducer func(task tasks.DocumentProcessingTask) error

// DocumentService 定义了文档管理的业务接口。
type DocumentService interface {
	// Upload 接收 PDF 文件：存入对象存储、提取文本、落库并投递索引任务。
	Upload(ctx context.Context, filename string, data []byte) (*model.Document, error)
	List(ctx context.Context) ([]model.Document, error)
	Get(ctx context.Context, id string) (*model.Document, error)
	// Delete 级联删除：分块索引、文档索引、数据库记录、对象存储文件。
	Delete(ctx context.Context, id string) error
}

type documentService struct {
	documentRepo repository.DocumentRepository
	esDocRepo    repository.EsDocumentRepository
	chunkRepo    repository.ChunkRepository
	extractor    pdf.Extractor
	store        storage.ObjectStore
	produce      TaskProducer
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(
	documentRepo repository.DocumentRepository,
	esDocRepo repository.EsDocumentRepository,
	chunkRepo repository.ChunkRepository,
	extractor pdf.Extractor,
	store storage.ObjectStore,
	produce TaskProducer,
) DocumentService {
	return &documentService{
		documentRepo: documentRepo,
		esDocRepo:    esDocRepo,
		chunkRepo:    chunkRepo,
		extractor:    extractor,
		store:        store,
		produce:      produce,
	}
}

func (s *documentService) Upload(ctx context.Context, filename string, data []byte) (*model.Document, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, ErrInvalidFile
	}
	if len(data) > maxUploadSize {
		return nil, ErrFileTooLarge
	}

	result, err := s.extractor.Extract(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	documentID := uuid.NewString()
	objectName := documentID + ".pdf"

	if err := s.store.Put(ctx, objectName, data, "application/pdf"); err != nil {
		return nil, fmt.Errorf("上传文件到对象存储失败: %w", err)
	}

	doc := &model.Document{
		ID:         documentID,
		Title:      strings.TrimSuffix(filename, filepath.Ext(filename)),
		Filename:   filename,
		ObjectName: objectName,
		Content:    result.Content,
		PageCount:  result.PageCount,
		IsActive:   true,
	}
	if err := s.documentRepo.Create(doc); err != nil {
		// 落库失败时回收已上传的对象
		_ = s.store.Remove(ctx, objectName)
		return nil, fmt.Errorf("保存文档记录失败: %w", err)
	}

	now := time.Now()
	esDoc := model.EsDocument{
		Title:     doc.Title,
		Filename:  doc.Filename,
		Content:   doc.Content,
		PageCount: doc.PageCount,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.esDocRepo.Index(ctx, documentID, esDoc); err != nil {
		return nil, fmt.Errorf("索引文档失败: %w", err)
	}

	if err := s.produce(tasks.DocumentProcessingTask{DocumentID: documentID}); err != nil {
		return nil, fmt.Errorf("投递文档处理任务失败: %w", err)
	}

	log.Infof("[Document] 文档 %s (%s) 上传成功, %d 页", documentID, filename, result.PageCount)
	return doc, nil
}

func (s *documentService) List(ctx context.Context) ([]model.Document, error) {
	return s.documentRepo.FindAllActive()
}

func (s *documentService) Get(ctx context.Context, id string) (*model.Document, error) {
	return s.documentRepo.FindByID(id)
}

// Delete 先清理分块再删文档索引与数据库记录，最后删除对象存储文件。
// 文件删除失败只记日志：权威记录已经移除，残留文件可由巡检清理。
func (s *documentService) Delete(ctx context.Context, id string) error {
	doc, err := s.documentRepo.FindByID(id)
	if err != nil {
		return err
	}

	if err := s.chunkRepo.DeleteByDocumentID(ctx, id); err != nil {
		return fmt.Errorf("删除文档 %s 的分块失败: %w", id, err)
	}
	if err := s.esDocRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("删除文档 %s 的索引失败: %w", id, err)
	}
	if err := s.documentRepo.Delete(id); err != nil {
		return fmt.Errorf("删除文档 %s 的记录失败: %w", id, err)
	}

	if err := s.store.Remove(ctx, doc.ObjectName); err != nil {
		log.Errorf("[Document] 删除文档 %s 的存储对象 %s 失败: %v", id, doc.ObjectName, err)
	}

	log.Infof("[Document] 文档 %s 已删除", id)
	return nil
}
