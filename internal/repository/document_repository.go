package repository

import (
	"errors"

	"docchat-go/internal/model"

	"gorm.io/gorm"
)

// ErrDocumentNotFound 表示指定 id 的文档不存在。
var ErrDocumentNotFound = errors.New("document not found")

// DocumentRepository 定义了 documents 表的数据操作接口。
type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByID(id string) (*model.Document, error)
	FindAllActive() ([]model.Document, error)
	Delete(id string) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

// FindByID 按 id 查找文档，不存在时返回 ErrDocumentNotFound。
func (r *documentRepository) FindByID(id string) (*model.Document, error) {
	var doc model.Document
	err := r.db.Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindAllActive 返回所有活跃文档，按创建时间倒序。
func (r *documentRepository) FindAllActive() ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Where("is_active = ?", true).Order("created_at DESC").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&model.Document{}).Error
}
