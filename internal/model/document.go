// Package model 定义了应用的数据模型。
package model

import "time"

// Document 对应于数据库中的 documents 表，是文档的权威记录。
// 内容在解析完成后不可变：重新入库走一次新的处理流程，而不是原地修改。
type Document struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Title      string    `gorm:"type:varchar(255);not null" json:"title"`
	Filename   string    `gorm:"type:varchar(255);not null" json:"filename"`
	ObjectName string    `gorm:"type:varchar(255);not null" json:"-"` // MinIO 对象名
	Content    string    `gorm:"type:longtext" json:"-"`
	PageCount  int       `gorm:"not null;default:0" json:"pageCount"`
	IsActive   bool      `gorm:"not null;default:true;index" json:"isActive"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Document) TableName() string {
	return "documents"
}

// EsDocument 是文档在 Elasticsearch documents 索引中的镜像，
// 供词法兜底检索（multi_match title/content）使用。
type EsDocument struct {
	Title     string    `json:"title"`
	Filename  string    `json:"filename"`
	Content   string    `json:"content"`
	PageCount int       `json:"page_count"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
