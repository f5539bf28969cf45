// Package pdf 提供了 PDF 文本提取功能。
package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"docchat-go/pkg/log"

	"github.com/ledongthuc/pdf"
)

// ExtractResult 是一次 PDF 解析的结果。
type ExtractResult struct {
	Content   string
	PageCount int
}

// Extractor 定义了 PDF 文本提取接口。
type Extractor interface {
	// Extract 从 PDF 字节流中提取纯文本和页数。
	// 解析失败属于客户端输入错误（损坏或不支持的 PDF）。
	Extract(data []byte) (*ExtractResult, error)
}

type pdfExtractor struct{}

// NewExtractor 创建一个新的 Extractor 实例。
func NewExtractor() Extractor {
	return &pdfExtractor{}
}

func (e *pdfExtractor) Extract(data []byte) (*ExtractResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("PDF 文件内容为空")
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("解析 PDF 失败: %w", err)
	}

	numPages := reader.NumPage()
	var sb strings.Builder
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// 单页提取失败不中断整个文档
			log.Warnf("[PDF] 第 %d 页文本提取失败: %v", pageNum, err)
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	return &ExtractResult{
		Content:   sb.String(),
		PageCount: numPages,
	}, nil
}
