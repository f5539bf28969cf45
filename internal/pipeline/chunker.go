// Package pipeline 实现了文档入库处理的核心流程：切块、向量化、索引。
package pipeline

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	paragraphRe  = regexp.MustCompile(`\n\s*\n`)
)

// SplitTextIntoChunks 将文本切分为带重叠的有界分块。
// 先按空行分段，超长段落再按句子边界切分；缓冲区写满时输出一个分块，
// 并用上一个分块的尾部若干词作为下一个缓冲区的种子，保持上下文连续。
// 单句超过 maxChunkSize 时整句保留，分块长度是软上界而非硬保证。
func SplitTextIntoChunks(text string, maxChunkSize, overlapSize int) []string {
	// 先做空白归一：连续空白折叠为单个空格
	cleaned := strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	if cleaned == "" {
		return nil
	}

	if utf8.RuneCountInString(cleaned) <= maxChunkSize {
		return []string{cleaned}
	}

	paragraphs := paragraphRe.Split(cleaned, -1)
	var chunks []string
	current := ""

	// emit 输出当前缓冲区并用尾部词作为新缓冲区的重叠种子
	emit := func() {
		chunks = append(chunks, strings.TrimSpace(current))
		current = overlapTail(current, overlapSize)
	}

	for _, paragraph := range paragraphs {
		if utf8.RuneCountInString(paragraph) > maxChunkSize {
			// 段落本身超长，退化到句子级切分
			for _, sentence := range splitSentences(paragraph) {
				if current != "" && utf8.RuneCountInString(current)+utf8.RuneCountInString(sentence) > maxChunkSize {
					emit()
				}
				current += " " + sentence
			}
		} else if utf8.RuneCountInString(current)+utf8.RuneCountInString(paragraph) > maxChunkSize {
			if current != "" {
				emit()
			}
			current += " " + paragraph
		} else {
			current += " " + paragraph
		}
	}

	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}

	return chunks
}

// overlapTail 取缓冲区尾部约 overlapSize 字符的词（按 5 字符/词估算）。
// 词数不足时返回空串，不做重叠。
func overlapTail(buf string, overlapSize int) string {
	words := strings.Split(buf, " ")
	n := overlapSize / 5
	if n <= 0 || len(words) <= n {
		return ""
	}
	return strings.Join(words[len(words)-n:], " ")
}

// splitSentences 按终止符（. ! ?）后跟空白的位置切分句子，终止符保留在句内。
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				sentences = append(sentences, string(runes[start:i+1]))
				j := i + 1
				for j < len(runes) && unicode.IsSpace(runes[j]) {
					j++
				}
				start = j
				i = j - 1
			}
		}
	}
	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}

// EstimatePageNumber 按分块序号在全文档中的位置线性估算页码，范围 [1, totalPages]。
func EstimatePageNumber(chunkIndex, totalChunks, totalPages int) int {
	if totalChunks <= 1 {
		return 1
	}
	page := int(float64(chunkIndex)/float64(totalChunks)*float64(totalPages)) + 1
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	return page
}
