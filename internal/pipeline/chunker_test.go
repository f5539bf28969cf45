package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMaxChunkSize = 512
	testOverlapSize  = 100
)

func TestSplitTextIntoChunks_ShortTextSingleChunk(t *testing.T) {
	chunks := SplitTextIntoChunks("hello   world\n\tfoo", testMaxChunkSize, testOverlapSize)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world foo", chunks[0])
}

func TestSplitTextIntoChunks_EmptyText(t *testing.T) {
	assert.Nil(t, SplitTextIntoChunks("", testMaxChunkSize, testOverlapSize))
	assert.Nil(t, SplitTextIntoChunks("   \n\t  ", testMaxChunkSize, testOverlapSize))
}

// 1200 个字符、无空行的文本在 512/100 参数下应产生 3 个分块，
// 第 2、3 个分块以前一分块的尾部重叠词开头。
func TestSplitTextIntoChunks_LoremScenario(t *testing.T) {
	sentence := "Lorem ipsum dolor sit amet, consectetur elit sed. "
	require.Len(t, sentence, 50)
	text := strings.Repeat(sentence, 24)
	require.Len(t, text, 1200)

	chunks := SplitTextIntoChunks(text, testMaxChunkSize, testOverlapSize)
	require.Len(t, chunks, 3)

	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), testMaxChunkSize, "chunk %d exceeds max size", i)
	}

	overlapWords := testOverlapSize / 5
	for i := 1; i < len(chunks); i++ {
		words := strings.Fields(chunks[i-1])
		require.Greater(t, len(words), overlapWords)
		tail := strings.Join(words[len(words)-overlapWords:], " ")
		assert.True(t, strings.HasPrefix(chunks[i], tail),
			"chunk %d should start with the overlap tail of chunk %d", i, i-1)
	}
}

// 去掉每个分块的重叠前缀后拼接，应还原归一化后的原文。
func TestSplitTextIntoChunks_RoundTrip(t *testing.T) {
	sentence := "The quick brown fox jumps over the lazy dog near the river bank today. "
	text := strings.Repeat(sentence, 30)
	normalized := strings.TrimSpace(text)

	chunks := SplitTextIntoChunks(text, testMaxChunkSize, testOverlapSize)
	require.NotEmpty(t, chunks)

	overlapWords := testOverlapSize / 5
	recon := chunks[0]
	for i := 1; i < len(chunks); i++ {
		words := strings.Fields(chunks[i-1])
		chunk := chunks[i]
		if len(words) > overlapWords {
			tail := strings.Join(words[len(words)-overlapWords:], " ")
			if strings.HasPrefix(chunk, tail+" ") {
				chunk = chunk[len(tail)+1:]
			}
		}
		recon += " " + chunk
	}
	assert.Equal(t, normalized, recon)
}

// 单句超过 maxChunkSize 时整句保留，不做硬截断。
func TestSplitTextIntoChunks_OversizedSentenceSoftBound(t *testing.T) {
	long := strings.Repeat("x", 600)
	chunks := SplitTextIntoChunks(long, testMaxChunkSize, testOverlapSize)
	require.Len(t, chunks, 1)
	assert.Greater(t, len(chunks[0]), testMaxChunkSize)
	assert.Equal(t, long, chunks[0])
}

func TestEstimatePageNumber(t *testing.T) {
	assert.Equal(t, 1, EstimatePageNumber(0, 1, 10))
	assert.Equal(t, 1, EstimatePageNumber(0, 0, 10))
	assert.Equal(t, 1, EstimatePageNumber(0, 10, 5))
	assert.Equal(t, 5, EstimatePageNumber(9, 10, 5))
	// 页数为 0 时回落到第 1 页
	assert.Equal(t, 1, EstimatePageNumber(3, 10, 0))

	// 单调：分块序号越靠后，估算页码不会变小
	prev := 0
	for i := 0; i < 20; i++ {
		page := EstimatePageNumber(i, 20, 7)
		assert.GreaterOrEqual(t, page, prev)
		assert.GreaterOrEqual(t, page, 1)
		assert.LessOrEqual(t, page, 7)
		prev = page
	}
}
