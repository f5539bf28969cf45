package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeScore_Bounds(t *testing.T) {
	// 原始分数 = cosine + 1.0，落在 [0,2]
	assert.InDelta(t, 0.0, NormalizeScore(1.0), 1e-9)  // 正交
	assert.InDelta(t, 0.5, NormalizeScore(2.0), 1e-9)  // 同向
	assert.InDelta(t, -0.5, NormalizeScore(0.0), 1e-9) // 反向
}

func TestNormalizeScore_Monotonic(t *testing.T) {
	prev := NormalizeScore(0.0)
	for raw := 0.1; raw <= 2.0; raw += 0.1 {
		cur := NormalizeScore(raw)
		assert.Greater(t, cur, prev, "归一化必须保持单调: raw=%f", raw)
		prev = cur
	}
}
