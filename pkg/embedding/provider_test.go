package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	calls   int
	failing int // 前 failing 次调用返回错误
	dims    int
}

func (f *fakeClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failing {
		return nil, errors.New("model unavailable")
	}
	return make([]float32, f.dims), nil
}

func TestProvider_RetriesAfterFailedInit(t *testing.T) {
	client := &fakeClient{failing: 1, dims: 768}
	provider := NewProvider(client, 768)

	// 预热失败不应被缓存
	_, err := provider.Embed(context.Background(), "hello")
	require.Error(t, err)

	// 第二次调用重新预热并成功
	vec, err := provider.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 768)
}

func TestProvider_WarmsUpOnlyOnce(t *testing.T) {
	client := &fakeClient{dims: 768}
	provider := NewProvider(client, 768)

	for i := 0; i < 3; i++ {
		_, err := provider.Embed(context.Background(), "hello")
		require.NoError(t, err)
	}
	// 1 次预热 + 3 次正式调用
	assert.Equal(t, 4, client.calls)
}

func TestProvider_RejectsDimensionMismatch(t *testing.T) {
	client := &fakeClient{dims: 512}
	provider := NewProvider(client, 768)

	_, err := provider.Embed(context.Background(), "hello")
	assert.Error(t, err)
}
