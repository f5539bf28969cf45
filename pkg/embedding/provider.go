package embedding

import (
	"context"
	"fmt"
	"sync"

	"docchat-go/pkg/log"
)

// Provider 是全进程共享的 embedding 模型句柄。
// 首次使用时惰性预热，互斥锁避免并发首用导致重复加载；
// 预热失败不缓存，下一次调用会重新尝试。
type Provider struct {
	client Client
	dims   int

	mu    sync.Mutex
	ready bool
}

// NewProvider 创建一个新的 Provider。dims 为 0 时不校验向量维度。
func NewProvider(client Client, dims int) *Provider {
	return &Provider{client: client, dims: dims}
}

// Embed 生成文本向量。维度与配置不符的结果被拒绝。
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.ensureReady(ctx); err != nil {
		return nil, err
	}

	vec, err := p.client.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	if p.dims > 0 && len(vec) != p.dims {
		return nil, fmt.Errorf("embedding 维度 %d 与配置的 %d 不符", len(vec), p.dims)
	}
	return vec, nil
}

// Dimensions 返回配置的向量维度。
func (p *Provider) Dimensions() int {
	return p.dims
}

// ensureReady 做一次性的预热调用，验证远端模型可用且维度正确。
func (p *Provider) ensureReady(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready {
		return nil
	}

	log.Info("[Embedding] 首次使用，正在预热 embedding 模型...")
	vec, err := p.client.CreateEmbedding(ctx, "warmup")
	if err != nil {
		return fmt.Errorf("embedding 模型预热失败: %w", err)
	}
	if p.dims > 0 && len(vec) != p.dims {
		return fmt.Errorf("embedding 模型维度 %d 与配置的 %d 不符", len(vec), p.dims)
	}

	p.ready = true
	log.Infof("[Embedding] 模型预热完成, 维度: %d", len(vec))
	return nil
}
