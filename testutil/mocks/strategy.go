// =============================================================================
// 🧩 MockStrategy - 流水线策略模拟实现
// =============================================================================
// 用于测试的策略模拟，记录调用顺序并支持按阶段注入行为与错误
//
// 使用方法:
//
//	strategy := mocks.NewMockStrategy().
//		WithTransforms("resize").
//		WithError(mocks.StepEmit, errors.New("disk full"))
// =============================================================================
package mocks

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/BaSui01/fedflow/session"
)

// Step 标识策略方法
type Step string

const (
	StepConfigure Step = "configure"
	StepIngest    Step = "ingest"
	StepTransform Step = "transform"
	StepEmit      Step = "emit"
)

// MockStrategy 是 session.Strategy 的模拟实现
type MockStrategy struct {
	mu sync.Mutex

	transforms []string
	errs       map[Step]error
	ingest     func(ctx context.Context, env session.Env, in session.Dataset) (session.Artifact, error)
	transform  func(ctx context.Context, env session.Env, in session.Artifact) (session.Artifact, error)
	emit       func(ctx context.Context, env session.Env, in session.Artifact, dest session.Destination) (session.ArtifactRef, error)

	calls []Step
}

// NewMockStrategy 创建新的 MockStrategy
func NewMockStrategy() *MockStrategy {
	return &MockStrategy{errs: make(map[Step]error)}
}

// WithTransforms 启用给定名称的变换步骤
func (m *MockStrategy) WithTransforms(names ...string) *MockStrategy {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transforms = names
	return m
}

// WithError 让指定步骤返回错误
func (m *MockStrategy) WithError(step Step, err error) *MockStrategy {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[step] = err
	return m
}

// WithIngest 自定义 Ingest 行为
func (m *MockStrategy) WithIngest(fn func(ctx context.Context, env session.Env, in session.Dataset) (session.Artifact, error)) *MockStrategy {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingest = fn
	return m
}

// WithTransform 自定义 Transform 行为
func (m *MockStrategy) WithTransform(fn func(ctx context.Context, env session.Env, in session.Artifact) (session.Artifact, error)) *MockStrategy {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transform = fn
	return m
}

// WithEmit 自定义 Emit 行为
func (m *MockStrategy) WithEmit(fn func(ctx context.Context, env session.Env, in session.Artifact, dest session.Destination) (session.ArtifactRef, error)) *MockStrategy {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emit = fn
	return m
}

// Calls 返回调用记录
func (m *MockStrategy) Calls() []Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Step(nil), m.calls...)
}

// CallCount 返回指定步骤被调用的次数
func (m *MockStrategy) CallCount(step Step) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == step {
			n++
		}
	}
	return n
}

func (m *MockStrategy) record(step Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, step)
	return m.errs[step]
}

// Configure 实现 session.Strategy
func (m *MockStrategy) Configure(_ context.Context, _ session.Env) (session.Plan, error) {
	if err := m.record(StepConfigure); err != nil {
		return session.Plan{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	plan := session.Plan{}
	for _, name := range m.transforms {
		plan.Transforms = append(plan.Transforms, session.Transform{Name: name, Enabled: true})
	}
	return plan, nil
}

// Ingest 实现 session.Strategy
func (m *MockStrategy) Ingest(ctx context.Context, env session.Env, in session.Dataset) (session.Artifact, error) {
	if err := m.record(StepIngest); err != nil {
		return session.Artifact{}, err
	}
	m.mu.Lock()
	fn := m.ingest
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, env, in)
	}
	return session.Artifact{Name: "raw", Value: map[string]any{"root": in.Root}}, nil
}

// Transform 实现 session.Strategy
func (m *MockStrategy) Transform(ctx context.Context, env session.Env, in session.Artifact) (session.Artifact, error) {
	if err := m.record(StepTransform); err != nil {
		return session.Artifact{}, err
	}
	m.mu.Lock()
	fn := m.transform
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, env, in)
	}
	return in, nil
}

// Emit 实现 session.Strategy
func (m *MockStrategy) Emit(ctx context.Context, env session.Env, in session.Artifact, dest session.Destination) (session.ArtifactRef, error) {
	if err := m.record(StepEmit); err != nil {
		return session.ArtifactRef{}, err
	}
	m.mu.Lock()
	fn := m.emit
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, env, in, dest)
	}
	return session.ArtifactRef{Location: filepath.Join(dest.Root, "result.json"), Codec: env.Codec().Name()}, nil
}

var _ session.Strategy = (*MockStrategy)(nil)
