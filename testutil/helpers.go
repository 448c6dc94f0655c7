// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
//
//	ctx := testutil.TestContext(t)
//	st := testutil.TickUntil(t, core, 10, func(s session.Status) bool { return s.Finished })
// =============================================================================
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/fedflow/session"
)

const pollInterval = 5 * time.Millisecond

// TestContext 返回 30 秒超时的测试上下文
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文，测试结束时取消
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// TickUntil 反复调用 Tick，直到 cond 成立、Tick 出错或达到 maxTicks。
// 返回最后一次的状态快照。
func TickUntil(t *testing.T, core *session.Core, maxTicks int, cond func(session.Status) bool) session.Status {
	t.Helper()
	ctx := TestContext(t)
	for i := 0; i < maxTicks && !cond(core.Status()); i++ {
		if _, err := core.Tick(ctx); err != nil {
			break
		}
	}
	return core.Status()
}

// WaitFor 轮询直到 cond 成立或超时
func WaitFor(cond func() bool, timeout time.Duration) bool {
	for deadline := time.Now().Add(timeout); time.Now().Before(deadline); time.Sleep(pollInterval) {
		if cond() {
			return true
		}
	}
	return cond()
}

// AssertEventuallyTrue 在 timeout 内 cond 未成立时标记失败
func AssertEventuallyTrue(t *testing.T, cond func() bool, timeout time.Duration) {
	t.Helper()
	if !WaitFor(cond, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}
