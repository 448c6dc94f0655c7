// Copyright 2026 FedFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 FedFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，避免重复实现相似的
测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout，自动注册 Cleanup
  - 会话辅助: TickUntil，推进状态机直到条件成立
  - 异步断言: AssertEventuallyTrue / WaitFor

# 子包

  - testutil/mocks: MockStrategy（可编排的流水线策略）、RecordingJournal、
    RecordingObserver，均支持 Builder 模式与错误注入
  - testutil/fixtures: 预置参与方身份与线上负载样例

# 使用示例

	ctx := testutil.TestContext(t)
	strategy := mocks.NewMockStrategy().WithTransforms("resize")
	core := session.New(strategy)
	_ = core.OnSetup(fixtures.Coordinator("c", "a", "b"))
	_, err := core.Tick(ctx)
*/
package testutil
