// Copyright (c) FedFlow Authors.
// Licensed under the MIT License.

/*
Package session 实现联邦轮次协调状态机。

# 概述

每个参与方运行一个 Core。Core 按阶段推进：

	Initializing -> LocalIngest -> [LocalTransform] -> Emit -> Finalizing -> Terminal

协调方（coordinator）与客户端（client）运行同一套状态机代码，只在 Emit 与
Finalizing 阶段分叉：客户端在 Emit 后把完成标记放入出站槽并立即结束；协调方
把自己的完成标记追加到收件箱，然后在 Finalizing 阶段等待每个客户端的完成标记
（屏障）。

# 外部入口

  - OnSetup          — 平台一次性下发身份、角色与参与方列表
  - OnInboundPayload — 追加入站负载，永不阻塞
  - PullOutbound     — 取走待发送负载
  - Tick             — 由 Driver 周期调用，每次最多推进一个阶段

# 交换原语

策略（Strategy）通过 Env 使用 SendToCoordinator、GatherFromClients、Broadcast、
AwaitBroadcast 完成中途聚合。等待通过返回 ErrNotReady 表达，由下一次 Tick 重试，
不阻塞线程。

# 并发模型

状态对象由单个互斥锁保护；Tick 另有一把锁串行化驱动路径。策略方法在状态锁之外
执行，因此长时间的本地计算不会阻塞入站投递与出站拉取。
*/
package session
