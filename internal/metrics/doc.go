// 版权所有 2024 FedFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、会话状态机、产物存储与中继四个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制。所有指标按 namespace 隔离。

# 核心类型

  - Collector：指标收集器，同时实现 session.Observer 与
    artifact.OpObserver，可直接注入会话与存储层。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 会话指标：按阶段的 tick 计数、阶段迁移计数与停留时长、
    入站/出站负载、屏障到达数与期望数、按错误码的失败计数。
  - 产物存储指标：按 backend/operation 的操作计数与耗时。
  - 中继指标：按目标节点的投递成功/失败计数。
*/
package metrics
