// Copyright (c) FedFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 FedFlow 节点 HTTP API 的请求处理器实现。

# 概述

handlers 包把控制器协议（/api/status、/api/setup、/api/data、/api/result）
映射到 session.Core，并提供 WebSocket 状态推送与健康检查端点。
所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - SessionHandler   — 控制器协议处理器
  - WatchHandler     — /api/watch 状态快照推送（coder/websocket）
  - HealthHandler    — 存活（/health, /healthz）与按会话阶段判定的就绪（/ready）
  - Dependency       — 就绪检查依赖（产物存储、历史日志）
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码与字节数

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON
  - 错误码到 HTTP 状态码的映射由 types.StatusOf 完成
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式 + validator 校验）
  - 原始负载读取：ReadBody 限制单个负载大小
*/
package handlers
