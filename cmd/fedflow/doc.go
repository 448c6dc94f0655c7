// Copyright (c) FedFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 FedFlow 节点程序入口。

# 概述

cmd/fedflow 启动一个联邦会话节点：加载 YAML 配置，按配置选择数据处理策略，
通过 HTTP 暴露 setup/status/data 接口，由外部中继或本地 relay 子命令驱动
各节点间的消息往返。

# 核心类型

  - Server      — 节点服务器，管理会话驱动、节点 API 与 Metrics 双端口及优雅关闭
  - Middleware  — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动节点）、relay（驱动一组节点完成一轮）、status（查看节点状态）、
    version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、RequestLogger、
    Metrics、RateLimiter（基于 IP）
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）与 /health
  - 优雅关闭：信号监听 → 关闭 HTTP → 关闭 Metrics → 关闭遥测、历史与产物存储
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
