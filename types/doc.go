// Copyright (c) FedFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 FedFlow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 session、wire、transport、
api 等上层模块提供统一的错误码与上下文键。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码与 Retryable 标记
  - 会话错误码：ROLE_VIOLATION、ALREADY_INITIALIZED、DECODE_FAILURE、
    PIPELINE_STRATEGY_FAILURE、INBOX_OVERFLOW 等

# 主要能力

  - 错误工具链：AsError / CodeOf / IsCode / IsRetryable / StatusOf
  - Context 传播：WithTraceID / WithRunID / WithParticipantID / WithRequestID
*/
package types
