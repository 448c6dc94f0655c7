// 版权所有 2024 FedFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 FedFlow 节点对外的 HTTP 端点。

# 概述

一个节点有两个端点：节点 API（relay 通过它投递与拉取载荷、读取状态）
与 metrics。relay 进程可选地再开一个 relay_metrics 端点。每个端点
以 Surface 标识，日志中带 surface 字段。

# 核心类型

  - Endpoint：一个监听地址上的 http.Server，生命周期
    idle → serving → draining → stopped，只向前推进。
  - Options：监听地址、TLS 证书、读写与空闲超时、排空上限。
  - Group：节点的全部端点，一起打开、一起排空；打开失败时回滚。

# 主要能力

  - Open 非阻塞；CertFile 非空时使用 tlsutil 的加固 TLS 配置。
  - Run(ctx) 阻塞到 ctx 结束或服务异常，然后排空。
  - Addr 在 ":0" 配置下返回实际绑定地址。
*/
package server
