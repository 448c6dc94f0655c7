/*
Package transport 扮演控制器角色，在参与方之间搬运负载。

# 概述

会话本身不建立任何网络连接。Relay 轮询每个节点的出站负载并按角色路由：
协调方的负载扇出给全部客户端，客户端的负载送往协调方。

# 核心类型

  - Node       — 节点抽象：Setup、Status、Pull、Push
  - LocalNode  — 进程内包装 *session.Core
  - RemoteNode — 通过节点 HTTP API（/api/*）访问远程节点
  - Relay      — 控制器：下发身份、搬运负载、等待全部节点结束

# 投递语义

投递失败的负载保留在目标节点的重试队列中，下一次 Pump 按原顺序重试。
不可重试的错误（例如目标会话已失败）会丢弃该负载并记录日志。
*/
package transport
