// Copyright (c) FedFlow Authors.
// Licensed under the MIT License.

/*
包 database 管理阶段迁移日志所用的 gorm 连接池。

# 核心类型

  - Pool：持有 gorm DB 与底层 sql.DB，提供 Ping、Stats、Close
    以及带指数退避的事务重试。
  - PoolConfig：最大空闲连接、最大打开连接、连接生命周期与探活间隔。

# 主要能力

  - 后台健康检查：按间隔 PingContext，Close 时停止。
  - WithTransactionRetry：死锁、序列化失败、sqlite 锁等待与断连时重试，
    其余错误立即返回。
*/
package database
