/*
Package history 持久化会话阶段迁移日志。

# 概述

GormJournal 实现 session.Journal，把每一次阶段迁移写入关系数据库，
便于事后审计一个参与方在某次运行中的完整轨迹。

# 支持的驱动

  - sqlite   — 纯 Go 实现（glebarez/sqlite），适合单节点与测试
  - postgres — gorm.io/driver/postgres
  - mysql    — gorm.io/driver/mysql

驱动为空或为 "none" 时，Open 返回不落盘的 NopJournal。

连接由 internal/database.Pool 管理，写入在事务中执行，
遇到死锁或 sqlite 锁等待时按 write_attempts 重试。
*/
package history
