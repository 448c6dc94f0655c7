// Package config 提供 FedFlow 节点的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（FEDFLOW_ 前缀）的顺序叠加，
// 覆盖服务器、会话、产物存储、迁移日志、中继、日志与遥测。
package config
