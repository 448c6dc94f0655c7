// Package tlsutil 提供集中式 TLS 配置，
// 为节点 API 服务端、中继 HTTP 客户端和 Redis 连接提供安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件），
// 并支持信任自签名节点证书。
package tlsutil
