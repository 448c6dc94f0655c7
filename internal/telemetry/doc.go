// Package telemetry 为 FedFlow 节点安装 OpenTelemetry 的 TracerProvider 与
// MeterProvider。资源属性标明 run、策略与编解码器；setup 之后开始的 span
// 另带参与方 ID 与角色（coordinator / client）。禁用时使用 noop 实现。
package telemetry
