// Package fedstats 实现联邦统计策略：每个参与方计算本地数值列的计数、和与平方和，
// 协调方汇总全局统计并广播，各方再按全局均值中心化本地数据。
package fedstats
