// Package swarm 定义集群验证的核心数据模型：智能体、挑战、应答与验证记录。
// 该包不依赖任何传输或存储实现，供生成器、分发器与评分引擎共享。
package swarm
