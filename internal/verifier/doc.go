// Package verifier 是链下验证路径的编排核心：生成一次性挑战、并发分发给
// 集群全部成员、对应答集合做统计评分，并一次性写入不可变的验证记录。
package verifier
