// Package protocol 实现参与方之间的周期化共识流程：推举执行者、
// 商定策略、汇聚交易哈希、收集门限签名、广播并校验结算。每个轮次
// 的达成只依赖中继上可见的提案，任何一方都无法单独推进状态。
package protocol

// Event 是一个轮次的结束方式，状态机据此选择下一个轮次。
type Event string

const (
	// EventDone 表示轮次正常达成。
	EventDone Event = "DONE"
	// EventNegative 表示校验轮次得出否定结论。
	EventNegative Event = "NEGATIVE"
	// EventNoMajority 表示所有参与方投票后没有取值达到门限。
	EventNoMajority Event = "NO_MAJORITY"
	// EventRoundTimeout 表示轮次在时限内未达成。
	EventRoundTimeout Event = "ROUND_TIMEOUT"
	// EventError 表示本方在轮次内遇到不可恢复的本地错误。
	EventError Event = "ERROR"
	// EventWait 表示策略判定当前持仓最优，本周期不做操作。
	EventWait Event = "WAIT"
)
