package model

// UsageEvent 记录一次补全调用，由服务端发送到 Kafka 并在消费端汇总。
type UsageEvent struct {
	UserID    string `json:"user_id"`
	Mode      Mode   `json:"mode"`
	Model     string `json:"model"`
	Status    string `json:"status"` // "ok" 或 "error"
	LatencyMs int64  `json:"latency_ms"`
	Timestamp int64  `json:"timestamp"`
}
