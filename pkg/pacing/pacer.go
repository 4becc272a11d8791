// Package pacing 控制回答文本在界面上的展示节奏，与数据如何到达无关。
// 无论传输层一次性给出完整文本还是真正逐段下发，都经由同一个 Pacer 切分并限速展示。
package pacing

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// 默认每次展示 50 个字符，间隔 15 毫秒。
const (
	DefaultChunkSize = 50
	DefaultInterval  = 15 * time.Millisecond
)

// Pacer 把每次到达的文本切成 ChunkSize 个字符的小段，按 Interval 的速率依次交给展示层。
// 零值 Pacer 不做切分也不限速。
type Pacer struct {
	ChunkSize int
	Interval  time.Duration
}

// Default 返回默认节奏的 Pacer。
func Default() Pacer {
	return Pacer{ChunkSize: DefaultChunkSize, Interval: DefaultInterval}
}

// Wrap 返回一个可以直接交给补全客户端的分块回调。
// 每个小段在 emit 之前都会等待限速器，从而把控制权让回给调用方的事件循环。
// ctx 被取消时停止展示并返回 ctx 的错误。
func (p Pacer) Wrap(ctx context.Context, emit func(string)) func(string) error {
	var limiter *rate.Limiter
	if p.Interval > 0 {
		limiter = rate.NewLimiter(rate.Every(p.Interval), 1)
	}
	return func(arrival string) error {
		for _, piece := range split(arrival, p.ChunkSize) {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return err
				}
			} else if err := ctx.Err(); err != nil {
				return err
			}
			emit(piece)
		}
		return nil
	}
}

// split 按字符（rune）切分，避免把多字节字符截断。
func split(s string, size int) []string {
	if s == "" {
		return nil
	}
	if size <= 0 {
		return []string{s}
	}
	runes := []rune(s)
	out := make([]string, 0, (len(runes)+size-1)/size)
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}
