package cli

import (
	"fmt"
	"io"
	"sync"

	"mu-assistant-go/internal/service"
)

// LivePrinter 把会话控制器的状态变化增量地写到终端。
// 只有回答属于当前对话时才显示，切换到别的对话后停止输出，回答仍然写入原对话。
type LivePrinter struct {
	mu      sync.Mutex
	out     io.Writer
	printed int
	phase   service.Phase
}

// NewLivePrinter 创建一个写入 out 的 LivePrinter。
func NewLivePrinter(out io.Writer) *LivePrinter {
	return &LivePrinter{out: out, phase: service.PhaseIdle}
}

// OnChange 可直接作为 service.ChatOptions.OnChange 使用。
func (p *LivePrinter) OnChange(s service.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.Phase != p.phase {
		if s.Phase == service.PhaseStreaming && s.TargetID == s.ActiveID {
			fmt.Fprintf(p.out, "\n[%s] ", s.StreamMode)
		}
		p.phase = s.Phase
	}

	if s.LiveText == "" {
		if p.printed > 0 {
			fmt.Fprintln(p.out)
		}
		p.printed = 0
		return
	}
	if s.TargetID != s.ActiveID {
		return
	}
	if len(s.LiveText) > p.printed {
		_, _ = io.WriteString(p.out, s.LiveText[p.printed:])
		p.printed = len(s.LiveText)
	}
}
