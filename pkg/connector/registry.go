package connector

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"meilibridge/pkg/engine"
	"meilibridge/pkg/nsc"
)

// Registry 各表最近一次同步周期的结果登记表。状态 API 从这里读，
// 配置了 NATS 时每个完成的周期同时对外发布一条事件。
type Registry struct {
	mu        sync.RWMutex
	summaries map[string]engine.CycleSummary
	publish   bool
}

func NewRegistry(publish bool) *Registry {
	return &Registry{
		summaries: make(map[string]engine.CycleSummary),
		publish:   publish,
	}
}

// Record 登记一个周期结果。跳过的触发不覆盖已有记录
func (r *Registry) Record(summary engine.CycleSummary) {
	if summary.Outcome != engine.OutcomeSkipped {
		r.mu.Lock()
		r.summaries[summary.Table] = summary
		r.mu.Unlock()
	}

	if r.publish {
		if client := nsc.GetNatsClient(); client != nil {
			if err := client.PublishJSON(summary.Table, summary); err != nil {
				zap.S().Warnf("发布表 %s 同步事件失败: %v", summary.Table, err)
			}
		}
	}
}

func (r *Registry) Summaries() []engine.CycleSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]engine.CycleSummary, 0, len(r.summaries))
	for _, s := range r.summaries {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Table < out[j].Table })
	return out
}

func (r *Registry) Summary(table string) (engine.CycleSummary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.summaries[table]
	return s, ok
}
