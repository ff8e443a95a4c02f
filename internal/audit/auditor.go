package audit

import (
	"time"

	"reauth/internal/logger"
	"reauth/pkg/domain"
)

// Recorder 事件记录员，负责引擎运行事件的构造与分发
type Recorder struct {
	enabled bool
	events  chan domain.AuthEvent
	log     logger.Logger
}

// New 创建一个新的记录员
func New(events chan domain.AuthEvent, l logger.Logger) *Recorder {
	if l == nil {
		l = logger.NewNop()
	}
	return &Recorder{
		enabled: true,
		events:  events,
		log:     l,
	}
}

// SetEnabled 设置是否启用事件记录
func (r *Recorder) SetEnabled(enabled bool) {
	r.enabled = enabled
}

// Record 记录一个引擎事件
func (r *Recorder) Record(typ domain.EventType, host, pattern, detail string) {
	if !r.enabled {
		r.log.Debug("[Recorder] 记录已禁用，跳过事件", "type", typ, "host", host)
		return
	}

	evt := domain.AuthEvent{
		Type:      typ,
		Host:      host,
		Pattern:   pattern,
		Detail:    detail,
		Timestamp: time.Now().UnixMilli(),
	}

	r.dispatch(evt)
}

// dispatch 分发事件到实时观察通道，通道满时丢弃
func (r *Recorder) dispatch(evt domain.AuthEvent) {
	if r.events == nil {
		return
	}

	select {
	case r.events <- evt:
		r.log.Debug("[Recorder] 事件分发成功", "type", evt.Type, "host", evt.Host)
	default:
		// 通道满时丢弃，防止阻塞认证主流程
		r.log.Warn("[Recorder] 事件通道已满，丢弃事件", "type", evt.Type, "host", evt.Host)
	}
}
