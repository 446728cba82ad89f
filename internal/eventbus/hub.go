package eventbus

import (
	"context"
	"sync"
	"time"
)

// 变更事件类型
const (
	TypeInsert = "INSERT"
	TypeUpdate = "UPDATE"
	TypeDelete = "DELETE"
)

type Event struct {
	Type      string         `json:"type"`
	Topic     string         `json:"topic,omitempty"` // 例如 "team:<id>"，为空表示广播
	Table     string         `json:"table,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// TeamTopic 团队级别的实时频道名
func TeamTopic(teamID string) string {
	return "team:" + teamID
}

type subscription struct {
	topic string
}

type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]subscription
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]subscription)}
}

func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch, sub := range h.subs {
		if sub.topic != "" && sub.topic != evt.Topic {
			continue
		}
		select {
		case ch <- evt:
		default:
			// 慢消费者直接丢弃，避免阻塞写入链路。
			// 被丢的变更不会重发，要等同频道的下一条事件触发订阅方整表重拉后才追平
		}
	}
}

// Subscribe 订阅指定频道；topic 为空时接收全部事件。ctx 结束后自动退订并关闭通道。
func (h *Hub) Subscribe(ctx context.Context, topic string, buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	h.subs[ch] = subscription{topic: topic}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Subscribers 当前订阅数
func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
