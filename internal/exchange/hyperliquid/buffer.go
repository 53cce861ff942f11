package hyperliquid

import (
	"sync"
)

// DefaultBufferCapacity 每个订阅缓冲区的默认容量
const DefaultBufferCapacity = 200

// ringBuffer 固定容量 FIFO，满后淘汰最旧的消息
// 写入方为接收循环，读取方为任意采集调用者
type ringBuffer struct {
	mu    sync.Mutex
	buf   []Message
	head  int
	count int
	// notify 有新消息时非阻塞通知等待中的采集者
	notify chan struct{}
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &ringBuffer{
		buf:    make([]Message, capacity),
		notify: make(chan struct{}, 1),
	}
}

// push 追加消息，返回是否淘汰了最旧的一条
func (r *ringBuffer) push(m Message) (dropped bool) {
	r.mu.Lock()
	capacity := len(r.buf)
	tail := (r.head + r.count) % capacity
	r.buf[tail] = m
	if r.count == capacity {
		r.head = (r.head + 1) % capacity
		dropped = true
	} else {
		r.count++
	}
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return dropped
}

// drain 按 FIFO 顺序取出最多 max 条，max<=0 表示取出全部
func (r *ringBuffer) drain(max int) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}
	out := make([]Message, n)
	capacity := len(r.buf)
	for i := 0; i < n; i++ {
		idx := (r.head + i) % capacity
		out[i] = r.buf[idx]
		r.buf[idx] = Message{}
	}
	r.head = (r.head + n) % capacity
	r.count -= n
	return out
}

// len 当前缓冲的消息数
func (r *ringBuffer) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
