// Package jsonl 实现异步 JSONL 日志文件（遥测快照、探针采集记录）。
// Append 只负责投递，JSON 编码与文件 I/O 在后台 goroutine 完成；队列满时丢弃并计数。
package jsonl

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"hyperliquid-market-aggregator/internal/util/timeutil"
)

// ErrClosed 日志已关闭
var ErrClosed = errors.New("journal 已关闭")

// ErrQueueFull 写入队列已满
var ErrQueueFull = errors.New("journal 写入队列已满")

// Record 一行记录
type Record struct {
	// TsMs 写入时间（毫秒）
	TsMs int64 `json:"ts"`
	// Kind 记录类型，如 telemetry、ws_message
	Kind string `json:"kind"`
	// Network 网络，可为空
	Network string `json:"network,omitempty"`
	// Payload 负载
	Payload any `json:"payload"`
}

type opType int

const (
	opWrite opType = iota
	opFlush
	opClose
)

type op struct {
	typ  opType
	rec  Record
	done chan error
}

// Journal 异步 JSONL 写入器
type Journal struct {
	// path 输出文件路径
	path string
	// ch 操作通道
	ch chan op
	// now 时间源
	now timeutil.Clock

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool

	sendMu sync.Mutex

	wg sync.WaitGroup
}

// Open 打开（追加模式）或创建 JSONL 文件
// 参数 path: 输出文件路径，目录不存在时自动创建
// 参数 bufferSize: 写入队列容量
func Open(path string, bufferSize int) (*Journal, error) {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开输出文件失败: %w", err)
	}

	j := &Journal{
		path: path,
		ch:   make(chan op, bufferSize),
		now:  timeutil.SystemClock,
	}

	j.wg.Add(1)
	go j.loop(f)

	return j, nil
}

// Path 输出文件路径
func (j *Journal) Path() string {
	return j.path
}

// Append 投递一条记录，不阻塞调用方
func (j *Journal) Append(kind, network string, payload any) error {
	if j == nil {
		return ErrClosed
	}
	if j.closed.Load() {
		return ErrClosed
	}
	j.sendMu.Lock()
	defer j.sendMu.Unlock()
	if j.closed.Load() {
		return ErrClosed
	}

	rec := Record{TsMs: j.now().UnixMilli(), Kind: kind, Network: network, Payload: payload}
	select {
	case j.ch <- op{typ: opWrite, rec: rec}:
		return nil
	default:
		j.dropped.Add(1)
		return ErrQueueFull
	}
}

// Flush 等待队列中已投递的记录写入文件
func (j *Journal) Flush() error {
	if j == nil || j.closed.Load() {
		return nil
	}
	j.sendMu.Lock()
	defer j.sendMu.Unlock()
	if j.closed.Load() {
		return nil
	}
	done := make(chan error, 1)
	j.ch <- op{typ: opFlush, done: done}
	return <-done
}

// Close 关闭写入器（会先 flush）
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.closeOnce.Do(func() {
		j.closed.Store(true)
		j.sendMu.Lock()
		defer j.sendMu.Unlock()
		done := make(chan error, 1)
		j.ch <- op{typ: opClose, done: done}
		j.closeErr = <-done
		close(j.ch)
	})
	j.wg.Wait()
	return j.closeErr
}

// Stats 已写入、因队列满丢弃、编码失败的记录数
func (j *Journal) Stats() (written, dropped, failed int64) {
	return j.written.Load(), j.dropped.Load(), j.failed.Load()
}

func (j *Journal) loop(f *os.File) {
	defer j.wg.Done()
	defer f.Close()

	bw := bufio.NewWriterSize(f, 64<<10)
	reply := func(err error, done chan error) {
		if done != nil {
			done <- err
		}
	}

	for req := range j.ch {
		switch req.typ {
		case opWrite:
			b, err := json.Marshal(req.rec)
			if err != nil {
				j.failed.Add(1)
				continue
			}
			b = append(b, '\n')
			if _, err := bw.Write(b); err != nil {
				j.failed.Add(1)
				continue
			}
			j.written.Add(1)
		case opFlush:
			reply(bw.Flush(), req.done)
		case opClose:
			reply(bw.Flush(), req.done)
			return
		}
	}
}
