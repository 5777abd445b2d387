package asset

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/asset-hub/internal/logging"
)

// Notifier 接收终态消息，代表外部监听方。
type Notifier interface {
	Notify(Message)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Message)

// Notify makes NotifierFunc satisfy Notifier.
func (f NotifierFunc) Notify(msg Message) {
	f(msg)
}

// LogNotifier 将每条消息写入结构化日志，作为默认监听方。
func LogNotifier(logger *logrus.Logger) Notifier {
	return NotifierFunc(func(msg Message) {
		fields := logging.AssetFields("notify", msg.Path)
		fields["what"] = string(msg.What)
		if msg.Error != nil {
			fields["error_kind"] = string(msg.Error.Kind)
			logger.WithFields(fields).Warn(msg.Error.Message)
			return
		}
		fields["source"] = string(msg.Source)
		logger.WithFields(fields).Debug("asset_message")
	})
}

// Dispatcher 异步发起 get/update，每个终态消息恰好投递一次。
type Dispatcher struct {
	resolver *Resolver
	notifier Notifier
	wg       sync.WaitGroup
}

// NewDispatcher 构造 Dispatcher，notifier 为空时仅通过返回的通道交付消息。
func NewDispatcher(resolver *Resolver, notifier Notifier) *Dispatcher {
	return &Dispatcher{resolver: resolver, notifier: notifier}
}

// Dispatch 异步执行 op。终态消息先交给 notifier，再写入返回的通道；
// update 静默 no-op 时不通知，通道直接关闭。
func (d *Dispatcher) Dispatch(ctx context.Context, op Op, path string) <-chan Message {
	out := make(chan Message, 1)
	var results <-chan Result
	switch op {
	case OpGet:
		results = d.resolver.GetAsync(ctx, path)
	case OpUpdate:
		results = d.resolver.UpdateAsync(ctx, path)
	default:
		close(out)
		return out
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(out)
		res, ok := <-results
		if !ok {
			return
		}
		msg := res.Message()
		if d.notifier != nil {
			d.notifier.Notify(msg)
		}
		out <- msg
	}()
	return out
}

// Wait 阻塞直到所有已发起的操作完成投递。
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
