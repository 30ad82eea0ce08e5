// Package bus 实现进程内的会话更新广播。
// 注册表以会话 id 为键做扇出，另设全局观察者通道；生命周期与服务进程一致，
// 不做持久化，也不做跨进程扇出。实例通过依赖注入传给各 handler，
// 测试可以为每个用例构造独立实例。
package bus

import (
	"sync"

	"bunker-go/pkg/log"
)

// Event 是一次会话更新。Message 的具体序列化由传输层决定。
type Event struct {
	ConversationID string
	Message        interface{}
}

// Handler 是订阅者回调。Publish 按发布顺序同步调用它。
type Handler func(Event)

// Broadcaster 是互斥锁保护的订阅注册表。
// 订阅者 map 是整个核心里唯一的进程内共享可变状态。
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]Handler
	global map[int]Handler
}

// New 创建一个空的 Broadcaster。
func New() *Broadcaster {
	return &Broadcaster{
		subs:   make(map[string]map[int]Handler),
		global: make(map[int]Handler),
	}
}

// Subscribe 注册一个回调，此后每次针对该会话的 Publish 都会调用它。
// 同一会话允许多个订阅者（多个客户端连接盯同一个线程）。
// 返回的函数恰好注销这一个回调；订阅者清空后会话键会被剪除，避免注册表随连接churn无限增长。
func (b *Broadcaster) Subscribe(conversationID string, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	set, ok := b.subs[conversationID]
	if !ok {
		set = make(map[int]Handler)
		b.subs[conversationID] = set
	}
	set[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[conversationID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(b.subs, conversationID)
			}
		}
	}
}

// SubscribeGlobal 注册一个全局观察者，任何会话的 Publish 都会调用它。
func (b *Broadcaster) SubscribeGlobal(fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.global[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.global, id)
	}
}

// Publish 同步调用事件所属会话的全部订阅者，再调用全部全局观察者。
// 单个回调 panic 不能阻断其余回调的投递，逐个隔离。
// 同一订阅者看到的事件与发布顺序一致；跨订阅者、跨会话不提供顺序保证。
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	handlers := make([]Handler, 0, 8)
	if set, ok := b.subs[ev.ConversationID]; ok {
		for _, fn := range set {
			handlers = append(handlers, fn)
		}
	}
	for _, fn := range b.global {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		invoke(fn, ev)
	}
}

// SubscriberCount 返回某个会话当前的订阅者数量。
func (b *Broadcaster) SubscriberCount(conversationID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[conversationID])
}

func invoke(fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnf("广播回调 panic，已隔离: %v", r)
		}
	}()
	fn(ev)
}
