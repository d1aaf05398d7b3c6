// Package transport implements the transport.emit driver: an in-memory
// outbox plus a subscriber fan-out, optionally backed by Redis pub/sub
// for multi-process deployments. Grounded in the WebSocketHub pattern of
// _examples/o9nn-echo.go/core/webserver/websocket.go, generalized from a
// WebSocket-only hub into the core's transport.Driver contract.
package transport

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noema/noema/internal/state"
)

// Outbox is a per-channel, unbounded append log of delivered messages, observed in
// emission order by subscribers of the same thread (spec.md §5).
type Outbox struct {
	mu       sync.Mutex
	messages map[string][]state.Tree
	subs     map[string][]chan state.Tree
	redis    *redis.Client
	log      *zap.SugaredLogger
}

// NewOutbox builds an in-memory outbox. redisClient may be nil, in which
// case fan-out is local-process only.
func NewOutbox(redisClient *redis.Client, log *zap.SugaredLogger) *Outbox {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Outbox{
		messages: make(map[string][]state.Tree),
		subs:     make(map[string][]chan state.Tree),
		redis:    redisClient,
		log:      log,
	}
}

// Subscribe registers a channel for a given outbound channel name
// (typically the session thread id) and returns a receive-only feed.
func (o *Outbox) Subscribe(channel string) <-chan state.Tree {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch := make(chan state.Tree, 32)
	o.subs[channel] = append(o.subs[channel], ch)
	return ch
}

// Driver implements runtime.Drivers' transport handler.
type Driver struct {
	Outbox *Outbox
}

// NewDriver constructs a transport driver over an outbox.
func NewDriver(outbox *Outbox) *Driver {
	return &Driver{Outbox: outbox}
}

// EmitTransport delivers frame.messages to the named channel's outbox
// and fans them out to subscribers, per spec.md §6's transport.emit
// contract: {type:"transport", ok, channel, messages:[...]}.
func (d *Driver) EmitTransport(frame state.Tree) state.Tree {
	channel := frame.GetString("channel")
	messages := frame.GetSlice("messages")
	d.Outbox.mu.Lock()
	d.Outbox.messages[channel] = append(d.Outbox.messages[channel], toTrees(messages)...)
	subs := append([]chan state.Tree{}, d.Outbox.subs[channel]...)
	d.Outbox.mu.Unlock()

	for _, sub := range subs {
		for _, m := range toTrees(messages) {
			select {
			case sub <- m:
			default:
				d.Outbox.log.Warnw("subscriber channel full, dropping message", "channel", channel)
			}
		}
	}

	if d.Outbox.redis != nil {
		go d.publishRedis(channel, messages)
	}

	return state.Tree{"type": "transport", "ok": true, "channel": channel, "messages": messages}
}

func (d *Driver) publishRedis(channel string, messages []any) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, m := range toTrees(messages) {
		d.Outbox.redis.Publish(ctx, "noema:transport:"+channel, idhashOf(m))
	}
}

func idhashOf(m state.Tree) string {
	return m.GetString("text")
}

func toTrees(v []any) []state.Tree {
	out := make([]state.Tree, 0, len(v))
	for _, raw := range v {
		switch t := raw.(type) {
		case state.Tree:
			out = append(out, t)
		case map[string]any:
			out = append(out, state.Tree(t))
		}
	}
	return out
}
