// Package mqttbridge mirrors observed peer status to an MQTT broker.
package mqttbridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/notnil/cannode/node"
)

// queueSize bounds the status messages waiting for the broker.
const queueSize = 64

// StatusMessage is the JSON document published per observed status.
type StatusMessage struct {
	SourceID   uint8     `json:"source_id"`
	Code       uint8     `json:"code"`
	Name       string    `json:"name"`
	UptimeSec  uint32    `json:"uptime_sec"`
	ObservedAt time.Time `json:"observed_at"`
}

// Bridge is a node.StatusSink. ObserveStatus never blocks the node: messages
// are queued and published by a background goroutine, and dropped when the
// queue is full.
type Bridge struct {
	pub   Publisher
	opts  Options
	log   *slog.Logger
	queue chan StatusMessage
	done  chan struct{}
	once  sync.Once

	mu     sync.RWMutex
	closed bool

	dropped atomic.Uint64
	failed  atomic.Uint64
}

var _ node.StatusSink = (*Bridge)(nil)

// New starts a bridge publishing through pub.
func New(pub Publisher, opts Options, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "cannode"
	}
	b := &Bridge{
		pub:   pub,
		opts:  opts,
		log:   logger,
		queue: make(chan StatusMessage, queueSize),
		done:  make(chan struct{}),
	}
	go b.run()
	return b
}

// Topic returns the topic status of source is published on.
func (b *Bridge) Topic(source uint8) string {
	return fmt.Sprintf("%s/status/%d", strings.TrimSuffix(b.opts.TopicPrefix, "/"), source)
}

func (b *Bridge) ObserveStatus(p node.PeerStatus) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	msg := StatusMessage{
		SourceID:   uint8(p.SourceID),
		Code:       uint8(p.Code),
		Name:       p.Name(),
		UptimeSec:  uint32(p.Uptime / time.Second),
		ObservedAt: p.ObservedAt,
	}
	select {
	case b.queue <- msg:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns the number of messages discarded on a full queue.
func (b *Bridge) Dropped() uint64 { return b.dropped.Load() }

// Failed returns the number of messages the broker rejected.
func (b *Bridge) Failed() uint64 { return b.failed.Load() }

func (b *Bridge) run() {
	defer close(b.done)
	for msg := range b.queue {
		payload, err := json.Marshal(msg)
		if err != nil {
			b.failed.Add(1)
			continue
		}
		if err := b.pub.Publish(b.Topic(msg.SourceID), payload, b.opts.QoS, b.opts.Retained); err != nil {
			b.failed.Add(1)
			b.log.Warn("mqtt publish failed", "source", msg.SourceID, "error", err)
		}
	}
}

// Close publishes what is queued, then closes the publisher.
func (b *Bridge) Close() error {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.queue)
		b.mu.Unlock()
		<-b.done
		b.pub.Close()
	})
	return nil
}
