package aggregator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/pkg/models"
)

// Batcher accumulates diffs per topic and flushes them on a time
// window or a count threshold, whichever comes first. Flushes that
// would exceed the transport's message size ceiling are split into
// ordered sub-batches, never dropped or truncated. All queues are
// owned fields of the instance so multiple batchers (tests, sharding)
// never collide.
type Batcher struct {
	mu         sync.Mutex
	pending    map[string][]models.MatchDiff
	publishing map[string]*sync.Mutex

	publisher Publisher
	log       *logrus.Logger
	window    time.Duration
	maxCount  int
	maxBytes  int
}

// NewBatcher creates a batcher flushing every window or at maxCount
// queued diffs, splitting flushes at maxBytes serialized.
func NewBatcher(publisher Publisher, log *logrus.Logger, window time.Duration, maxCount, maxBytes int) *Batcher {
	return &Batcher{
		pending:    make(map[string][]models.MatchDiff),
		publishing: make(map[string]*sync.Mutex),
		publisher:  publisher,
		log:        log,
		window:     window,
		maxCount:   maxCount,
		maxBytes:   maxBytes,
	}
}

// Add queues a non-empty diff for its topic, flushing immediately when
// the topic reaches the count threshold.
func (b *Batcher) Add(ctx context.Context, topic string, diff models.MatchDiff) {
	if diff.Empty() {
		return
	}

	b.mu.Lock()
	b.pending[topic] = append(b.pending[topic], diff)
	full := len(b.pending[topic]) >= b.maxCount
	b.mu.Unlock()

	if full {
		b.flushTopic(ctx, topic)
	}
}

// Run flushes on the window ticker until ctx is cancelled, then does a
// final drain so queued updates survive shutdown.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			b.FlushAll(drainCtx)
			cancel()
			return
		case <-ticker.C:
			b.FlushAll(ctx)
		}
	}
}

// FlushAll publishes every queued topic.
func (b *Batcher) FlushAll(ctx context.Context) {
	b.mu.Lock()
	topics := make([]string, 0, len(b.pending))
	for topic := range b.pending {
		topics = append(topics, topic)
	}
	b.mu.Unlock()

	for _, topic := range topics {
		b.flushTopic(ctx, topic)
	}
}

// flushTopic dequeues and publishes one topic's updates. The topic's
// publish mutex is taken before the dequeue and held across the
// publish, so concurrent flushers (window tick, count-threshold Add)
// cannot hand batches to the transport out of queue order.
func (b *Batcher) flushTopic(ctx context.Context, topic string) {
	topicMu := b.topicMutex(topic)
	topicMu.Lock()
	defer topicMu.Unlock()

	b.mu.Lock()
	updates := b.pending[topic]
	delete(b.pending, topic)
	b.mu.Unlock()

	if len(updates) == 0 {
		return
	}

	for _, chunk := range SplitBySize(updates, b.maxBytes) {
		msg := NewBatchMessage(chunk)
		if err := b.publisher.Publish(ctx, topic, msg); err != nil {
			b.log.WithError(err).WithFields(logrus.Fields{
				"topic": topic,
				"count": msg.Count,
			}).Error("publishing update batch")
			continue
		}
		b.log.WithFields(logrus.Fields{
			"topic": topic,
			"count": msg.Count,
		}).Debug("published update batch")
	}
}

// topicMutex returns the publish mutex for a topic, creating it on
// first use.
func (b *Batcher) topicMutex(topic string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	topicMu, ok := b.publishing[topic]
	if !ok {
		topicMu = &sync.Mutex{}
		b.publishing[topic] = topicMu
	}
	return topicMu
}

// SplitBySize partitions updates into ordered chunks whose serialized
// envelope each stays within maxBytes. A single update that exceeds
// the bound on its own is emitted alone rather than dropped.
func SplitBySize(updates []models.MatchDiff, maxBytes int) [][]models.MatchDiff {
	if len(updates) == 0 {
		return nil
	}

	overhead := envelopeOverhead()
	budget := maxBytes - overhead

	var chunks [][]models.MatchDiff
	var current []models.MatchDiff
	currentSize := 0

	for _, u := range updates {
		data, err := json.Marshal(u)
		if err != nil {
			continue
		}
		size := len(data) + 1 // separator comma

		if len(current) > 0 && currentSize+size > budget {
			chunks = append(chunks, current)
			current = nil
			currentSize = 0
		}
		current = append(current, u)
		currentSize += size
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// envelopeMargin covers the width difference between the measured
// empty envelope and a real one: a count with more digits and an
// RFC3339Nano timestamp at full width.
const envelopeMargin = 24

// envelopeOverhead is the serialized size of an empty batch message,
// plus margin: everything the transport counts that is not the
// updates themselves.
func envelopeOverhead() int {
	empty, err := json.Marshal(NewBatchMessage(nil))
	if err != nil {
		return 256
	}
	return len(empty) + envelopeMargin
}
