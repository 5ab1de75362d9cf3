package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/pkg/models"
)

type capturePublisher struct {
	mu       sync.Mutex
	messages []BatchMessage
	topics   []string
	err      error
}

func (p *capturePublisher) Publish(ctx context.Context, topic string, msg BatchMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, msg)
	return nil
}

func (p *capturePublisher) published() []BatchMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]BatchMessage(nil), p.messages...)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// sizedDiff builds a diff whose serialized size is stable across runs:
// fixed-width identity, fixed timestamp, fixed-length payload.
func sizedDiff(id string, payloadLen int) models.MatchDiff {
	return models.MatchDiff{
		FixtureID: id,
		SportKey:  "soccer_epl",
		Timestamp: time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC),
		Changes: []models.FieldChange{{
			Path:  "status",
			Value: strings.Repeat("x", payloadLen),
		}},
	}
}

func TestSplitBySizeRespectsBound(t *testing.T) {
	const maxBytes = 2048

	var updates []models.MatchDiff
	for i := 0; i < 10; i++ {
		updates = append(updates, sizedDiff("match-0000", 300))
	}

	chunks := SplitBySize(updates, maxBytes)

	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want the batch split at least once", len(chunks))
	}

	var total int
	for i, chunk := range chunks {
		total += len(chunk)
		data, err := json.Marshal(NewBatchMessage(chunk))
		if err != nil {
			t.Fatalf("marshal chunk %d: %v", i, err)
		}
		if len(data) > maxBytes {
			t.Errorf("chunk %d serializes to %d bytes, over the %d bound", i, len(data), maxBytes)
		}
	}
	if total != len(updates) {
		t.Errorf("chunks carry %d updates, want all %d", total, len(updates))
	}
}

func TestSplitBySizePreservesOrder(t *testing.T) {
	ids := []string{"match-0001", "match-0002", "match-0003", "match-0004", "match-0005", "match-0006"}
	var updates []models.MatchDiff
	for _, id := range ids {
		updates = append(updates, sizedDiff(id, 400))
	}

	var got []string
	for _, chunk := range SplitBySize(updates, 1200) {
		for _, u := range chunk {
			got = append(got, u.FixtureID)
		}
	}

	if len(got) != len(ids) {
		t.Fatalf("ids = %v, want all of %v", got, ids)
	}
	for i := range ids {
		if got[i] != ids[i] {
			t.Fatalf("order broken at %d: got %v, want %v", i, got, ids)
		}
	}
}

func TestSplitBySizeOversizedUpdateGoesAlone(t *testing.T) {
	const maxBytes = 1024
	updates := []models.MatchDiff{
		sizedDiff("match-0001", 100),
		sizedDiff("match-0002", 4000), // alone exceeds the bound
		sizedDiff("match-0003", 100),
	}

	chunks := SplitBySize(updates, maxBytes)

	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3 (oversized update isolated)", len(chunks))
	}
	if len(chunks[1]) != 1 || chunks[1][0].FixtureID != "match-0002" {
		t.Errorf("middle chunk = %+v, want the oversized update alone", chunks[1])
	}
}

func TestSplitBySizeEmptyInput(t *testing.T) {
	if chunks := SplitBySize(nil, 1024); chunks != nil {
		t.Errorf("chunks = %v, want nil for empty input", chunks)
	}
}

func TestBatcherFlushesAtCountThreshold(t *testing.T) {
	pub := &capturePublisher{}
	b := NewBatcher(pub, testLogger(), time.Hour, 3, 65536)
	ctx := context.Background()
	topic := TopicForSport("soccer_epl")

	b.Add(ctx, topic, sizedDiff("match-0001", 10))
	b.Add(ctx, topic, sizedDiff("match-0002", 10))
	if len(pub.published()) != 0 {
		t.Fatal("batcher must hold below the count threshold")
	}

	b.Add(ctx, topic, sizedDiff("match-0003", 10))

	msgs := pub.published()
	if len(msgs) != 1 {
		t.Fatalf("published = %d messages, want 1", len(msgs))
	}
	if msgs[0].Count != 3 || msgs[0].Type != "batch:updates" {
		t.Errorf("message = count %d type %q, want 3 batch:updates", msgs[0].Count, msgs[0].Type)
	}
}

func TestBatcherIgnoresEmptyDiffs(t *testing.T) {
	pub := &capturePublisher{}
	b := NewBatcher(pub, testLogger(), time.Hour, 1, 65536)
	ctx := context.Background()

	b.Add(ctx, TopicForSport("soccer_epl"), models.MatchDiff{FixtureID: "m1"})

	if len(pub.published()) != 0 {
		t.Error("empty diff must not be queued or published")
	}
}

func TestBatcherFlushAllDrainsEveryTopic(t *testing.T) {
	pub := &capturePublisher{}
	b := NewBatcher(pub, testLogger(), time.Hour, 100, 65536)
	ctx := context.Background()

	b.Add(ctx, TopicForSport("soccer_epl"), sizedDiff("match-0001", 10))
	b.Add(ctx, TopicForSport("soccer_epl"), sizedDiff("match-0002", 10))
	b.Add(ctx, TopicForSport("basketball_nba"), sizedDiff("match-0003", 10))

	b.FlushAll(ctx)

	msgs := pub.published()
	if len(msgs) != 2 {
		t.Fatalf("published = %d messages, want one per topic", len(msgs))
	}

	var counts int
	for _, m := range msgs {
		counts += m.Count
	}
	if counts != 3 {
		t.Errorf("total updates = %d, want 3", counts)
	}

	b.FlushAll(ctx)
	if len(pub.published()) != 2 {
		t.Error("second flush of an empty batcher must publish nothing")
	}
}

func TestBatcherSplitsOversizedFlush(t *testing.T) {
	pub := &capturePublisher{}
	b := NewBatcher(pub, testLogger(), time.Hour, 100, 2048)
	ctx := context.Background()
	topic := TopicForSport("soccer_epl")

	for i := 0; i < 10; i++ {
		b.Add(ctx, topic, sizedDiff("match-0000", 300))
	}
	b.FlushAll(ctx)

	msgs := pub.published()
	if len(msgs) < 2 {
		t.Fatalf("published = %d messages, want the flush split across several", len(msgs))
	}
	var total int
	for _, m := range msgs {
		total += m.Count
	}
	if total != 10 {
		t.Errorf("total updates = %d, want all 10", total)
	}
}

// stallFirstPublisher blocks its first Publish call until released,
// recording the fixture order in which updates reach the transport.
type stallFirstPublisher struct {
	mu      sync.Mutex
	started bool
	release chan struct{}
	order   []string
}

func (p *stallFirstPublisher) Publish(ctx context.Context, topic string, msg BatchMessage) error {
	p.mu.Lock()
	first := !p.started
	p.started = true
	p.mu.Unlock()

	if first {
		<-p.release
	}

	p.mu.Lock()
	for _, u := range msg.Updates {
		p.order = append(p.order, u.FixtureID)
	}
	p.mu.Unlock()
	return nil
}

func (p *stallFirstPublisher) firstStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

func TestBatcherKeepsUpdateOrderAcrossConcurrentFlushes(t *testing.T) {
	pub := &stallFirstPublisher{release: make(chan struct{})}
	b := NewBatcher(pub, testLogger(), time.Hour, 2, 65536)
	ctx := context.Background()
	topic := TopicForSport("soccer_epl")

	b.Add(ctx, topic, sizedDiff("match-0001", 10))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.FlushAll(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !pub.firstStarted() {
		if time.Now().After(deadline) {
			t.Fatal("first publish never started")
		}
		time.Sleep(time.Millisecond)
	}

	// While the window flush is stalled in the transport, later diffs
	// hit the count threshold and try to flush on their own.
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Add(ctx, topic, sizedDiff("match-0002", 10))
		b.Add(ctx, topic, sizedDiff("match-0003", 10))
	}()

	time.Sleep(10 * time.Millisecond)
	close(pub.release)
	wg.Wait()

	want := []string{"match-0001", "match-0002", "match-0003"}
	pub.mu.Lock()
	got := append([]string(nil), pub.order...)
	pub.mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("published fixtures = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("publish order = %v, want %v", got, want)
		}
	}
}

func TestBatcherKeepsGoingPastPublishError(t *testing.T) {
	pub := &capturePublisher{err: errors.New("stream down")}
	b := NewBatcher(pub, testLogger(), time.Hour, 2, 65536)
	ctx := context.Background()
	topic := TopicForSport("soccer_epl")

	b.Add(ctx, topic, sizedDiff("match-0001", 10))
	b.Add(ctx, topic, sizedDiff("match-0002", 10))

	// The transport recovers; later batches go through.
	pub.mu.Lock()
	pub.err = nil
	pub.mu.Unlock()

	b.Add(ctx, topic, sizedDiff("match-0003", 10))
	b.Add(ctx, topic, sizedDiff("match-0004", 10))

	if len(pub.published()) != 1 {
		t.Errorf("published = %d messages, want the post-recovery batch", len(pub.published()))
	}
}
