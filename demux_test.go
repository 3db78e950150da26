package simwire

import (
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Zereker/simwire/frame"
	"github.com/Zereker/simwire/message"
)

func newTestDemux(opt ...Option) *Demux {
	return NewDemux(message.NewCodec(newTestRegistry()), opt...)
}

func TestDemux_InterleavedConnections(t *testing.T) {
	d := newTestDemux()

	a := encodeForTest(t, &textMessage{Body: "from a"}, &tickMessage{Tick: 1})
	b := encodeForTest(t, &tickMessage{Tick: 2}, &textMessage{Body: "from b"})

	var gotA, gotB []message.Message

	// Alternate 3-byte chunks between two connections
	for len(a) > 0 || len(b) > 0 {
		if len(a) > 0 {
			n := min(3, len(a))
			msgs, err := d.Feed(1, a[:n])
			if err != nil {
				t.Fatalf("feed a: %v", err)
			}
			gotA = append(gotA, msgs...)
			a = a[n:]
		}
		if len(b) > 0 {
			n := min(3, len(b))
			msgs, err := d.Feed(2, b[:n])
			if err != nil {
				t.Fatalf("feed b: %v", err)
			}
			gotB = append(gotB, msgs...)
			b = b[n:]
		}
	}

	if len(gotA) != 2 || len(gotB) != 2 {
		t.Fatalf("got %d messages for a and %d for b, want 2 each", len(gotA), len(gotB))
	}

	if m, ok := gotA[0].(*textMessage); !ok || m.Body != "from a" {
		t.Errorf("a[0] = %#v", gotA[0])
	}
	if m, ok := gotB[1].(*textMessage); !ok || m.Body != "from b" {
		t.Errorf("b[1] = %#v", gotB[1])
	}

	if d.Len() != 2 {
		t.Errorf("Len = %d, want 2", d.Len())
	}
}

func TestDemux_StreamErrorDropsOnlyThatConnection(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(registry, "demux")
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	d := newTestDemux(MetricsOption(metrics), LoggerOption(&mockLogger{}))

	good := encodeForTest(t, &tickMessage{Tick: 5})

	// connection 2 holds a partial frame while connection 1 breaks
	if _, err := d.Feed(2, good[:10]); err != nil {
		t.Fatalf("feed 2: %v", err)
	}

	_, err = d.Feed(1, []byte{0, 0, 0, 1})
	if !errors.Is(err, frame.ErrCorruptLength) {
		t.Fatalf("expected ErrCorruptLength, got %v", err)
	}
	if !message.IsStreamError(err) {
		t.Errorf("expected stream error, got %v", err)
	}

	if d.Len() != 1 {
		t.Errorf("Len = %d, want 1 after dropping the corrupt connection", d.Len())
	}

	msgs, err := d.Feed(2, good[10:])
	if err != nil || len(msgs) != 1 {
		t.Fatalf("connection 2 disturbed: msgs=%v err=%v", msgs, err)
	}

	// A new stream on id 1 starts clean
	msgs, err = d.Feed(1, good)
	if err != nil || len(msgs) != 1 {
		t.Errorf("reused id 1 should start fresh: msgs=%v err=%v", msgs, err)
	}

	if got := testutil.ToFloat64(metrics.streamErrors); got != 1 {
		t.Errorf("stream errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.framesIn); got != 2 {
		t.Errorf("frames received = %v, want 2", got)
	}
}

func TestDemux_Drop(t *testing.T) {
	d := newTestDemux()

	data := encodeForTest(t, &textMessage{Body: "partial"})
	if _, err := d.Feed(7, data[:5]); err != nil {
		t.Fatalf("feed: %v", err)
	}

	if !d.Drop(7) {
		t.Error("Drop should report the pending partial frame")
	}
	if d.Drop(7) {
		t.Error("second Drop should find nothing")
	}
	if d.Len() != 0 {
		t.Errorf("Len = %d, want 0", d.Len())
	}
}

func TestDemux_MaxFrameSize(t *testing.T) {
	d := newTestDemux(MaxFrameSizeOption(16))

	data := encodeForTest(t, &textMessage{Body: "longer than the limit"})
	if _, err := d.Feed(1, data); !errors.Is(err, frame.ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestDemux_ConcurrentConnections(t *testing.T) {
	d := newTestDemux()
	data := encodeForTest(t, &tickMessage{Tick: 1}, &textMessage{Body: "x"}, &tickMessage{Tick: 2})

	var wg sync.WaitGroup
	for id := uint64(1); id <= 8; id++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()

			var count int
			for i := 0; i < len(data); i++ {
				msgs, err := d.Feed(id, data[i:i+1])
				if err != nil {
					t.Errorf("conn %d: %v", id, err)
					return
				}
				count += len(msgs)
			}
			if count != 3 {
				t.Errorf("conn %d decoded %d messages, want 3", id, count)
			}
		}(id)
	}
	wg.Wait()
}
