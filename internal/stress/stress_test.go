package stress

import (
	"testing"
	"time"

	"github.com/DeveloperRob/GoWorkQueue/pkg/workqueue"
)

func intPayload() Payload[*int] {
	return Payload[*int]{
		New: func(i int) *int {
			v := new(int)
			*v = i
			return v
		},
		Stop:   func() *int { return nil },
		IsStop: func(p *int) bool { return p == nil },
	}
}

func TestRunTimedTestDrainsBacklog(t *testing.T) {
	modes := []struct {
		name string
		mode Mode
	}{
		{"TimedWait", ModeTimedWait},
		{"TryDequeue", ModeTryDequeue},
		{"Wait", ModeWait},
	}
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			q := workqueue.New[*int]()
			cfg := Config{
				NumProducers: 2,
				NumConsumers: 2,
				Mode:         m.mode,
				PollTimeout:  time.Millisecond,
			}
			produced, consumed, elapsed := RunTimedTest(q, cfg, 100*time.Millisecond, intPayload())

			if produced == 0 {
				t.Fatal("no items produced during the measurement window")
			}
			if consumed != produced {
				t.Fatalf("drain incomplete: produced %d, consumed %d", produced, consumed)
			}
			if elapsed <= 0 {
				t.Fatalf("nonsensical elapsed time %v", elapsed)
			}
			if !q.IsEmpty() {
				t.Fatalf("queue not empty after drain: Len=%d", q.Len())
			}
		})
	}
}

func TestRunTimedTestSingleProducerSingleConsumer(t *testing.T) {
	q := workqueue.New[*int]()
	cfg := Config{NumProducers: 1, NumConsumers: 1, Mode: ModeTimedWait}

	produced, consumed, _ := RunTimedTest(q, cfg, 50*time.Millisecond, intPayload())
	if produced == 0 || consumed != produced {
		t.Fatalf("expected full drain, got produced=%d consumed=%d", produced, consumed)
	}
}
