package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/pairup/internal/adapters/mq/queue"
	worker "github.com/okian/pairup/internal/adapters/mq/worker"
	model "github.com/okian/pairup/internal/domain/model"
	logging "github.com/okian/pairup/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type recordingHandler struct {
	mu    sync.Mutex
	seen  map[string][]string
	fail  map[string]error
	panic map[string]bool
	delay time.Duration
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		seen:  make(map[string][]string),
		fail:  make(map[string]error),
		panic: make(map[string]bool),
	}
}

func (h *recordingHandler) Handle(_ context.Context, c model.Command) error {
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panic[c.RequestID] {
		panic("boom")
	}
	h.seen[c.ParticipantID] = append(h.seen[c.ParticipantID], c.RequestID)
	return h.fail[c.RequestID]
}

func (h *recordingHandler) requests(participant string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen[participant]...)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a single channel", t, func() {
		_ = logging.Init()

		ch := make(chan model.Command, 10)
		h := newRecordingHandler()
		acks := 0
		var ackMu sync.Mutex
		w := worker.NewInMemoryWorker(ch, h, worker.WithName("test-worker"), worker.WithAck(func() {
			ackMu.Lock()
			acks++
			ackMu.Unlock()
		}))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When commands arrive", func() {
			ch <- model.Command{Kind: model.CommandJoin, ParticipantID: "alice", RequestID: "1"}
			ch <- model.Command{Kind: model.CommandLeave, ParticipantID: "alice", RequestID: "2"}

			convey.Convey("Then they should be handled in order", func() {
				convey.So(waitFor(func() bool { return w.Processed() == 2 }), convey.ShouldBeTrue)
				convey.So(h.requests("alice"), convey.ShouldResemble, []string{"1", "2"})
				ackMu.Lock()
				convey.So(acks, convey.ShouldEqual, 2)
				ackMu.Unlock()
			})
		})

		convey.Convey("When the handler fails or panics", func() {
			h.fail["bad"] = errors.New("handler error")
			h.panic["boom"] = true
			ch <- model.Command{ParticipantID: "bob", RequestID: "bad"}
			ch <- model.Command{ParticipantID: "bob", RequestID: "boom"}
			ch <- model.Command{ParticipantID: "bob", RequestID: "ok"}

			convey.Convey("Then the worker should keep going", func() {
				convey.So(waitFor(func() bool { return w.Processed() == 3 }), convey.ShouldBeTrue)
				convey.So(h.requests("bob"), convey.ShouldResemble, []string{"bad", "ok"})
			})
		})

		convey.Convey("When the channel is closed", func() {
			close(ch)

			convey.Convey("Then Run should return", func() {
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					convey.So("worker did not stop", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over a partitioned queue", t, func() {
		_ = logging.Init()

		q := queue.NewPartitionedQueue(queue.WithCapacity(10_000), queue.WithPartitions(4))
		h := newRecordingHandler()
		p := worker.NewPool(q, h, worker.WithPoolAck(q.Done))
		convey.So(p.Size(), convey.ShouldEqual, 4)

		ctx := context.Background()
		p.Start(ctx)

		convey.Convey("When many participants send commands concurrently", func() {
			const perParticipant = 50
			participants := []string{"a", "b", "c", "d", "e", "f", "g"}
			var wg sync.WaitGroup
			for _, id := range participants {
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					for i := 0; i < perParticipant; i++ {
						_ = q.Enqueue(ctx, model.Command{ParticipantID: id, RequestID: fmt.Sprint(i)})
					}
				}(id)
			}
			wg.Wait()
			err := p.Shutdown(ctx)

			convey.Convey("Then every command should be handled in per-participant order", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(p.Processed(), convey.ShouldEqual, int64(len(participants)*perParticipant))
				for _, id := range participants {
					got := h.requests(id)
					convey.So(len(got), convey.ShouldEqual, perParticipant)
					for i, r := range got {
						convey.So(r, convey.ShouldEqual, fmt.Sprint(i))
					}
				}
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shutting down an idle pool", func() {
			err := p.Shutdown(ctx)

			convey.Convey("Then it should stop cleanly", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})
	})
}

func TestHandlerFunc(t *testing.T) {
	convey.Convey("Given a HandlerFunc", t, func() {
		called := false
		var h worker.Handler = worker.HandlerFunc(func(context.Context, model.Command) error {
			called = true
			return nil
		})

		convey.So(h.Handle(context.Background(), model.Command{}), convey.ShouldBeNil)
		convey.So(called, convey.ShouldBeTrue)
	})
}
