package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/pairup/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new deduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		Convey("When a request id is seen for the first time", func() {
			seen := d.SeenAndRecord(ctx, "conn-1:req-1")

			Convey("Then it should be recorded", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When the same request id arrives twice", func() {
			d.SeenAndRecord(ctx, "conn-1:req-1")
			seen := d.SeenAndRecord(ctx, "conn-1:req-1")

			Convey("Then the repeat should be reported", func() {
				So(seen, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When an id is unrecorded", func() {
			d.SeenAndRecord(ctx, "conn-1:req-1")
			d.Unrecord(ctx, "conn-1:req-1")
			d.Unrecord(ctx, "missing")

			Convey("Then a retry should be accepted", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "conn-1:req-1"), ShouldBeFalse)
			})
		})
	})

	Convey("Given a bounded deduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for _, id := range []string{"r1", "r2", "r3"} {
			So(d.SeenAndRecord(ctx, id), ShouldBeFalse)
		}

		Convey("When a fourth id arrives", func() {
			So(d.SeenAndRecord(ctx, "r4"), ShouldBeFalse)

			Convey("Then the oldest id should be forgotten first", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "r2"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "r3"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "r4"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "r1"), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 3)
			})
		})

		Convey("When an id in the middle is unrecorded", func() {
			d.Unrecord(ctx, "r2")
			d.SeenAndRecord(ctx, "r4")

			Convey("Then no eviction should be needed", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "r1"), ShouldBeTrue)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		const n = 1000
		for i := 0; i < n; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("r%d", i))
		}

		So(d.Size(), ShouldEqual, int64(n))
		So(d.SeenAndRecord(ctx, "r0"), ShouldBeTrue)
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given concurrent writers racing on the same ids", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(10_000))
		const (
			workers = 10
			ids     = 200
		)

		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			firsts = make(map[string]int)
		)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < ids; i++ {
					id := fmt.Sprintf("req-%d", i)
					if !d.SeenAndRecord(ctx, id) {
						mu.Lock()
						firsts[id]++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each id should be accepted exactly once", func() {
			So(len(firsts), ShouldEqual, ids)
			for _, count := range firsts {
				So(count, ShouldEqual, 1)
			}
			So(d.Size(), ShouldEqual, int64(ids))
		})
	})
}
