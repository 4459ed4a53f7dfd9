package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/pairup/internal/adapters/notify"
	"github.com/okian/pairup/internal/domain/model"
	"github.com/okian/pairup/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func receive(c *notify.Conn) (map[string]json.RawMessage, bool) {
	select {
	case b := <-c.Send():
		var env map[string]json.RawMessage
		if err := json.Unmarshal(b, &env); err != nil {
			return nil, false
		}
		return env, true
	case <-time.After(time.Second):
		return nil, false
	}
}

func TestHubDelivery(t *testing.T) {
	Convey("Given a hub with one bound connection", t, func() {
		ctx := context.Background()
		h := notify.NewHub(notify.WithSendBuffer(4))
		c := h.Register(ctx)
		So(h.Bind("alice", c.Handle()), ShouldBeTrue)
		So(h.Connected(), ShouldEqual, 1)

		Convey("When a notice is pushed", func() {
			h.PushNotice(ctx, "alice", "Joined matching queue")
			env, ok := receive(c)

			Convey("Then the client should get a notification frame", func() {
				So(ok, ShouldBeTrue)
				So(string(env["type"]), ShouldEqual, `"notification"`)
				So(string(env["payload"]), ShouldEqual, `"Joined matching queue"`)
			})
		})

		Convey("When a match list is pushed", func() {
			h.PushMatchList(ctx, "alice", []model.MatchCandidate{{
				ParticipantID:      "bob",
				DisplayName:        "Bob",
				Score:              3,
				SharedSkills:       model.NewSkillSet("cooking"),
				SharedAvailability: model.NewSkillSet("weekends"),
			}})
			env, ok := receive(c)

			Convey("Then the candidates should use the wire field names", func() {
				So(ok, ShouldBeTrue)
				So(string(env["type"]), ShouldEqual, `"matchUpdate"`)
				var cands []notify.CandidateView
				So(json.Unmarshal(env["payload"], &cands), ShouldBeNil)
				So(cands, ShouldResemble, []notify.CandidateView{{
					UserID:             "bob",
					Username:           "Bob",
					Score:              3,
					SharedSkills:       []string{"cooking"},
					SharedAvailability: []string{"weekends"},
				}})
			})
		})

		Convey("When an empty match list is pushed", func() {
			h.PushMatchList(ctx, "alice", nil)
			env, ok := receive(c)

			Convey("Then the payload should be an empty array", func() {
				So(ok, ShouldBeTrue)
				So(string(env["payload"]), ShouldEqual, `[]`)
			})
		})

		Convey("When a session is pushed", func() {
			at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
			h.PushMatched(ctx, "alice", model.Session{
				SessionID:    "sess_1",
				ParticipantA: model.ProfileSnapshot{ParticipantID: "alice"}.Normalize(),
				ParticipantB: model.ProfileSnapshot{ParticipantID: "bob", Skills: model.NewSkillSet("go")}.Normalize(),
				CommittedAt:  at,
			})
			env, ok := receive(c)

			Convey("Then both sides should be in the payload", func() {
				So(ok, ShouldBeTrue)
				So(string(env["type"]), ShouldEqual, `"matched"`)
				var s notify.SessionView
				So(json.Unmarshal(env["payload"], &s), ShouldBeNil)
				So(s.SessionID, ShouldEqual, "sess_1")
				So(s.A.ID, ShouldEqual, "alice")
				So(s.B.Skills, ShouldResemble, []string{"go"})
				So(s.CommittedAt.Equal(at), ShouldBeTrue)
			})
		})

		Convey("When the buffer is full", func() {
			for i := 0; i < 10; i++ {
				h.PushNotice(ctx, "alice", "spam")
			}

			Convey("Then extra messages should be dropped without blocking", func() {
				So(len(c.Send()), ShouldEqual, 4)
			})
		})

		Convey("When the participant is unknown", func() {
			h.PushNotice(ctx, "ghost", "hello")

			Convey("Then nothing should be delivered", func() {
				So(len(c.Send()), ShouldEqual, 0)
			})
		})

		Convey("When noticing a connection directly", func() {
			h.NoticeConn(ctx, c.Handle(), "Server busy, try again")
			env, ok := receive(c)
			So(ok, ShouldBeTrue)
			So(string(env["payload"]), ShouldEqual, `"Server busy, try again"`)
		})
	})
}

func TestHubBindings(t *testing.T) {
	Convey("Given a hub with two connections", t, func() {
		ctx := context.Background()
		h := notify.NewHub()
		c1 := h.Register(ctx)
		c2 := h.Register(ctx)

		Convey("When binding to an unknown handle", func() {
			So(h.Bind("alice", "nope"), ShouldBeFalse)
		})

		Convey("When a participant moves to a newer connection", func() {
			h.Bind("alice", c1.Handle())
			h.Bind("bob", c1.Handle())
			h.Bind("alice", c2.Handle())
			left := h.Unregister(ctx, c1.Handle())

			Convey("Then only participants still on the old connection are returned", func() {
				So(left, ShouldResemble, []string{"bob"})
				h.PushNotice(ctx, "alice", "still here")
				_, ok := receive(c2)
				So(ok, ShouldBeTrue)
			})

			Convey("Then the old connection should be done", func() {
				select {
				case <-c1.Done():
				default:
					So("connection not closed", ShouldBeEmpty)
				}
				So(h.Connected(), ShouldEqual, 1)
			})
		})

		Convey("When unregistering twice", func() {
			h.Bind("alice", c1.Handle())
			first := h.Unregister(ctx, c1.Handle())
			second := h.Unregister(ctx, c1.Handle())

			Convey("Then the second call should be a no-op", func() {
				So(first, ShouldResemble, []string{"alice"})
				So(second, ShouldBeNil)
			})
		})
	})
}

func TestProfileView(t *testing.T) {
	Convey("Given a wire profile with duplicates and blanks", t, func() {
		v := notify.ProfileView{
			ID:           " u1 ",
			Username:     "User",
			Skills:       []string{"go", "go", " "},
			Availability: []string{"mon"},
		}

		Convey("When converting to a snapshot and back", func() {
			s := v.Snapshot()
			back := notify.NewProfileView(s)

			Convey("Then sets should be normalized", func() {
				So(s.ParticipantID, ShouldEqual, "u1")
				So(s.Skills.Len(), ShouldEqual, 1)
				So(s.Teaches, ShouldNotBeNil)
				So(back.Skills, ShouldResemble, []string{"go"})
				So(back.Teaches, ShouldBeNil)
				So(back.Proficiency, ShouldBeNil)
			})
		})
	})

	Convey("Given a wire profile with skill levels", t, func() {
		v := notify.ProfileView{
			ID:          "u1",
			Teaches:     []string{"guitar"},
			Proficiency: map[string]int{"guitar": 7, " ": 2, "drums": 0},
			Experience:  map[string]int{"guitar": 3},
		}

		Convey("Then valid levels should survive the round trip", func() {
			s := v.Snapshot()
			So(s.Proficiency.Of("guitar"), ShouldEqual, 7)
			So(len(s.Proficiency), ShouldEqual, 1)

			back := notify.NewProfileView(s)
			So(back.Proficiency, ShouldResemble, map[string]int{"guitar": 7})
			So(back.Experience, ShouldResemble, map[string]int{"guitar": 3})
		})
	})
}
