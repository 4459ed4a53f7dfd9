package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/okian/pairup/internal/adapters/notify"
	service "github.com/okian/pairup/internal/app"
	"github.com/okian/pairup/internal/domain/matching"
	"github.com/okian/pairup/internal/domain/model"
	"github.com/okian/pairup/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (f frame) notice() string {
	var s string
	_ = json.Unmarshal(f.Payload, &s)
	return s
}

func (f frame) candidates() []notify.CandidateView {
	var c []notify.CandidateView
	_ = json.Unmarshal(f.Payload, &c)
	return c
}

func (f frame) session() notify.SessionView {
	var s notify.SessionView
	_ = json.Unmarshal(f.Payload, &s)
	return s
}

// drain returns every frame buffered for c.
func drain(c *notify.Conn) []frame {
	var out []frame
	for {
		select {
		case b := <-c.Send():
			var f frame
			if err := json.Unmarshal(b, &f); err == nil {
				out = append(out, f)
			}
		default:
			return out
		}
	}
}

func types(fs []frame) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Type
	}
	return out
}

func profile(id string, skills, avail []string) model.ProfileSnapshot {
	return model.ProfileSnapshot{
		ParticipantID: id,
		DisplayName:   id,
		Skills:        model.NewSkillSet(skills...),
		Availability:  model.NewSkillSet(avail...),
	}
}

type client struct {
	svc  *service.Service
	conn *notify.Conn
}

func connect(svc *service.Service) *client {
	return &client{svc: svc, conn: svc.Hub().Register(context.Background())}
}

func (c *client) send(kind model.CommandKind, mutate func(*model.Command)) error {
	cmd := model.Command{Kind: kind, ConnectionHandle: c.conn.Handle()}
	mutate(&cmd)
	return c.svc.Handle(context.Background(), cmd)
}

func (c *client) join(p model.ProfileSnapshot) {
	So(c.send(model.CommandJoin, func(cmd *model.Command) {
		cmd.ParticipantID = p.ParticipantID
		cmd.Profile = p
	}), ShouldBeNil)
}

func (c *client) update(p model.ProfileSnapshot) {
	So(c.send(model.CommandUpdate, func(cmd *model.Command) {
		cmd.ParticipantID = p.ParticipantID
		cmd.Profile = p
	}), ShouldBeNil)
}

func (c *client) simple(kind model.CommandKind, id string) {
	So(c.send(kind, func(cmd *model.Command) { cmd.ParticipantID = id }), ShouldBeNil)
}

func (c *client) accept(inviter, acceptor string) {
	So(c.send(model.CommandAccept, func(cmd *model.Command) {
		cmd.InviterID = inviter
		cmd.ParticipantID = acceptor
	}), ShouldBeNil)
}

func newService(opts ...service.Option) *service.Service {
	svc, err := service.New(append([]service.Option{service.WithWorkerCount(2)}, opts...)...)
	So(err, ShouldBeNil)
	return svc
}

func TestService_New(t *testing.T) {
	Convey("Given service options", t, func() {
		Convey("When the scorer is unknown", func() {
			_, err := service.New(service.WithScorer("cosine", 1, 1))
			So(err, ShouldNotBeNil)
		})

		Convey("When the threshold is negative", func() {
			_, err := service.New(service.WithThreshold(-1))
			So(errors.Is(err, matching.ErrInvalidThreshold), ShouldBeTrue)
		})

		Convey("When the options are valid", func() {
			svc := newService(service.WithScorer("exchange", 2, 1), service.WithQueueSize(100))
			stats, err := svc.GetStats(context.Background())
			So(err, ShouldBeNil)
			So(stats.Started, ShouldBeFalse)
			So(stats.WorkerCount, ShouldEqual, 2)
		})
	})
}

func TestService_Join(t *testing.T) {
	Convey("Given a service with the default threshold", t, func() {
		ctx := context.Background()
		svc := newService()
		alice := connect(svc)
		bob := connect(svc)

		Convey("When the first participant joins", func() {
			alice.join(profile("alice", []string{"cooking"}, []string{"weekends"}))
			fs := drain(alice.conn)

			Convey("Then they get the join notice and an empty list", func() {
				So(types(fs), ShouldResemble, []string{"notification", "matchUpdate"})
				So(fs[0].notice(), ShouldEqual, service.NoticeJoined)
				So(string(fs[1].Payload), ShouldEqual, "[]")
				So(svc.QueueIDs(), ShouldResemble, []string{"alice"})
			})

			Convey("Then the profile is stored", func() {
				p, err := svc.Profile(ctx, "alice")
				So(err, ShouldBeNil)
				So(p.Skills.Has("cooking"), ShouldBeTrue)
			})
		})

		Convey("When a compatible participant joins", func() {
			alice.join(profile("alice", []string{"cooking"}, []string{"weekends"}))
			drain(alice.conn)
			bob.join(profile("bob", []string{"cooking", "go"}, []string{"weekends"}))

			Convey("Then both are matched and the joiner gets no stale list", func() {
				af := drain(alice.conn)
				bf := drain(bob.conn)
				So(types(af), ShouldResemble, []string{"matched"})
				So(types(bf), ShouldResemble, []string{"notification", "matched"})

				sess := af[0].session()
				So(sess.SessionID, ShouldStartWith, "sess_")
				So(sess.A.ID, ShouldEqual, "bob")
				So(sess.B.ID, ShouldEqual, "alice")
				So(svc.QueueIDs(), ShouldBeEmpty)

				stats, err := svc.GetStats(ctx)
				So(err, ShouldBeNil)
				So(stats.Sessions, ShouldEqual, 1)
				So(stats.QueueSize, ShouldEqual, 0)
				So(stats.Connected, ShouldEqual, 2)
			})
		})

		Convey("When an incomplete profile joins", func() {
			alice.join(model.ProfileSnapshot{DisplayName: "nobody"})

			Convey("Then it is ignored without a reply", func() {
				So(drain(alice.conn), ShouldBeEmpty)
				So(svc.QueueIDs(), ShouldBeEmpty)
			})
		})

		Convey("When the sender's connection closed before the join ran", func() {
			svc.Hub().Unregister(ctx, alice.conn.Handle())
			alice.join(profile("alice", []string{"cooking"}, nil))

			Convey("Then the participant is not queued", func() {
				So(svc.QueueIDs(), ShouldBeEmpty)
			})
		})
	})
}

func TestService_ThresholdAndUpdate(t *testing.T) {
	Convey("Given a service with a high threshold", t, func() {
		svc := newService(service.WithThreshold(10))
		alice := connect(svc)
		bob := connect(svc)

		alice.join(profile("alice", []string{"cooking"}, []string{"weekends"}))
		bob.join(profile("bob", []string{"cooking"}, []string{"weekends"}))
		drain(alice.conn)

		Convey("Then the joiner is ranked but not matched", func() {
			fs := drain(bob.conn)
			So(types(fs), ShouldResemble, []string{"notification", "matchUpdate"})
			cands := fs[1].candidates()
			So(len(cands), ShouldEqual, 1)
			So(cands[0].UserID, ShouldEqual, "alice")
			So(cands[0].Score, ShouldEqual, 3.0)
			So(cands[0].SharedSkills, ShouldResemble, []string{"cooking"})
			So(svc.QueueIDs(), ShouldResemble, []string{"alice", "bob"})
		})

		Convey("When bob updates his skills", func() {
			drain(bob.conn)
			bob.update(profile("bob", []string{"cooking", "baking"}, []string{"weekends", "evenings"}))

			Convey("Then only bob gets a fresh list and order is kept", func() {
				fs := drain(bob.conn)
				So(types(fs), ShouldResemble, []string{"matchUpdate"})
				So(fs[0].candidates()[0].Score, ShouldEqual, 3.0)
				So(drain(alice.conn), ShouldBeEmpty)
				So(svc.QueueIDs(), ShouldResemble, []string{"alice", "bob"})
			})
		})

		Convey("When bob accepts alice's invitation", func() {
			drain(bob.conn)
			bob.accept("alice", "bob")

			Convey("Then the match is committed regardless of score", func() {
				So(types(drain(alice.conn)), ShouldResemble, []string{"matched"})
				So(types(drain(bob.conn)), ShouldResemble, []string{"matched"})
				So(svc.QueueIDs(), ShouldBeEmpty)
			})

			Convey("Then a second accept is told the partner is gone", func() {
				drain(alice.conn)
				drain(bob.conn)
				alice.accept("bob", "alice")
				fs := drain(alice.conn)
				So(len(fs), ShouldEqual, 1)
				So(fs[0].notice(), ShouldEqual, service.NoticeUnavailable)
			})
		})

		Convey("When a participant accepts themself", func() {
			drain(bob.conn)
			bob.accept("bob", "bob")

			Convey("Then they get a notice and stay queued", func() {
				fs := drain(bob.conn)
				So(fs[0].notice(), ShouldEqual, service.NoticeSelfMatch)
				So(svc.QueueIDs(), ShouldResemble, []string{"alice", "bob"})
			})
		})
	})
}

func TestService_ProficiencyScorer(t *testing.T) {
	Convey("Given a service scoring mentors by proficiency gap", t, func() {
		svc := newService(service.WithScorer("proficiency", 0, 0), service.WithThreshold(80))
		mentor, near, far := connect(svc), connect(svc), connect(svc)

		learner := func(id string, level int) model.ProfileSnapshot {
			return model.ProfileSnapshot{
				ParticipantID: id,
				Learns:        model.NewSkillSet("guitar"),
				Proficiency:   model.NewLevels(map[string]int{"guitar": level}),
			}
		}
		mentor.join(model.ProfileSnapshot{
			ParticipantID: "mia",
			Teaches:       model.NewSkillSet("guitar"),
			Proficiency:   model.NewLevels(map[string]int{"guitar": 7}),
			Experience:    model.NewLevels(map[string]int{"guitar": 3}),
		})
		drain(mentor.conn)

		Convey("When a learner one level behind joins", func() {
			near.join(learner("noa", 6))

			Convey("Then the pairing ranks below the threshold and nobody is matched", func() {
				fs := drain(near.conn)
				So(types(fs), ShouldResemble, []string{"notification", "matchUpdate"})
				So(fs[1].candidates()[0].UserID, ShouldEqual, "mia")
				So(fs[1].candidates()[0].Score, ShouldAlmostEqual, 95.0/130*100, 1e-9)
				So(svc.QueueIDs(), ShouldResemble, []string{"mia", "noa"})
			})

			Convey("Then a learner three levels behind is matched with the mentor", func() {
				far.join(learner("fay", 4))

				s := drain(far.conn)
				So(types(s), ShouldResemble, []string{"notification", "matched"})
				So(s[1].session().B.ID, ShouldEqual, "mia")
				So(s[1].session().B.Proficiency, ShouldResemble, map[string]int{"guitar": 7})
				So(svc.QueueIDs(), ShouldResemble, []string{"noa"})
			})
		})

		Convey("When a learner who already outranks the mentor joins", func() {
			near.join(learner("ivy", 9))

			Convey("Then the pairing scores zero", func() {
				fs := drain(near.conn)
				So(fs[1].candidates()[0].Score, ShouldEqual, 0.0)
				So(svc.QueueIDs(), ShouldResemble, []string{"mia", "ivy"})
			})
		})
	})
}

func TestService_UpdateDoesNotAutoMatch(t *testing.T) {
	Convey("Given two queued participants with nothing in common", t, func() {
		svc := newService()
		alice := connect(svc)
		bob := connect(svc)
		alice.join(profile("alice", []string{"go"}, nil))
		bob.join(profile("bob", []string{"rust"}, nil))
		drain(alice.conn)
		drain(bob.conn)

		Convey("When bob updates to a shared skill", func() {
			bob.update(profile("bob", []string{"go"}, nil))

			Convey("Then bob's ranking reflects the new skill without a match", func() {
				fs := drain(bob.conn)
				So(types(fs), ShouldResemble, []string{"matchUpdate"})
				So(fs[0].candidates()[0].Score, ShouldEqual, 2.0)
				So(svc.QueueIDs(), ShouldResemble, []string{"alice", "bob"})
			})

			Convey("Then a manual match request commits the pair", func() {
				bob.simple(model.CommandManualMatch, "bob")
				fs := drain(bob.conn)
				So(types(fs), ShouldResemble, []string{"matched", "notification"})
				So(fs[1].notice(), ShouldEqual, service.NoticeManualAttempt)
				So(svc.QueueIDs(), ShouldBeEmpty)
			})

			Convey("Then a sweep commits the pair", func() {
				evicted, matched := svc.Sweep(context.Background())
				So(evicted, ShouldEqual, 0)
				So(matched, ShouldEqual, 1)
				So(types(drain(alice.conn)), ShouldResemble, []string{"matched"})
			})
		})
	})
}

func TestService_LeaveAndDisconnect(t *testing.T) {
	Convey("Given a queued participant", t, func() {
		svc := newService()
		alice := connect(svc)
		alice.join(profile("alice", []string{"go"}, nil))
		drain(alice.conn)

		Convey("When they leave twice", func() {
			alice.simple(model.CommandLeave, "alice")
			alice.simple(model.CommandLeave, "alice")

			Convey("Then both leaves are acknowledged and the pool is empty", func() {
				fs := drain(alice.conn)
				So(len(fs), ShouldEqual, 2)
				So(fs[0].notice(), ShouldEqual, service.NoticeLeft)
				So(svc.QueueIDs(), ShouldBeEmpty)
			})
		})

		Convey("When they ask for a manual match after leaving", func() {
			alice.simple(model.CommandLeave, "alice")
			drain(alice.conn)
			alice.simple(model.CommandManualMatch, "alice")

			Convey("Then they are told to join first", func() {
				fs := drain(alice.conn)
				So(fs[0].notice(), ShouldEqual, service.NoticeNotQueued)
			})
		})

		Convey("When their connection drops", func() {
			alice.simple(model.CommandDisconnect, "alice")

			Convey("Then they leave the pool", func() {
				So(svc.QueueIDs(), ShouldBeEmpty)
			})
		})

		Convey("When a disconnect arrives from an older connection", func() {
			So(svc.Handle(context.Background(), model.Command{
				Kind:             model.CommandDisconnect,
				ConnectionHandle: "conn_old",
				ParticipantID:    "alice",
			}), ShouldBeNil)

			Convey("Then the participant stays queued", func() {
				So(svc.QueueIDs(), ShouldResemble, []string{"alice"})
			})
		})
	})

	Convey("Given a service that keeps participants on disconnect", t, func() {
		svc := newService(service.WithLeaveOnDisconnect(false))
		alice := connect(svc)
		alice.join(profile("alice", []string{"go"}, nil))
		alice.simple(model.CommandDisconnect, "alice")

		So(svc.QueueIDs(), ShouldResemble, []string{"alice"})
	})
}

func TestService_SweepEviction(t *testing.T) {
	Convey("Given a service with a queue TTL", t, func() {
		now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
		clock := func() time.Time { return now }
		svc := newService(service.WithClock(clock), service.WithSweep(time.Minute, 10*time.Minute))
		alice := connect(svc)
		bob := connect(svc)

		alice.join(profile("alice", []string{"go"}, nil))
		now = now.Add(8 * time.Minute)
		bob.join(profile("bob", []string{"rust"}, nil))
		drain(alice.conn)
		drain(bob.conn)

		Convey("When the sweep runs after alice expired", func() {
			now = now.Add(5 * time.Minute)
			evicted, matched := svc.Sweep(context.Background())

			Convey("Then only alice is evicted and told why", func() {
				So(evicted, ShouldEqual, 1)
				So(matched, ShouldEqual, 0)
				fs := drain(alice.conn)
				So(fs[0].notice(), ShouldEqual, service.NoticeExpired)
				So(svc.QueueIDs(), ShouldResemble, []string{"bob"})
			})
		})
	})
}

func TestService_PairCohorts(t *testing.T) {
	Convey("Given youth and elders queued under a high threshold", t, func() {
		svc := newService(service.WithThreshold(100))
		y := connect(svc)
		e := connect(svc)
		yp := profile("y1", []string{"stories"}, []string{"mornings"})
		yp.Cohort = "youth"
		ep := profile("e1", []string{"stories"}, []string{"mornings"})
		ep.Cohort = "elder"
		y.join(yp)
		e.join(ep)
		drain(y.conn)
		drain(e.conn)

		Convey("When the cohorts are paired", func() {
			sessions, err := svc.PairCohorts(context.Background(), "youth", "elder")

			Convey("Then the pair is committed and both are notified", func() {
				So(err, ShouldBeNil)
				So(len(sessions), ShouldEqual, 1)
				So(types(drain(y.conn)), ShouldResemble, []string{"matched"})
				So(types(drain(e.conn)), ShouldResemble, []string{"matched"})

				recent, err := svc.RecentSessions(context.Background(), 10)
				So(err, ShouldBeNil)
				So(len(recent), ShouldEqual, 1)
			})
		})

		Convey("When a cohort name is empty", func() {
			_, err := svc.PairCohorts(context.Background(), "", "elder")
			So(errors.Is(err, matching.ErrInvalidCohort), ShouldBeTrue)
		})
	})
}

func TestService_UnknownCommand(t *testing.T) {
	Convey("Given a command with no handler", t, func() {
		svc := newService()
		err := svc.Handle(context.Background(), model.Command{Kind: "dance", ParticipantID: "a"})
		So(errors.Is(err, service.ErrUnknownCommand), ShouldBeTrue)
	})
}
