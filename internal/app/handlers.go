package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/pairup/internal/domain/matching"
	"github.com/okian/pairup/internal/domain/model"
	"github.com/okian/pairup/pkg/logger"
	"github.com/okian/pairup/pkg/metrics"
)

// Notices sent to participants.
const (
	NoticeJoined        = "Joined matching queue"
	NoticeLeft          = "Left matching queue"
	NoticeNotQueued     = "You are not in the queue. Join first."
	NoticeManualAttempt = "Manual match attempted"
	NoticeUnavailable   = "One of the users is no longer available."
	NoticeSelfMatch     = "You cannot match with yourself."
	NoticeExpired       = "Removed from queue after inactivity"
)

// ErrUnknownCommand is returned for a command kind with no handler.
var ErrUnknownCommand = errors.New("unknown command")

// Handle executes one inbound command. Commands for the same participant
// arrive here in order.
func (s *Service) Handle(ctx context.Context, c model.Command) error {
	switch c.Kind {
	case model.CommandJoin:
		return s.handleJoin(ctx, c)
	case model.CommandUpdate:
		return s.handleUpdate(ctx, c)
	case model.CommandLeave:
		s.handleLeave(ctx, c)
	case model.CommandManualMatch:
		s.handleManualMatch(ctx, c)
	case model.CommandAccept:
		s.handleAccept(ctx, c)
	case model.CommandDisconnect:
		s.handleDisconnect(ctx, c)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, c.Kind)
	}
	return nil
}

func (s *Service) handleJoin(ctx context.Context, c model.Command) error {
	if !s.enqueue(ctx, c) {
		return nil
	}
	s.hub.PushNotice(ctx, c.ParticipantID, NoticeJoined)
	s.matchRound(ctx, c.ParticipantID, true)
	return nil
}

func (s *Service) handleUpdate(ctx context.Context, c model.Command) error {
	if !s.enqueue(ctx, c) {
		return nil
	}
	s.matchRound(ctx, c.ParticipantID, false)
	return nil
}

// enqueue binds the connection, stores the profile and joins the pool.
func (s *Service) enqueue(ctx context.Context, c model.Command) bool {
	if !c.Profile.Valid() {
		// Profiles without an id are dropped without a reply.
		metrics.RecordErrorByComponent("service", "profile_incomplete")
		s.logger.Debug(ctx, "ignoring profile without id", logger.String("conn", c.ConnectionHandle))
		return false
	}
	profile := c.Profile.Normalize()
	id := profile.ParticipantID

	if c.ConnectionHandle != "" && !s.hub.Bind(id, c.ConnectionHandle) && s.leaveOnDisconnect {
		// The connection closed while the command was queued.
		s.logger.Debug(ctx, "skipping join from closed connection", logger.String("participant", id))
		return false
	}

	if err := s.store.UpsertProfile(ctx, profile); err != nil {
		metrics.RecordErrorByComponent("store", "upsert_profile")
		s.logger.Warn(ctx, "failed to store profile",
			logger.String("participant", id),
			logger.Error(err),
		)
	}

	if _, err := s.pool.Join(ctx, model.QueueEntry{
		Profile:          profile,
		ConnectionHandle: c.ConnectionHandle,
	}); err != nil {
		s.logger.Warn(ctx, "failed to join pool", logger.String("participant", id), logger.Error(err))
		return false
	}
	return true
}

// matchRound ranks the pool for id, optionally auto-matches, and pushes the
// ranking only when the participant is still unmatched.
func (s *Service) matchRound(ctx context.Context, id string, auto bool) {
	ranked := s.engine.ComputeMatches(ctx, id)
	if auto {
		sess, err := s.engine.AutoMatchFrom(ctx, id, ranked, s.engine.Threshold())
		switch {
		case sess != nil:
			s.notifyMatched(ctx, *sess)
			return
		case errors.Is(err, matching.ErrPartnerUnavailable):
			// The chosen partner was taken; push a fresh ranking.
			ranked = s.engine.ComputeMatches(ctx, id)
		case err != nil:
			s.logger.Error(ctx, "auto-match failed", logger.String("participant", id), logger.Error(err))
		}
	}
	if !s.pool.Has(id) {
		return
	}
	s.hub.PushMatchList(ctx, id, s.engine.Limit(ranked))
}

func (s *Service) handleLeave(ctx context.Context, c model.Command) {
	s.pool.Leave(ctx, c.ParticipantID)
	s.noticeSender(ctx, c, NoticeLeft)
}

func (s *Service) handleManualMatch(ctx context.Context, c model.Command) {
	if !s.pool.Has(c.ParticipantID) {
		s.noticeSender(ctx, c, NoticeNotQueued)
		return
	}
	s.matchRound(ctx, c.ParticipantID, true)
	s.noticeSender(ctx, c, NoticeManualAttempt)
}

func (s *Service) handleAccept(ctx context.Context, c model.Command) {
	sess, err := s.engine.Accept(ctx, c.InviterID, c.ParticipantID)
	switch {
	case errors.Is(err, matching.ErrSelfMatch):
		s.noticeSender(ctx, c, NoticeSelfMatch)
	case err != nil:
		s.noticeSender(ctx, c, NoticeUnavailable)
	default:
		s.notifyMatched(ctx, sess)
	}
}

func (s *Service) handleDisconnect(ctx context.Context, c model.Command) {
	if !s.leaveOnDisconnect {
		return
	}
	if e, ok := s.pool.Get(c.ParticipantID); ok && c.ConnectionHandle != "" && e.ConnectionHandle != c.ConnectionHandle {
		// The participant rejoined from another connection.
		return
	}
	if _, ok := s.pool.Leave(ctx, c.ParticipantID); ok {
		s.logger.Debug(ctx, "participant left on disconnect", logger.String("participant", c.ParticipantID))
	}
}

// noticeSender answers on the sending connection, falling back to the
// participant binding.
func (s *Service) noticeSender(ctx context.Context, c model.Command, text string) {
	if c.ConnectionHandle != "" {
		s.hub.NoticeConn(ctx, c.ConnectionHandle, text)
		return
	}
	s.hub.PushNotice(ctx, c.ParticipantID, text)
}

func (s *Service) notifyMatched(ctx context.Context, sess model.Session) {
	s.hub.PushMatched(ctx, sess.ParticipantA.ParticipantID, sess)
	s.hub.PushMatched(ctx, sess.ParticipantB.ParticipantID, sess)
}
