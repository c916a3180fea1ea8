package store

import (
	"context"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/identifiers"
	"github.com/peer-calls/meetings/client/logger"
	"github.com/peer-calls/meetings/client/meetingsapi"
	"github.com/peer-calls/meetings/client/subscription"
)

// SetParticipants replaces the roster and recomputes the potential
// subscriptions.
func (s *Store) SetParticipants(
	ctx context.Context,
	meetingID identifiers.MeetingID,
	participants []meetingsapi.Participant,
) error {
	m, err := s.meeting(meetingID)
	if err != nil {
		return errors.Trace(err)
	}

	m.mu.Lock()
	m.setParticipants(participants)
	m.manager.RecomputePotential(m.subscriptionParticipants())
	m.mu.Unlock()

	s.notify(meetingID)

	return errors.Trace(s.updateSubscriptions(ctx, m))
}

// AddParticipant adds or replaces one participant.
func (s *Store) AddParticipant(
	ctx context.Context,
	meetingID identifiers.MeetingID,
	p meetingsapi.Participant,
) error {
	m, err := s.meeting(meetingID)
	if err != nil {
		return errors.Trace(err)
	}

	m.mu.Lock()

	if prev, ok := m.participants[p.UserID]; ok {
		prev.Participant = p
	} else {
		m.participants[p.UserID] = m.newParticipant(p)
	}

	if p.UserID != m.userID {
		updatePotential(m.manager, p.UserID, identifiers.StreamTypeVideo, p.VideoStreamEnabled)
		updatePotential(m.manager, p.UserID, identifiers.StreamTypeScreen, p.ScreenStreamEnabled)
	}

	m.mu.Unlock()

	s.log.Info("Participant joined", logger.Ctx{
		"meeting_id": meetingID,
		"user_id":    p.UserID,
	})

	s.notify(meetingID)

	return errors.Trace(s.updateSubscriptions(ctx, m))
}

// RemoveParticipant removes the participant with all of its streams.
func (s *Store) RemoveParticipant(
	ctx context.Context,
	meetingID identifiers.MeetingID,
	userID identifiers.UserID,
) error {
	m, err := s.meeting(meetingID)
	if err != nil {
		return errors.Trace(err)
	}

	m.mu.Lock()

	delete(m.participants, userID)
	m.manager.RemoveParticipant(userID)

	if m.pinnedUser() == userID {
		m.pinned = ""
	}

	inbound := m.connections.Inbound

	m.mu.Unlock()

	inbound.RemoveParticipant(userID)

	s.log.Info("Participant left", logger.Ctx{
		"meeting_id": meetingID,
		"user_id":    userID,
	})

	s.notify(meetingID)

	return errors.Trace(s.updateSubscriptions(ctx, m))
}

// UpdateParticipantStream changes one stream flag of a participant.
func (s *Store) UpdateParticipantStream(
	ctx context.Context,
	meetingID identifiers.MeetingID,
	userID identifiers.UserID,
	streamType identifiers.StreamType,
	enabled bool,
) error {
	m, err := s.meeting(meetingID)
	if err != nil {
		return errors.Trace(err)
	}

	m.mu.Lock()

	p, ok := m.participants[userID]
	if !ok {
		m.mu.Unlock()

		return errors.Annotatef(ErrUnknownUser, "user: %s", userID)
	}

	switch streamType {
	case identifiers.StreamTypeAudio:
		p.AudioStreamEnabled = enabled
	case identifiers.StreamTypeVideo:
		p.VideoStreamEnabled = enabled
	case identifiers.StreamTypeScreen:
		p.ScreenStreamEnabled = enabled

		if !enabled && m.pinned == identifiers.NewSubscriptionKey(userID, streamType) {
			m.pinned = ""
		}
	}

	if userID != m.userID {
		updatePotential(m.manager, userID, streamType, enabled)
	}

	inbound := m.connections.Inbound

	m.mu.Unlock()

	if !enabled && streamType != identifiers.StreamTypeAudio && inbound != nil {
		inbound.RemoveStream(userID, streamType)
	}

	s.notify(meetingID)

	if streamType == identifiers.StreamTypeAudio {
		return nil
	}

	return errors.Trace(s.updateSubscriptions(ctx, m))
}

func updatePotential(
	manager *subscription.Manager,
	userID identifiers.UserID,
	streamType identifiers.StreamType,
	enabled bool,
) {
	if enabled {
		manager.AddPotential(userID, streamType)
	} else {
		manager.RemovePotential(userID, streamType)
	}
}

// UpdateSubscriptions asks the backend to deliver the potential
// subscriptions of a meeting. While a request is in flight the desired set
// is queued and sent after it completes; only the latest queued set is
// sent.
func (s *Store) UpdateSubscriptions(ctx context.Context, meetingID identifiers.MeetingID) error {
	m, err := s.meeting(meetingID)
	if err != nil {
		return errors.Trace(err)
	}

	return errors.Trace(s.updateSubscriptions(ctx, m))
}

func (s *Store) updateSubscriptions(ctx context.Context, m *meeting) error {
	m.subscribeMu.Lock()

	// Read under subscribeMu so a later caller never queues an older set.
	desired := m.manager.Potential()

	if m.pending.CheckAndEnqueue(desired) {
		m.subscribeMu.Unlock()

		prometheusSubscriptionRequestsQueuedTotal.Inc()

		s.log.Debug("Subscription request queued", logger.Ctx{
			"meeting_id": m.id,
		})

		return nil
	}

	m.pending.MarkRequesting()
	m.subscribeMu.Unlock()

	return errors.Trace(s.subscribe(ctx, m, desired))
}

func (s *Store) sendQueued(m *meeting, desired subscription.Set) {
	// Errors are logged by subscribe.
	_ = s.subscribe(m.ctx, m, desired)
}

// subscribe sends the difference between desired and the real
// subscriptions. The real set is only replaced after the backend confirmed
// it. On failure it is left as it was.
func (s *Store) subscribe(ctx context.Context, m *meeting, desired subscription.Set) error {
	defer m.pending.MarkDone()

	delta := m.manager.DeltaFor(desired)
	if delta.IsEmpty() {
		return nil
	}

	log := s.log.WithCtx(logger.Ctx{
		"meeting_id":     m.id,
		"to_subscribe":   len(delta.ToSubscribe),
		"to_unsubscribe": len(delta.ToUnsubscribe),
	})

	prometheusSubscriptionRequestsTotal.Inc()

	confirmed, err := s.backend.SubscribeToMedia(ctx, m.id, delta.ToSubscribe, delta.ToUnsubscribe)
	if err != nil {
		prometheusSubscriptionRequestErrorsTotal.Inc()

		log.Warn("Subscribe to media failed", logger.Ctx{
			"error": err.Error(),
		})

		return errors.Annotate(err, "subscribe to media")
	}

	m.manager.Commit(confirmed)

	log.Info("Subscribed to media", logger.Ctx{
		"confirmed": len(confirmed),
	})

	s.notify(m.id)

	return nil
}
