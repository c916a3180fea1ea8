package store

import (
	"context"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/identifiers"
	"github.com/peer-calls/meetings/client/logger"
	"github.com/peer-calls/meetings/client/meetingsapi"
	"github.com/peer-calls/meetings/client/peer"
)

// HandleEvent routes a backend event to the meeting and connection it
// belongs to.
func (s *Store) HandleEvent(ctx context.Context, event meetingsapi.Event) error {
	m, err := s.meeting(event.MeetingID)
	if err != nil {
		return errors.Trace(err)
	}

	s.log.Trace("Event", logger.Ctx{
		"meeting_id": event.MeetingID,
		"type":       event.Type,
	})

	switch event.Type {
	case meetingsapi.EventTypeParticipantJoined:
		if event.Participant == nil {
			return errors.Errorf("%s without participant", event.Type)
		}

		return errors.Trace(s.AddParticipant(ctx, event.MeetingID, *event.Participant))
	case meetingsapi.EventTypeParticipantLeft:
		return errors.Trace(s.RemoveParticipant(ctx, event.MeetingID, event.UserID))
	case meetingsapi.EventTypeMediaStreamChanged:
		return errors.Trace(s.UpdateParticipantStream(
			ctx, event.MeetingID, event.UserID, event.StreamType, event.Enabled,
		))
	case meetingsapi.EventTypeAudioStreamChanged:
		return errors.Trace(s.handleAudioStreamChanged(ctx, m, event))
	case meetingsapi.EventTypeAudioAnswered:
		return errors.Trace(m.getConnections().Audio.HandleRemoteAnswer(event.SDP))
	case meetingsapi.EventTypeSDPAnswered:
		return errors.Trace(s.handleSDPAnswered(m, event))
	case meetingsapi.EventTypeSDPOffered:
		return errors.Trace(m.getConnections().Inbound.HandleRemoteOffer(ctx, event.SDP))
	case meetingsapi.EventTypeStreamsMapped:
		m.getConnections().Inbound.UpdateStreamsMapping(streamMappings(event.Streams))

		return nil
	case meetingsapi.EventTypeParticipantTalking:
		return errors.Trace(s.SetTalking(event.MeetingID, event.UserID, event.IsTalking))
	default:
		s.log.Debug("Ignoring event", logger.Ctx{
			"meeting_id": event.MeetingID,
			"type":       event.Type,
		})

		return nil
	}
}

// handleAudioStreamChanged updates the roster. When the local user was
// moderated, the local audio follows.
func (s *Store) handleAudioStreamChanged(ctx context.Context, m *meeting, event meetingsapi.Event) error {
	err := s.UpdateParticipantStream(ctx, m.id, event.UserID, identifiers.StreamTypeAudio, event.Enabled)
	if err != nil && event.UserID != m.userID {
		return errors.Trace(err)
	}

	if event.UserID != m.userID {
		return nil
	}

	return errors.Trace(s.setLocalAudio(m, event.Enabled))
}

func (s *Store) handleSDPAnswered(m *meeting, event meetingsapi.Event) error {
	connections := m.getConnections()

	switch event.StreamType {
	case identifiers.StreamTypeVideo:
		return errors.Trace(connections.VideoOut.HandleRemoteAnswer(event.SDP))
	case identifiers.StreamTypeScreen:
		return errors.Trace(connections.ScreenOut.HandleRemoteAnswer(event.SDP))
	case identifiers.StreamTypeAudio:
		return errors.Trace(connections.Audio.HandleRemoteAnswer(event.SDP))
	default:
		return errors.Annotatef(identifiers.ErrInvalidStreamType, "answer for %q", event.StreamType)
	}
}

func streamMappings(streams []meetingsapi.StreamMapping) []peer.StreamMapping {
	ret := make([]peer.StreamMapping, 0, len(streams))

	for _, stream := range streams {
		ret = append(ret, peer.StreamMapping{
			UserID: stream.UserID,
			Type:   stream.Type,
			Mid:    stream.Mid,
		})
	}

	return ret
}
