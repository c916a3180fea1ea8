package store

import (
	"context"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/devices"
	"github.com/peer-calls/meetings/client/identifiers"
)

// StartVideo starts the camera. An empty deviceID uses the selected device.
func (s *Store) StartVideo(ctx context.Context, meetingID identifiers.MeetingID, deviceID string) error {
	m, err := s.meeting(meetingID)
	if err != nil {
		return errors.Trace(err)
	}

	m.mu.Lock()
	if deviceID == "" {
		deviceID = m.selection.VideoDeviceID
	}
	videoOut := m.connections.VideoOut
	m.mu.Unlock()

	if err := videoOut.StartVideo(ctx, deviceID); err != nil {
		return errors.Trace(err)
	}

	m.mu.Lock()
	m.selection.VideoDeviceID = deviceID
	m.selection.VideoEnabled = true
	m.mu.Unlock()

	s.notify(meetingID)

	return nil
}

func (s *Store) StopVideo(ctx context.Context, meetingID identifiers.MeetingID) error {
	m, err := s.meeting(meetingID)
	if err != nil {
		return errors.Trace(err)
	}

	m.mu.Lock()
	m.selection.VideoEnabled = false
	videoOut := m.connections.VideoOut
	m.mu.Unlock()

	err = videoOut.StopVideo(ctx)

	s.notify(meetingID)

	return errors.Trace(err)
}

func (s *Store) StartScreenShare(ctx context.Context, meetingID identifiers.MeetingID) error {
	m, err := s.meeting(meetingID)
	if err != nil {
		return errors.Trace(err)
	}

	screenOut := m.getConnections().ScreenOut

	if err := screenOut.StartScreenShare(ctx); err != nil {
		return errors.Trace(err)
	}

	m.mu.Lock()
	m.selection.ScreenEnabled = true
	m.mu.Unlock()

	s.notify(meetingID)

	return nil
}

func (s *Store) StopScreenShare(ctx context.Context, meetingID identifiers.MeetingID) error {
	m, err := s.meeting(meetingID)
	if err != nil {
		return errors.Trace(err)
	}

	m.mu.Lock()
	m.selection.ScreenEnabled = false
	screenOut := m.connections.ScreenOut
	m.mu.Unlock()

	err = screenOut.StopScreenShare(ctx)

	s.notify(meetingID)

	return errors.Trace(err)
}

// SetAudioEnabled reports the audio status to the backend. When
// userToModerate is empty or the local user, the local microphone is muted
// or unmuted too, and acquired first if needed.
func (s *Store) SetAudioEnabled(
	ctx context.Context,
	meetingID identifiers.MeetingID,
	enabled bool,
	userToModerate identifiers.UserID,
) error {
	m, err := s.meeting(meetingID)
	if err != nil {
		return errors.Trace(err)
	}

	local := userToModerate == "" || userToModerate == m.userID

	if local && enabled {
		if err := s.ensureMicrophone(ctx, m); err != nil {
			return errors.Trace(err)
		}
	}

	if err := s.backend.UpdateAudioStreamStatus(ctx, meetingID, enabled, userToModerate); err != nil {
		return errors.Annotate(err, "update audio stream status")
	}

	if !local {
		return nil
	}

	if err := s.setLocalAudio(m, enabled); err != nil {
		return errors.Trace(err)
	}

	s.notify(meetingID)

	return nil
}

func (s *Store) setLocalAudio(m *meeting, enabled bool) error {
	if err := m.getConnections().Audio.SetMuted(!enabled); err != nil {
		return errors.Trace(err)
	}

	m.mu.Lock()
	m.selection.AudioEnabled = enabled
	m.mu.Unlock()

	return nil
}

func (s *Store) ensureMicrophone(ctx context.Context, m *meeting) error {
	audio := m.getConnections().Audio

	if audio.Microphone() != nil {
		return nil
	}

	m.mu.Lock()
	deviceID := m.selection.AudioDeviceID
	m.mu.Unlock()

	return errors.Trace(s.replaceMicrophone(ctx, audio.UpdateLocalStreamTrack, deviceID))
}

func (s *Store) replaceMicrophone(
	ctx context.Context,
	update func(devices.LocalTrack) error,
	deviceID string,
) error {
	track, err := s.devices.GetUserMedia(ctx, devices.Constraints{
		Kind:     devices.KindAudioInput,
		DeviceID: deviceID,
	})
	if err != nil {
		return errors.Annotate(err, "get microphone")
	}

	if err := update(track); err != nil {
		track.Stop()

		return errors.Trace(err)
	}

	return nil
}

// SelectAudioDevice switches the microphone in place.
func (s *Store) SelectAudioDevice(ctx context.Context, meetingID identifiers.MeetingID, deviceID string) error {
	m, err := s.meeting(meetingID)
	if err != nil {
		return errors.Trace(err)
	}

	audio := m.getConnections().Audio

	if err := s.replaceMicrophone(ctx, audio.UpdateLocalStreamTrack, deviceID); err != nil {
		return errors.Trace(err)
	}

	m.mu.Lock()
	m.selection.AudioDeviceID = deviceID
	m.mu.Unlock()

	s.notify(meetingID)

	return nil
}

// SelectVideoDevice records the camera and switches to it when the video
// is enabled.
func (s *Store) SelectVideoDevice(ctx context.Context, meetingID identifiers.MeetingID, deviceID string) error {
	m, err := s.meeting(meetingID)
	if err != nil {
		return errors.Trace(err)
	}

	m.mu.Lock()
	videoEnabled := m.selection.VideoEnabled
	videoOut := m.connections.VideoOut
	m.mu.Unlock()

	if videoEnabled {
		if err := videoOut.StartVideo(ctx, deviceID); err != nil {
			return errors.Trace(err)
		}
	}

	m.mu.Lock()
	m.selection.VideoDeviceID = deviceID
	m.mu.Unlock()

	s.notify(meetingID)

	return nil
}
