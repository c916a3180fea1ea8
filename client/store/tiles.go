package store

import (
	"sort"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/identifiers"
	"github.com/peer-calls/meetings/client/peer"
)

// Tile is one participant's camera or screen share.
type Tile struct {
	Key     identifiers.SubscriptionKey
	UserID  identifiers.UserID
	Type    identifiers.StreamType
	Pinned  bool
	Talking bool
	// Stream is nil until the remote stream is complete, and always nil for
	// the local user.
	Stream *peer.RemoteStream

	order int
}

const (
	rankPinned = iota
	rankScreen
	rankTalking
	rankOther
)

func (t Tile) rank() int {
	switch {
	case t.Pinned:
		return rankPinned
	case t.Type == identifiers.StreamTypeScreen:
		return rankScreen
	case t.Talking:
		return rankTalking
	default:
		return rankOther
	}
}

// Tiles returns the tiles of a meeting: the pinned tile first, then screen
// shares, then talking participants, then everyone else. Each group is in
// join order.
func (s *Store) Tiles(meetingID identifiers.MeetingID) []Tile {
	m, err := s.meeting(meetingID)
	if err != nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tiles := make([]Tile, 0, len(m.participants))

	add := func(p *participant, streamType identifiers.StreamType) {
		key := identifiers.NewSubscriptionKey(p.UserID, streamType)

		tile := Tile{
			Key:     key,
			UserID:  p.UserID,
			Type:    streamType,
			Pinned:  key == m.pinned,
			Talking: p.talking,
			order:   p.order,
		}

		if stream, ok := m.streams[key]; ok {
			tile.Stream = &stream
		}

		tiles = append(tiles, tile)
	}

	for _, p := range m.participants {
		add(p, identifiers.StreamTypeVideo)

		if p.ScreenStreamEnabled {
			add(p, identifiers.StreamTypeScreen)
		}
	}

	sort.Slice(tiles, func(i, j int) bool {
		a, b := tiles[i], tiles[j]

		if ra, rb := a.rank(), b.rank(); ra != rb {
			return ra < rb
		}

		if a.order != b.order {
			return a.order < b.order
		}

		return a.Type < b.Type
	})

	return tiles
}

// PinTile pins the tile with key. Only one tile is pinned at a time.
func (s *Store) PinTile(meetingID identifiers.MeetingID, key identifiers.SubscriptionKey) error {
	m, err := s.meeting(meetingID)
	if err != nil {
		return errors.Trace(err)
	}

	sub, err := identifiers.ParseSubscriptionKey(string(key))
	if err != nil {
		return errors.Trace(err)
	}

	m.mu.Lock()

	p, ok := m.participants[sub.UserID]
	if !ok || sub.Type == identifiers.StreamTypeAudio ||
		(sub.Type == identifiers.StreamTypeScreen && !p.ScreenStreamEnabled) {
		m.mu.Unlock()

		return errors.Annotatef(ErrUnknownTile, "tile: %s", key)
	}

	m.pinned = key

	m.mu.Unlock()

	s.notify(meetingID)

	return nil
}

func (s *Store) UnpinTile(meetingID identifiers.MeetingID) error {
	m, err := s.meeting(meetingID)
	if err != nil {
		return errors.Trace(err)
	}

	m.mu.Lock()
	m.pinned = ""
	m.mu.Unlock()

	s.notify(meetingID)

	return nil
}

// SetTalking updates the talking indicator of a participant.
func (s *Store) SetTalking(meetingID identifiers.MeetingID, userID identifiers.UserID, talking bool) error {
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

	changed := p.talking != talking
	p.talking = talking

	m.mu.Unlock()

	if changed {
		s.notify(meetingID)
	}

	return nil
}
