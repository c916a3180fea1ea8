package meetingsapi

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/identifiers"
	"github.com/peer-calls/meetings/client/logger"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type EventType string

const (
	EventTypeParticipantJoined  EventType = "meetingParticipantJoined"
	EventTypeParticipantLeft    EventType = "meetingParticipantLeft"
	EventTypeMediaStreamChanged EventType = "meetingMediaStreamChanged"
	EventTypeAudioStreamChanged EventType = "meetingAudioStreamChanged"
	EventTypeAudioAnswered      EventType = "meetingAudioAnswered"
	EventTypeSDPAnswered        EventType = "meetingSdpAnswered"
	EventTypeSDPOffered         EventType = "meetingSdpOffered"
	EventTypeStreamsMapped      EventType = "meetingStreamsMapped"
	EventTypeParticipantTalking EventType = "meetingParticipantTalking"
)

// Event is a backend event. Which fields are set depends on Type.
type Event struct {
	Type      EventType             `json:"type"`
	MeetingID identifiers.MeetingID `json:"meetingId"`

	// Participant is set for meetingParticipantJoined.
	Participant *Participant `json:"participant,omitempty"`

	// UserID is set for participant left, stream changed and talking events.
	UserID identifiers.UserID `json:"userId,omitempty"`

	// StreamType and Enabled are set for meetingMediaStreamChanged. Enabled
	// is also set for meetingAudioStreamChanged.
	StreamType identifiers.StreamType `json:"mediaType,omitempty"`
	Enabled    bool                   `json:"enabled"`

	// SDP is set for answers and offers. StreamType tells which outbound
	// connection a meetingSdpAnswered belongs to.
	SDP string `json:"sdp,omitempty"`

	// Streams is set for meetingStreamsMapped.
	Streams []StreamMapping `json:"streams,omitempty"`

	// IsTalking is set for meetingParticipantTalking.
	IsTalking bool `json:"isTalking"`
}

// Events reads backend events from a websocket.
type Events struct {
	log  logger.Logger
	conn *websocket.Conn

	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// Events opens the event stream of the backend.
func (c *Client) Events(ctx context.Context) (*Events, error) {
	u := *c.baseURL
	u.Scheme = "ws" + strings.TrimPrefix(u.Scheme, "http")

	header := http.Header{}

	if c.authToken != "" {
		header.Set("Authorization", "Bearer "+c.authToken)
	}

	wsURL := joinURL(u, "events")

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: c.httpClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, errors.Annotatef(err, "dial events: %s", wsURL)
	}

	c.log.Info("Connected to events", logger.Ctx{
		"url": wsURL,
	})

	return &Events{
		log:  c.log.WithNamespaceAppended("events"),
		conn: conn,
	}, nil
}

// Next blocks until the next event arrives.
func (e *Events) Next(ctx context.Context) (Event, error) {
	var event Event

	if err := wsjson.Read(ctx, e.conn, &event); err != nil {
		return Event{}, errors.Annotate(err, "read event")
	}

	return event, nil
}

// Subscribe reads events until ctx is done or reading fails. The channel is
// closed afterwards and Err returns the reason.
func (e *Events) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event)

	go func() {
		defer close(ch)

		for {
			event, err := e.Next(ctx)
			if err != nil {
				e.errMu.Lock()
				e.err = err
				e.errMu.Unlock()

				return
			}

			e.log.Debug("Event", logger.Ctx{
				"type":       event.Type,
				"meeting_id": event.MeetingID,
			})

			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

func (e *Events) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()

	return e.err
}

func (e *Events) Close() error {
	var err error

	e.closeOnce.Do(func() {
		err = e.conn.Close(websocket.StatusNormalClosure, "")
	})

	return errors.Trace(err)
}
