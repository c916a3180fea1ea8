package test

import (
	"context"
	"sync"

	"github.com/peer-calls/meetings/client/identifiers"
	"github.com/peer-calls/meetings/client/meetingsapi"
)

// BackendCall records a call to Backend.
type BackendCall struct {
	Method         string
	MeetingID      identifiers.MeetingID
	StreamType     identifiers.StreamType
	Enabled        bool
	SDP            string
	Subscribe      []identifiers.Subscription
	Unsubscribe    []identifiers.Subscription
	UserToModerate identifiers.UserID
}

// Backend is a fake meetingsapi.Backend. SubscribeToMedia confirms the
// requested changes unless SubscribeFunc is set.
type Backend struct {
	mu    sync.Mutex
	calls []BackendCall
	errs  map[string]error

	subscribed map[identifiers.MeetingID]map[identifiers.SubscriptionKey]identifiers.Subscription

	JoinResponse  meetingsapi.JoinResponse
	SubscribeFunc func(call BackendCall) ([]identifiers.Subscription, error)
}

var _ meetingsapi.Backend = &Backend{}

func NewBackend() *Backend {
	return &Backend{
		errs:       map[string]error{},
		subscribed: map[identifiers.MeetingID]map[identifiers.SubscriptionKey]identifiers.Subscription{},
	}
}

// SetError makes calls to method fail with err.
func (b *Backend) SetError(method string, err error) {
	b.mu.Lock()
	b.errs[method] = err
	b.mu.Unlock()
}

func (b *Backend) record(call BackendCall) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, call)

	return b.errs[call.Method]
}

// Calls returns the recorded calls, optionally only those of method.
func (b *Backend) Calls(method string) []BackendCall {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ret []BackendCall

	for _, call := range b.calls {
		if method == "" || call.Method == method {
			ret = append(ret, call)
		}
	}

	return ret
}

func (b *Backend) JoinMeeting(
	ctx context.Context, meetingID identifiers.MeetingID, req meetingsapi.JoinRequest,
) (meetingsapi.JoinResponse, error) {
	err := b.record(BackendCall{
		Method:    "JoinMeeting",
		MeetingID: meetingID,
	})

	return b.JoinResponse, err
}

func (b *Backend) LeaveMeeting(ctx context.Context, meetingID identifiers.MeetingID) error {
	return b.record(BackendCall{
		Method:    "LeaveMeeting",
		MeetingID: meetingID,
	})
}

func (b *Backend) CreateAudioOffer(ctx context.Context, meetingID identifiers.MeetingID, sdp string) error {
	return b.record(BackendCall{
		Method:    "CreateAudioOffer",
		MeetingID: meetingID,
		SDP:       sdp,
	})
}

func (b *Backend) UpdateMediaOffer(
	ctx context.Context,
	meetingID identifiers.MeetingID,
	streamType identifiers.StreamType,
	enabled bool,
	sdp string,
) error {
	return b.record(BackendCall{
		Method:     "UpdateMediaOffer",
		MeetingID:  meetingID,
		StreamType: streamType,
		Enabled:    enabled,
		SDP:        sdp,
	})
}

func (b *Backend) CreateMediaAnswer(ctx context.Context, meetingID identifiers.MeetingID, sdp string) error {
	return b.record(BackendCall{
		Method:    "CreateMediaAnswer",
		MeetingID: meetingID,
		SDP:       sdp,
	})
}

func (b *Backend) SubscribeToMedia(
	ctx context.Context,
	meetingID identifiers.MeetingID,
	subscribe []identifiers.Subscription,
	unsubscribe []identifiers.Subscription,
) ([]identifiers.Subscription, error) {
	call := BackendCall{
		Method:      "SubscribeToMedia",
		MeetingID:   meetingID,
		Subscribe:   subscribe,
		Unsubscribe: unsubscribe,
	}

	if err := b.record(call); err != nil {
		return nil, err
	}

	if b.SubscribeFunc != nil {
		return b.SubscribeFunc(call)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribed[meetingID]
	if !ok {
		subs = map[identifiers.SubscriptionKey]identifiers.Subscription{}
		b.subscribed[meetingID] = subs
	}

	for _, sub := range unsubscribe {
		delete(subs, sub.Key())
	}

	for _, sub := range subscribe {
		subs[sub.Key()] = sub
	}

	ret := make([]identifiers.Subscription, 0, len(subs))

	for _, sub := range subs {
		ret = append(ret, sub)
	}

	return ret, nil
}

func (b *Backend) UpdateAudioStreamStatus(
	ctx context.Context,
	meetingID identifiers.MeetingID,
	enabled bool,
	userToModerate identifiers.UserID,
) error {
	return b.record(BackendCall{
		Method:         "UpdateAudioStreamStatus",
		MeetingID:      meetingID,
		Enabled:        enabled,
		UserToModerate: userToModerate,
	})
}
