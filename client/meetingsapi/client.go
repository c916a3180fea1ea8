package meetingsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/identifiers"
	"github.com/peer-calls/meetings/client/logger"
)

var ErrUnexpectedStatus = errors.New("unexpected status")

const maxErrorBodySize = 4096

// Client is the HTTP implementation of Backend.
type Client struct {
	log        logger.Logger
	baseURL    *url.URL
	authToken  string
	httpClient *http.Client
}

var _ Backend = &Client{}

type ClientParams struct {
	Log     logger.Logger
	BaseURL string
	// AuthToken is sent as a bearer token when set.
	AuthToken  string
	HTTPClient *http.Client
}

func NewClient(params ClientParams) (*Client, error) {
	baseURL, err := url.Parse(params.BaseURL)
	if err != nil {
		return nil, errors.Annotatef(err, "parse backend url: %s", params.BaseURL)
	}

	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, errors.Errorf("only http:// or https:// supported, but got: %s", params.BaseURL)
	}

	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		log:        params.Log.WithNamespaceAppended("meetingsapi"),
		baseURL:    baseURL,
		authToken:  params.AuthToken,
		httpClient: httpClient,
	}, nil
}

func joinURL(u url.URL, elems ...string) string {
	u.Path = path.Join(append([]string{"/", u.Path}, elems...)...)

	return u.String()
}

func (c *Client) do(ctx context.Context, method string, urlStr string, body interface{}, result interface{}) error {
	var reqBody io.Reader

	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Annotate(err, "marshal request")
		}

		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
	if err != nil {
		return errors.Annotate(err, "new request")
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	c.log.Trace("Request", logger.Ctx{
		"method": method,
		"url":    urlStr,
	})

	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Annotatef(err, "%s %s", method, urlStr)
	}

	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodySize))

		return errors.Annotatef(ErrUnexpectedStatus, "%s %s: status %d: %s", method, urlStr, res.StatusCode, b)
	}

	if result == nil {
		return nil
	}

	if err := json.NewDecoder(res.Body).Decode(result); err != nil {
		return errors.Annotatef(err, "decode response: %s %s", method, urlStr)
	}

	return nil
}

func (c *Client) meetingURL(meetingID identifiers.MeetingID, elems ...string) string {
	return joinURL(*c.baseURL, append([]string{"meetings", string(meetingID)}, elems...)...)
}

func (c *Client) JoinMeeting(
	ctx context.Context, meetingID identifiers.MeetingID, joinRequest JoinRequest,
) (JoinResponse, error) {
	var res JoinResponse

	err := c.do(ctx, http.MethodPut, c.meetingURL(meetingID, "join"), joinRequest, &res)

	return res, errors.Trace(err)
}

func (c *Client) LeaveMeeting(ctx context.Context, meetingID identifiers.MeetingID) error {
	return errors.Trace(c.do(ctx, http.MethodPut, c.meetingURL(meetingID, "leave"), nil, nil))
}

func (c *Client) CreateAudioOffer(ctx context.Context, meetingID identifiers.MeetingID, sdp string) error {
	req := sdpRequest{SDP: sdp}

	return errors.Trace(c.do(ctx, http.MethodPut, c.meetingURL(meetingID, "audio", "offer"), req, nil))
}

func (c *Client) UpdateMediaOffer(
	ctx context.Context,
	meetingID identifiers.MeetingID,
	streamType identifiers.StreamType,
	enabled bool,
	sdp string,
) error {
	req := mediaRequest{
		Type:    streamType,
		Enabled: enabled,
		SDP:     sdp,
	}

	return errors.Trace(c.do(ctx, http.MethodPut, c.meetingURL(meetingID, "media"), req, nil))
}

func (c *Client) CreateMediaAnswer(ctx context.Context, meetingID identifiers.MeetingID, sdp string) error {
	req := sdpRequest{SDP: sdp}

	return errors.Trace(c.do(ctx, http.MethodPut, c.meetingURL(meetingID, "media", "answer"), req, nil))
}

func (c *Client) SubscribeToMedia(
	ctx context.Context,
	meetingID identifiers.MeetingID,
	subscribe []identifiers.Subscription,
	unsubscribe []identifiers.Subscription,
) ([]identifiers.Subscription, error) {
	req := subscribeRequest{
		Subscribe:   nonNil(subscribe),
		Unsubscribe: nonNil(unsubscribe),
	}

	var res subscribeResponse

	if err := c.do(ctx, http.MethodPut, c.meetingURL(meetingID, "media", "subscribe"), req, &res); err != nil {
		return nil, errors.Trace(err)
	}

	return res.Subscriptions, nil
}

func (c *Client) UpdateAudioStreamStatus(
	ctx context.Context,
	meetingID identifiers.MeetingID,
	enabled bool,
	userToModerate identifiers.UserID,
) error {
	req := audioRequest{
		Enabled:        enabled,
		UserToModerate: userToModerate,
	}

	return errors.Trace(c.do(ctx, http.MethodPut, c.meetingURL(meetingID, "audio"), req, nil))
}

// nonNil makes sure empty lists are sent as [] rather than null.
func nonNil(subs []identifiers.Subscription) []identifiers.Subscription {
	if subs == nil {
		return []identifiers.Subscription{}
	}

	return subs
}
