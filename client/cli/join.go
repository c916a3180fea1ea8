package cli

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client"
	"github.com/peer-calls/meetings/client/clock"
	"github.com/peer-calls/meetings/client/codecs"
	"github.com/peer-calls/meetings/client/command"
	"github.com/peer-calls/meetings/client/devices"
	"github.com/peer-calls/meetings/client/identifiers"
	"github.com/peer-calls/meetings/client/logger"
	"github.com/peer-calls/meetings/client/meetingsapi"
	"github.com/peer-calls/meetings/client/multierr"
	"github.com/peer-calls/meetings/client/store"
	"github.com/spf13/pflag"
)

const leaveTimeout = 5 * time.Second

var ErrMissingMeetingID = errors.New("missing meeting id")

type joinHandler struct {
	args struct {
		config      string
		meetingID   string
		audioDevice string
		videoDevice string
		noAudio     bool
		noVideo     bool
		screen      bool
	}

	log   logger.Logger
	props Props
}

func (h *joinHandler) RegisterFlags(c *command.Command, flags *pflag.FlagSet) {
	flags.StringVarP(&h.args.config, "config", "c", "", "config file to use")
	flags.StringVarP(&h.args.meetingID, "meeting-id", "m", "", "id of the meeting to join")
	flags.StringVar(&h.args.audioDevice, "audio-device", "", "id of the microphone, defaults to the first one")
	flags.StringVar(&h.args.videoDevice, "video-device", "", "id of the camera, defaults to the first one")
	flags.BoolVar(&h.args.noAudio, "no-audio", false, "join with the microphone muted")
	flags.BoolVar(&h.args.noVideo, "no-video", false, "join with the camera off")
	flags.BoolVar(&h.args.screen, "screen", false, "share the screen after joining")
}

type joinSession struct {
	log       logger.Logger
	config    client.Config
	backend   *meetingsapi.Client
	store     *store.Store
	drainer   *drainer
	meetingID identifiers.MeetingID
}

func (h *joinHandler) Handle(ctx context.Context, args []string) error {
	meetingID := h.args.meetingID
	if meetingID == "" && len(args) > 0 {
		meetingID = args[0]
	}

	if meetingID == "" {
		return errors.Trace(ErrMissingMeetingID)
	}

	cfg, err := readConfig(h.args.config)
	if err != nil {
		return errors.Trace(err)
	}

	s, err := h.newSession(cfg, identifiers.MeetingID(meetingID))
	if err != nil {
		return errors.Trace(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	defer wg.Wait()

	if cfg.Metrics.BindAddr != "" {
		listener, err := net.Listen("tcp", cfg.Metrics.BindAddr)
		if err != nil {
			return errors.Annotatef(err, "listen metrics: %q", cfg.Metrics.BindAddr)
		}

		wg.Add(1)

		go func() {
			defer wg.Done()

			if err := serveMetrics(ctx, h.log, listener, cfg.Metrics.AccessToken); err != nil {
				h.log.Error("Serve metrics", errors.Trace(err), nil)
			}
		}()
	}

	return errors.Trace(s.run(ctx, joinOptions{
		audioEnabled:  !h.args.noAudio,
		audioDeviceID: h.args.audioDevice,
		videoEnabled:  !h.args.noVideo,
		videoDeviceID: h.args.videoDevice,
		screenEnabled: h.args.screen,
	}))
}

func (h *joinHandler) newSession(cfg client.Config, meetingID identifiers.MeetingID) (*joinSession, error) {
	log := h.log.WithCtx(logger.Ctx{
		"meeting_id": meetingID,
	})

	backend, err := meetingsapi.NewClient(meetingsapi.ClientParams{
		Log:       log,
		BaseURL:   cfg.BackendURL,
		AuthToken: cfg.AuthToken,
	})
	if err != nil {
		return nil, errors.Annotate(err, "new backend client")
	}

	clk := clock.New()
	registry := codecs.NewRegistryDefault()

	pcConfig, err := client.NewPeerConnectionConfig(cfg, clk)
	if err != nil {
		return nil, errors.Trace(err)
	}

	factory, err := client.NewPeerConnectionFactory(client.PeerConnectionFactoryParams{
		Log:      log,
		Config:   pcConfig,
		Network:  cfg.Network,
		Registry: registry,
	})
	if err != nil {
		return nil, errors.Annotate(err, "new peer connection factory")
	}

	st := store.New(store.Params{
		Log:     log,
		Backend: backend,
		Devices: devices.NewRTPDevices(devices.RTPDevicesParams{
			Log:      log,
			Registry: registry,
			Devices:  cfg.Devices,
		}),
		PeerConnections: factory,
		Correlation:     cfg.Inbound.Correlation,
		NewSilence: func() (devices.LocalTrack, error) {
			track, err := devices.NewSilenceTrack(devices.SilenceTrackParams{
				Log:      log,
				Clock:    clk,
				Registry: registry,
			})
			if err != nil {
				return nil, errors.Trace(err)
			}

			return track, nil
		},
	})

	return &joinSession{
		log:       log,
		config:    cfg,
		backend:   backend,
		store:     st,
		drainer:   newDrainer(log),
		meetingID: meetingID,
	}, nil
}

type joinOptions struct {
	audioEnabled  bool
	audioDeviceID string
	videoEnabled  bool
	videoDeviceID string
	screenEnabled bool
}

// run joins the meeting and handles backend events until ctx is done or the
// event stream ends. The meeting is always left afterwards.
func (s *joinSession) run(ctx context.Context, opts joinOptions) (err error) {
	events, err := s.backend.Events(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	defer func() {
		if err := events.Close(); err != nil {
			s.log.Warn("Close events", logger.Ctx{
				"reason": err.Error(),
			})
		}
	}()

	res, err := s.backend.JoinMeeting(ctx, s.meetingID, meetingsapi.JoinRequest{
		AudioStreamEnabled: opts.audioEnabled,
		VideoStreamEnabled: opts.videoEnabled,
	})
	if err != nil {
		return errors.Annotate(err, "join meeting")
	}

	s.log.Info("Joined meeting", logger.Ctx{
		"user_id":      res.UserID,
		"participants": len(res.Participants),
	})

	s.store.OnChange(s.handleChange)

	defer func() {
		var errs multierr.MultiErr

		errs.Add(err)
		errs.Add(s.leave())

		err = errs.Err()
	}()

	err = s.store.Connect(ctx, store.ConnectParams{
		MeetingID:     s.meetingID,
		UserID:        res.UserID,
		AudioEnabled:  opts.audioEnabled,
		AudioDeviceID: opts.audioDeviceID,
		VideoEnabled:  opts.videoEnabled,
		VideoDeviceID: opts.videoDeviceID,
	})
	if err != nil {
		return errors.Annotate(err, "connect")
	}

	if err := s.store.SetParticipants(ctx, s.meetingID, res.Participants); err != nil {
		// The subscriptions are retried on the next roster change.
		s.log.Error("Set participants", errors.Trace(err), nil)
	}

	if opts.screenEnabled {
		if err := s.store.StartScreenShare(ctx, s.meetingID); err != nil {
			s.log.Error("Start screen share", errors.Trace(err), nil)
		}
	}

	for event := range events.Subscribe(ctx) {
		if err := s.store.HandleEvent(ctx, event); err != nil {
			s.log.Error("Handle event", errors.Trace(err), logger.Ctx{
				"type": event.Type,
			})
		}
	}

	if ctx.Err() != nil {
		return nil
	}

	return errors.Annotate(events.Err(), "events")
}

func (s *joinSession) leave() error {
	var errs multierr.MultiErr

	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()

	errs.Add(errors.Annotate(s.backend.LeaveMeeting(ctx, s.meetingID), "leave meeting"))
	errs.Add(errors.Annotate(s.store.DisconnectAll(), "disconnect"))

	s.drainer.Wait()

	s.log.Info("Left meeting", nil)

	return errors.Trace(errs.Err())
}

func (s *joinSession) handleChange(meetingID identifiers.MeetingID) {
	for _, stream := range s.store.StreamsSubscriptionMap(meetingID) {
		s.drainer.Add(stream)
	}

	if connections, ok := s.store.Connections(meetingID); ok && connections.Audio != nil {
		if stream, ok := connections.Audio.RemoteStream(); ok {
			s.drainer.Add(stream)
		}
	}

	if s.log.IsLevelEnabled(logger.LevelDebug) {
		tiles := s.store.Tiles(meetingID)
		keys := make([]identifiers.SubscriptionKey, len(tiles))

		for i, tile := range tiles {
			keys[i] = tile.Key
		}

		s.log.Debug("Layout", logger.Ctx{
			"tiles": keys,
		})
	}
}

func newJoinCmd(props Props) *command.Command {
	h := &joinHandler{
		log:   props.Log,
		props: props,
	}

	return command.New(command.Params{
		Name:         "join",
		Desc:         "Joins a meeting (default)",
		FlagRegistry: h,
		Handler:      h,
	})
}
