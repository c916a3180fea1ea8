package devices

import (
	"context"
	"net"
	"net/url"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/codecs"
	"github.com/peer-calls/meetings/client/logger"
	"github.com/peer-calls/meetings/client/multierr"
	"github.com/peer-calls/meetings/client/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

const defaultPacketSize = 1200

// Config describes an RTP source that is presented as a device. For
// example, ffmpeg can stream a camera with:
//
//     ffmpeg -f v4l2 -i /dev/video0 \
//       -c:v libvpx -deadline 1 -g 10 -error-resilient 1 -auto-alt-ref 1 \
//       -f rtp 'rtp://127.0.0.1:50000?localrtcpport=50002&pkt_size=1200'
//
// and the device is configured with the same URL.
type Config struct {
	ID       string `yaml:"id"`
	Label    string `yaml:"label"`
	Kind     Kind   `yaml:"kind"`
	URL      string `yaml:"url"`
	MimeType string `yaml:"mime_type"`
	Fmtp     string `yaml:"fmtp"`
}

// RTPDevices treats configured RTP streams as cameras, microphones and
// screens.
type RTPDevices struct {
	log      logger.Logger
	registry *codecs.Registry
	configs  []Config
}

var _ MediaDevices = &RTPDevices{}

type RTPDevicesParams struct {
	Log      logger.Logger
	Registry *codecs.Registry
	Devices  []Config
}

func NewRTPDevices(params RTPDevicesParams) *RTPDevices {
	return &RTPDevices{
		log:      params.Log.WithNamespaceAppended("rtp_devices"),
		registry: params.Registry,
		configs:  params.Devices,
	}
}

func (d *RTPDevices) EnumerateDevices(ctx context.Context) ([]Device, error) {
	ret := make([]Device, len(d.configs))

	for i, c := range d.configs {
		ret[i] = Device{
			ID:    c.ID,
			Label: c.Label,
			Kind:  c.Kind,
		}
	}

	return ret, nil
}

func (d *RTPDevices) find(constraints Constraints) (Config, error) {
	for _, c := range d.configs {
		if c.Kind != constraints.Kind {
			continue
		}

		if constraints.DeviceID == "" || constraints.DeviceID == c.ID {
			return c, nil
		}
	}

	return Config{}, errors.Annotatef(ErrDeviceNotFound, "kind: %s, id: %q", constraints.Kind, constraints.DeviceID)
}

func (d *RTPDevices) GetUserMedia(ctx context.Context, constraints Constraints) (LocalTrack, error) {
	config, err := d.find(constraints)
	if err != nil {
		return nil, errors.Trace(err)
	}

	return d.open(config)
}

func (d *RTPDevices) GetDisplayMedia(ctx context.Context) (LocalTrack, error) {
	config, err := d.find(Constraints{Kind: KindScreen})
	if err != nil {
		return nil, errors.Trace(err)
	}

	return d.open(config)
}

func (d *RTPDevices) open(config Config) (LocalTrack, error) {
	streamURL, err := url.Parse(config.URL)
	if err != nil {
		return nil, errors.Annotatef(err, "parse device url: %s", config.URL)
	}

	if streamURL.Scheme != "rtp" {
		return nil, errors.Annotatef(ErrUnsupportedScheme, "url: %s", config.URL)
	}

	capability, err := d.registry.Capability(config.MimeType, config.Fmtp)
	if err != nil {
		return nil, errors.Trace(err)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(capability, string(config.Kind), uuid.New())
	if err != nil {
		return nil, errors.Annotatef(err, "new track")
	}

	q := streamURL.Query()

	pktSize, _ := strconv.Atoi(q.Get("pkt_size"))
	if pktSize == 0 {
		pktSize = defaultPacketSize
	}

	localRTPPort, err := strconv.Atoi(streamURL.Port())
	if err != nil {
		return nil, errors.Annotatef(err, "parse port: %s", config.URL)
	}

	localRTPAddr := &net.UDPAddr{
		IP:   net.ParseIP(streamURL.Hostname()),
		Port: localRTPPort,
	}

	rtpConn, err := net.ListenUDP("udp", localRTPAddr)
	if err != nil {
		return nil, annotateOpenError(err, "listen RTP udp")
	}

	var rtcpConn *net.UDPConn

	// Without a remote RTCP port there is nowhere to send picture loss
	// indications.
	if remoteRTCPPort, _ := strconv.Atoi(q.Get("localrtcpport")); remoteRTCPPort > 0 {
		localRTCPPort, _ := strconv.Atoi(q.Get("rtcpport"))
		if localRTCPPort == 0 {
			localRTCPPort = localRTPPort + 1
		}

		rtcpConn, err = net.DialUDP(
			"udp",
			&net.UDPAddr{IP: localRTPAddr.IP, Port: localRTCPPort},
			&net.UDPAddr{IP: localRTPAddr.IP, Port: remoteRTCPPort},
		)
		if err != nil {
			rtpConn.Close()

			return nil, annotateOpenError(err, "dial RTCP udp")
		}
	}

	t := &rtpTrack{
		TrackLocalStaticRTP: track,
		log: d.log.WithCtx(logger.Ctx{
			"device_id": config.ID,
			"kind":      config.Kind,
		}),
		rtpConn:  rtpConn,
		rtcpConn: rtcpConn,
		pktSize:  pktSize,
	}

	t.start()

	d.log.Info("Opened device", logger.Ctx{
		"device_id": config.ID,
		"url":       config.URL,
	})

	return t, nil
}

func annotateOpenError(err error, message string) error {
	if multierr.Is(err, os.ErrPermission) {
		return errors.Annotatef(ErrPermissionDenied, "%s: %s", message, err)
	}

	return errors.Annotate(err, message)
}

// rtpTrack forwards RTP packets received over UDP to a local track.
type rtpTrack struct {
	*webrtc.TrackLocalStaticRTP

	log      logger.Logger
	rtpConn  *net.UDPConn
	rtcpConn *net.UDPConn
	pktSize  int

	sourceSSRC uint32

	stopOnce sync.Once
	wg       sync.WaitGroup
}

var (
	_ LocalTrack        = &rtpTrack{}
	_ KeyFrameRequester = &rtpTrack{}
)

func (t *rtpTrack) start() {
	t.wg.Add(1)

	go func() {
		defer t.wg.Done()

		t.readRTP()
	}()

	if t.rtcpConn == nil {
		return
	}

	t.wg.Add(1)

	go func() {
		defer t.wg.Done()

		t.readRTCP()
	}()
}

func (t *rtpTrack) readRTP() {
	buf := make([]byte, t.pktSize)

	for {
		n, err := t.rtpConn.Read(buf)
		if err != nil {
			if !multierr.Is(err, net.ErrClosed) {
				t.log.Error("Read RTP", errors.Trace(err), nil)
			}

			return
		}

		var pkt rtp.Packet

		if err := pkt.Unmarshal(buf[:n]); err != nil {
			t.log.Warn("Unmarshal RTP", logger.Ctx{
				"error": err,
			})

			continue
		}

		atomic.StoreUint32(&t.sourceSSRC, pkt.SSRC)

		if err := t.WriteRTP(&pkt); err != nil {
			t.log.Error("Write RTP", errors.Trace(err), nil)
		}
	}
}

// readRTCP drains sender reports from the source so its socket buffer does
// not fill up.
func (t *rtpTrack) readRTCP() {
	buf := make([]byte, t.pktSize)

	for {
		if _, err := t.rtcpConn.Read(buf); err != nil {
			return
		}
	}
}

func (t *rtpTrack) SourceSSRC() uint32 {
	return atomic.LoadUint32(&t.sourceSSRC)
}

// RequestKeyFrame sends a PLI to the RTP source.
func (t *rtpTrack) RequestKeyFrame() error {
	if t.rtcpConn == nil {
		return nil
	}

	ssrc := t.SourceSSRC()

	b, err := rtcp.Marshal([]rtcp.Packet{
		&rtcp.PictureLossIndication{
			SenderSSRC: ssrc,
			MediaSSRC:  ssrc,
		},
	})
	if err != nil {
		return errors.Annotate(err, "marshal PLI")
	}

	_, err = t.rtcpConn.Write(b)

	return errors.Annotate(err, "write PLI")
}

func (t *rtpTrack) Stop() {
	t.stopOnce.Do(func() {
		var errs multierr.MultiErr

		errs.Add(t.rtpConn.Close())

		if t.rtcpConn != nil {
			errs.Add(t.rtcpConn.Close())
		}

		t.wg.Wait()

		if err := errs.Err(); err != nil {
			t.log.Error("Stop device", errors.Trace(err), nil)
		}
	})
}
