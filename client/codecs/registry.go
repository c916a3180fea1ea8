package codecs

import (
	"strings"

	"github.com/juju/errors"
	"github.com/pion/webrtc/v3"
)

var ErrUnsupportedMimeType = errors.Errorf("unsupported mime type")

// Registry contains the codecs negotiated by every peer connection.
type Registry struct {
	Audio Props
	Video Props
}

type Props struct {
	CodecParameters  []webrtc.RTPCodecParameters
	HeaderExtensions []HeaderExtension
}

type HeaderExtension struct {
	Capability        webrtc.RTPHeaderExtensionCapability
	AllowedDirections []webrtc.RTPTransceiverDirection
}

const (
	clockRateOpus   = 48000
	PayloadTypeOpus = 111
	channelsOpus    = 2

	clockRateVideo = 90000
)

func opus() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:     webrtc.MimeTypeOpus,
		ClockRate:    clockRateOpus,
		Channels:     channelsOpus,
		SDPFmtpLine:  "minptime=10;useinbandfec=1",
		RTCPFeedback: nil,
	}
}

func videoCodec(
	mimeType string, fmtp string, payloadType webrtc.PayloadType, feedback []webrtc.RTCPFeedback,
) webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     mimeType,
			ClockRate:    clockRateVideo,
			Channels:     0,
			SDPFmtpLine:  fmtp,
			RTCPFeedback: feedback,
		},
		PayloadType: payloadType,
	}
}

// NewRegistryDefault registers opus for audio, and VP8 plus two H264
// profiles for video, each video codec with its retransmission codec.
func NewRegistryDefault() *Registry {
	videoRTCPFeedback := []webrtc.RTCPFeedback{
		{Type: "goog-remb", Parameter: ""},
		{Type: "ccm", Parameter: "fir"},
		{Type: "nack", Parameter: ""},
		{Type: "nack", Parameter: "pli"},
	}

	return &Registry{
		Audio: Props{
			CodecParameters: []webrtc.RTPCodecParameters{
				{
					RTPCodecCapability: opus(),
					PayloadType:        PayloadTypeOpus,
				},
			},
			HeaderExtensions: []HeaderExtension{
				{
					Capability: webrtc.RTPHeaderExtensionCapability{
						URI: "urn:ietf:params:rtp-hdrext:ssrc-audio-level",
					},
				},
			},
		},
		Video: Props{
			CodecParameters: []webrtc.RTPCodecParameters{
				videoCodec(webrtc.MimeTypeVP8, "", 96, videoRTCPFeedback),
				videoCodec("video/rtx", "apt=96", 97, nil),

				videoCodec(
					webrtc.MimeTypeH264,
					"level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f",
					102,
					videoRTCPFeedback,
				),
				videoCodec("video/rtx", "apt=102", 121, nil),

				videoCodec(
					webrtc.MimeTypeH264,
					"level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
					125,
					videoRTCPFeedback,
				),
				videoCodec("video/rtx", "apt=125", 107, nil),
			},
			HeaderExtensions: nil,
		},
	}
}

// RegisterMediaEngine adds all codecs and header extensions to m.
func (r *Registry) RegisterMediaEngine(m *webrtc.MediaEngine) error {
	register := func(props Props, codecType webrtc.RTPCodecType) error {
		for _, codec := range props.CodecParameters {
			if err := m.RegisterCodec(codec, codecType); err != nil {
				return errors.Annotatef(err, "register codec: %s", codec.MimeType)
			}
		}

		for _, ext := range props.HeaderExtensions {
			if err := m.RegisterHeaderExtension(ext.Capability, codecType, ext.AllowedDirections...); err != nil {
				return errors.Annotatef(err, "register header extension: %s", ext.Capability.URI)
			}
		}

		return nil
	}

	if err := register(r.Audio, webrtc.RTPCodecTypeAudio); err != nil {
		return errors.Trace(err)
	}

	return errors.Trace(register(r.Video, webrtc.RTPCodecTypeVideo))
}

// Below code is borrowed from pion/webrtc and a little modified.

type MatchType int

const (
	MatchNone    MatchType = 0
	MatchPartial MatchType = 1
	MatchExact   MatchType = 2
)

// FuzzySearch looks up a codec first by mime type and fmtp line, then by
// mime type alone.
func (r *Registry) FuzzySearch(mimeType string, sdpFmtpLine string) (webrtc.RTPCodecParameters, MatchType) {
	haystack := r.getCodecsByMimeType(mimeType)

	needleFmtp := parseFmtp(sdpFmtpLine)

	for _, c := range haystack {
		if strings.EqualFold(c.RTPCodecCapability.MimeType, mimeType) &&
			fmtpConsist(needleFmtp, parseFmtp(c.RTPCodecCapability.SDPFmtpLine)) {
			return c, MatchExact
		}
	}

	for _, c := range haystack {
		if strings.EqualFold(c.RTPCodecCapability.MimeType, mimeType) {
			return c, MatchPartial
		}
	}

	return webrtc.RTPCodecParameters{}, MatchNone
}

// Capability returns the registered capability for a mime type, used when
// creating local tracks.
func (r *Registry) Capability(mimeType string, sdpFmtpLine string) (webrtc.RTPCodecCapability, error) {
	codec, match := r.FuzzySearch(mimeType, sdpFmtpLine)
	if match == MatchNone {
		return webrtc.RTPCodecCapability{}, errors.Annotatef(ErrUnsupportedMimeType, "mime type: %q", mimeType)
	}

	return codec.RTPCodecCapability, nil
}

func (r *Registry) getCodecsByMimeType(mimeType string) []webrtc.RTPCodecParameters {
	if TypeFromMimeType(mimeType) == webrtc.RTPCodecTypeAudio {
		return r.Audio.CodecParameters
	}

	return r.Video.CodecParameters
}

func TypeFromMimeType(mimeType string) webrtc.RTPCodecType {
	if strings.HasPrefix(strings.ToLower(mimeType), "audio/") {
		return webrtc.RTPCodecTypeAudio
	}

	return webrtc.RTPCodecTypeVideo
}

type fmtp map[string]string

func parseFmtp(line string) fmtp {
	f := fmtp{}

	for _, p := range strings.Split(line, ";") {
		pp := strings.SplitN(strings.TrimSpace(p), "=", 2)

		key := strings.ToLower(pp[0])
		if key == "" {
			continue
		}

		var value string
		if len(pp) > 1 {
			value = pp[1]
		}

		f[key] = value
	}

	return f
}

// fmtpConsist checks that the parameters present in both lines have the same
// values.
func fmtpConsist(a, b fmtp) bool {
	for k, v := range a {
		if vb, ok := b[k]; ok && !strings.EqualFold(vb, v) {
			return false
		}
	}

	return true
}
