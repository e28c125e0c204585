package media

import (
	"log/slog"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

// Capabilities decides which tracks a session carries and what happens to
// remote ones.
type Capabilities interface {
	ProvideLocalTracks(pc *webrtc.PeerConnection) error
	OnRemoteTrack(pc *webrtc.PeerConnection, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
}

// NoCapabilities carries no media at all.
type NoCapabilities struct{}

func (NoCapabilities) ProvideLocalTracks(*webrtc.PeerConnection) error { return nil }

func (NoCapabilities) OnRemoteTrack(*webrtc.PeerConnection, *webrtc.TrackRemote, *webrtc.RTPReceiver) {
}

// ReceiveOnly offers to receive one audio and one video track and sends
// nothing. Remote RTP is read and discarded; video senders are asked for a
// key frame every KeyFrameInterval.
type ReceiveOnly struct {
	KeyFrameInterval time.Duration
	Logger           *slog.Logger
}

func (r ReceiveOnly) ProvideLocalTracks(pc *webrtc.PeerConnection) error {
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		_, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r ReceiveOnly) OnRemoteTrack(pc *webrtc.PeerConnection, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("receiving remote track",
		"kind", track.Kind().String(),
		"codec", track.Codec().MimeType,
		"ssrc", uint32(track.SSRC()))

	if track.Kind() == webrtc.RTPCodecTypeVideo && r.KeyFrameInterval > 0 {
		go requestKeyFrames(pc, uint32(track.SSRC()), r.KeyFrameInterval)
	}

	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			log.Debug("remote track ended", "ssrc", uint32(track.SSRC()), "error", err)
			return
		}
	}
}

// requestKeyFrames sends a PLI every interval until the connection rejects it.
func requestKeyFrames(pc *webrtc.PeerConnection, ssrc uint32, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		err := pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}})
		if err != nil {
			return
		}
	}
}

// ParseCapabilities maps a configuration name to a capability set.
func ParseCapabilities(name string, logger *slog.Logger) (Capabilities, bool) {
	switch name {
	case "", "recvonly":
		return ReceiveOnly{KeyFrameInterval: 3 * time.Second, Logger: logger}, true
	case "none":
		return NoCapabilities{}, true
	default:
		return nil, false
	}
}
