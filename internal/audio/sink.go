package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"

	"github.com/pion/rtp"

	"github.com/BrickBench/AutoMarathon/internal/domain"
)

// Sink receives mixed 48 kHz stereo blocks.
type Sink interface {
	WriteBlock(block []float32) error
	Close() error
}

const (
	rtpPayloadType = 96 // dynamic, s16le stereo
	rtpClockRate   = SampleRate
)

// UDPSink packetizes mixed blocks as RTP over UDP toward the host
// compositor's audio input.
type UDPSink struct {
	conn      *net.UDPConn
	seq       uint16
	timestamp uint32
	ssrc      uint32
}

// NewUDPSink connects a datagram socket to the host's audio input address.
func NewUDPSink(addr string, ssrc uint32) (*UDPSink, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: audio sink %s: %v", domain.ErrUpstream, addr, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: audio sink %s: %v", domain.ErrUpstream, addr, err)
	}
	return &UDPSink{conn: conn, ssrc: ssrc}, nil
}

// WriteBlock sends one block as a single RTP packet with s16le payload.
func (s *UDPSink) WriteBlock(block []float32) error {
	payload := make([]byte, len(block)*2)
	for i, sample := range block {
		v := math.Max(-1, math.Min(1, float64(sample)))
		binary.LittleEndian.PutUint16(payload[i*2:], uint16(int16(v*math.MaxInt16)))
	}

	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    rtpPayloadType,
			SequenceNumber: s.seq,
			Timestamp:      s.timestamp,
			SSRC:           s.ssrc,
		},
		Payload: payload,
	}
	s.seq++
	s.timestamp += uint32(len(block) / Channels)

	raw, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("%w: rtp marshal: %v", domain.ErrUpstream, err)
	}
	if _, err := s.conn.Write(raw); err != nil {
		return fmt.Errorf("%w: audio sink write: %v", domain.ErrUpstream, err)
	}
	return nil
}

// Close shuts the socket down.
func (s *UDPSink) Close() error { return s.conn.Close() }

// DiscardSink drops blocks; used when a host has no audio input configured.
type DiscardSink struct{}

func (DiscardSink) WriteBlock([]float32) error { return nil }
func (DiscardSink) Close() error               { return nil }
