package sem

import (
	"fmt"
)

const (
	REQUEST_MARKER   byte = '#'
	REPLY_MARKER     byte = '~'
	FRAME_TERMINATOR byte = '\r'
	MAX_FRAME_LENGTH      = 100
	MAX_ADDRESS           = 999
	ADDRESS_DIGITS        = 3
	CHECKSUM_DIGITS       = 2
	minFrameLength        = 1 + ADDRESS_DIGITS + CHECKSUM_DIGITS
)

// Frame is a validated unit of the meter's ASCII protocol:
// marker, 3 digit address, body, 2 hex digit checksum and CR.
type Frame struct {
	Marker  byte
	Address int
	Body    string
}

func (f Frame) IsReply() bool {
	return f.Marker == REPLY_MARKER
}

// Echo returns the command character a reply starts with, or 0 for an empty body.
func (f Frame) Echo() byte {
	if len(f.Body) == 0 {
		return 0
	}
	return f.Body[0]
}

// Value returns the reply body after the echoed command character.
func (f Frame) Value() string {
	if len(f.Body) <= 1 {
		return ""
	}
	return f.Body[1:]
}

// Encode builds a request frame for the meter at address.
// The payload is the password followed by the command code.
func Encode(address int, payload string) ([]byte, error) {
	return encode(REQUEST_MARKER, address, payload)
}

// EncodeReply builds a reply frame as the meter would send it.
func EncodeReply(address int, body string) ([]byte, error) {
	return encode(REPLY_MARKER, address, body)
}

func encode(marker byte, address int, body string) ([]byte, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	frame := make([]byte, 0, minFrameLength+len(body)+1)
	frame = append(frame, marker)
	frame = append(frame, FormatAddress(address)...)
	frame = append(frame, body...)
	frame = append(frame, Checksum(frame)...)
	frame = append(frame, FRAME_TERMINATOR)
	return frame, nil
}

func ValidateAddress(address int) error {
	if address < 0 || address > MAX_ADDRESS {
		return fmt.Errorf("%w: %d not in 0..%d", ErrInvalidAddress, address, MAX_ADDRESS)
	}
	return nil
}

func FormatAddress(address int) string {
	return fmt.Sprintf("%03d", address)
}

// Checksum is the 8 bit additive sum of data rendered as two uppercase hex digits.
func Checksum(data []byte) string {
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return fmt.Sprintf("%02X", sum)
}

// Decode validates a raw frame. The trailing CR is optional.
// The checksum is verified before any field is interpreted.
func Decode(raw []byte) (*Frame, error) {
	data := raw
	if n := len(data); n > 0 && data[n-1] == FRAME_TERMINATOR {
		data = data[:n-1]
	}
	if len(data) < minFrameLength {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrMalformedFrame, len(data))
	}
	if len(data) > MAX_FRAME_LENGTH {
		return nil, fmt.Errorf("%w: %d bytes is too long", ErrMalformedFrame, len(data))
	}

	split := len(data) - CHECKSUM_DIGITS
	given := string(data[split:])
	if expected := Checksum(data[:split]); given != expected {
		return nil, fmt.Errorf("%w: got %q, expected %q", ErrChecksumMismatch, given, expected)
	}

	marker := data[0]
	if marker != REQUEST_MARKER && marker != REPLY_MARKER {
		return nil, fmt.Errorf("%w: unexpected marker %q", ErrMalformedFrame, marker)
	}
	address := 0
	for _, c := range data[1 : 1+ADDRESS_DIGITS] {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("%w: address %q is not numeric", ErrMalformedFrame, data[1:1+ADDRESS_DIGITS])
		}
		address = address*10 + int(c-'0')
	}

	return &Frame{
		Marker:  marker,
		Address: address,
		Body:    string(data[1+ADDRESS_DIGITS : split]),
	}, nil
}

// FrameScanner extracts reply frames from a raw byte stream. Bytes outside a
// reply (line noise, the echo of our own request on RS485) are skipped.
type FrameScanner struct {
	buf     []byte
	inFrame bool
}

// Feed consumes one byte and returns a complete frame once its terminator arrives.
func (s *FrameScanner) Feed(b byte) ([]byte, error) {
	if !s.inFrame {
		if b == REPLY_MARKER {
			s.inFrame = true
			s.buf = append(s.buf[:0], b)
		}
		return nil, nil
	}
	s.buf = append(s.buf, b)
	if b == FRAME_TERMINATOR {
		frame := append([]byte(nil), s.buf...)
		s.Reset()
		return frame, nil
	}
	if len(s.buf) > MAX_FRAME_LENGTH {
		s.Reset()
		return nil, fmt.Errorf("%w: reply exceeds %d bytes", ErrMalformedFrame, MAX_FRAME_LENGTH)
	}
	return nil, nil
}

func (s *FrameScanner) Reset() {
	s.buf = s.buf[:0]
	s.inFrame = false
}
