package sem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequest(t *testing.T) {

	assert := assert.New(t)

	frame, err := Encode(5, "12345V")
	require.NoError(t, err)

	data := []byte("#00512345V")
	var sum uint8
	for _, b := range data {
		sum += b
	}
	assert.Equal(byte('#'), frame[0])
	assert.Equal("005", string(frame[1:4]))
	assert.Equal(byte('\r'), frame[len(frame)-1])
	assert.Equal(string(data)+Checksum(data)+"\r", string(frame))
	assert.Len(frame, len(data)+3)
}

func TestChecksumIsUppercaseHex(t *testing.T) {

	assert := assert.New(t)

	assert.Equal("00", Checksum(nil))
	assert.Equal("0A", Checksum([]byte{0x0a}))
	assert.Equal("FF", Checksum([]byte{0xf0, 0x0f}))
	// wraps at 8 bits
	assert.Equal("01", Checksum([]byte{0xff, 0x02}))
}

func TestEncodeRejectsAddressOutOfRange(t *testing.T) {

	_, err := Encode(-1, "00000E")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = Encode(1000, "00000E")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestAddressRoundTrip(t *testing.T) {

	for address := 0; address <= MAX_ADDRESS; address++ {
		frame, err := Encode(address, "00000E")
		require.NoError(t, err)

		decoded, err := Decode(frame)
		require.NoError(t, err)
		if decoded.Address != address {
			t.Fatalf("address %d decoded as %d", address, decoded.Address)
		}
		assert.Equal(t, "00000E", decoded.Body)
		assert.False(t, decoded.IsReply())
	}
}

func TestDecodeReply(t *testing.T) {

	assert := assert.New(t)

	frame, err := EncodeReply(42, "E01234567")
	require.NoError(t, err)

	decoded, err := Decode(frame)
	require.NoError(t, err)
	assert.True(decoded.IsReply())
	assert.Equal(42, decoded.Address)
	assert.Equal(byte('E'), decoded.Echo())
	assert.Equal("01234567", decoded.Value())

	// trailing CR is optional
	decoded, err = Decode(frame[:len(frame)-1])
	require.NoError(t, err)
	assert.Equal("E01234567", decoded.Body)
}

func TestSingleByteCorruptionFailsChecksum(t *testing.T) {

	frame, err := EncodeReply(7, "W00012345")
	require.NoError(t, err)

	// every byte but the terminator is covered by the checksum or is part of it
	for i := 0; i < len(frame)-1; i++ {
		for _, flip := range []byte{0x01, 0x10, 0x80} {
			corrupted := append([]byte(nil), frame...)
			corrupted[i] ^= flip
			if corrupted[i] == FRAME_TERMINATOR {
				continue
			}
			_, err := Decode(corrupted)
			assert.ErrorIs(t, err, ErrChecksumMismatch, "byte %d flipped with %#x", i, flip)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {

	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, err = Decode([]byte("~01\r"))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	// valid checksum but unknown marker
	data := []byte("!001E")
	_, err = Decode(append(data, Checksum(data)...))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	// valid checksum but address is not numeric
	data = []byte("~0A1E")
	_, err = Decode(append(data, Checksum(data)...))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	// checksum field is not hex
	_, err = Decode([]byte("~001EZZ\r"))
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	// lowercase checksum is rejected
	data = []byte("~001E0000000A")
	sum := []byte(Checksum(data))
	for i := range sum {
		if sum[i] >= 'A' && sum[i] <= 'F' {
			sum[i] += 'a' - 'A'
		}
	}
	if string(sum) != Checksum(data) {
		_, err = Decode(append(data, sum...))
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	}
}

func TestDecodeTooLong(t *testing.T) {

	body := make([]byte, MAX_FRAME_LENGTH)
	for i := range body {
		body[i] = '0'
	}
	frame, err := EncodeReply(1, string(body))
	require.NoError(t, err)

	_, err = Decode(frame)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestFrameScanner(t *testing.T) {

	assert := assert.New(t)

	reply, err := EncodeReply(1, "=M0123")
	require.NoError(t, err)
	request, err := Encode(1, "00000=M")
	require.NoError(t, err)

	// request echo and noise before the reply are skipped
	stream := append([]byte{0x00, 0xff}, request...)
	stream = append(stream, reply...)
	stream = append(stream, reply...)

	var frames [][]byte
	var scanner FrameScanner
	for _, b := range stream {
		frame, err := scanner.Feed(b)
		require.NoError(t, err)
		if frame != nil {
			frames = append(frames, frame)
		}
	}
	assert.Len(frames, 2)
	for _, f := range frames {
		assert.Equal(reply, f)
	}
}

func TestFrameScannerDropsOversizedReply(t *testing.T) {

	var scanner FrameScanner
	_, err := scanner.Feed(REPLY_MARKER)
	require.NoError(t, err)

	var lastErr error
	for i := 0; i < MAX_FRAME_LENGTH+5 && lastErr == nil; i++ {
		_, lastErr = scanner.Feed('1')
	}
	assert.ErrorIs(t, lastErr, ErrMalformedFrame)

	// the scanner recovers for the next reply
	reply, err := EncodeReply(3, "E00000001")
	require.NoError(t, err)
	var got []byte
	for _, b := range reply {
		frame, err := scanner.Feed(b)
		require.NoError(t, err)
		if frame != nil {
			got = frame
		}
	}
	assert.Equal(t, reply, got)
}
