package speech

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderEncodeDecode(t *testing.T) {
	h := NewHeader(FullClientRequest, PositiveSequenceNumber, JSONSerialization, GzipCompression)
	raw := h.Encode()

	assert.Equal(t, []byte{0x11, 0x11, 0x11, 0x00}, raw)

	decoded, err := DecodeHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, h, decoded)

	_, err = DecodeHeader([]byte{0x21, 0x11, 0x11, 0x00})
	assert.Error(t, err, "version 2 is not supported")

	_, err = DecodeHeader([]byte{0x11})
	assert.ErrorIs(t, err, errShortHeader)
}

func TestAudioOnlyRequestFlags(t *testing.T) {
	mid := NewAudioOnlyRequest([]byte("abc"), 3, false, NoCompression)
	assert.Equal(t, PositiveSequenceNumber, mid.Header.MessageFlags)
	assert.False(t, mid.IsLastPacket())

	last := NewAudioOnlyRequest([]byte("abc"), 4, true, NoCompression)
	assert.Equal(t, NegativeSequenceNumber, last.Header.MessageFlags)
	assert.Equal(t, int32(-4), last.Sequence)
	assert.True(t, last.IsLastPacket())

	lone := NewAudioOnlyRequest(nil, 0, true, NoCompression)
	assert.Equal(t, LastPacketNoSequence, lone.Header.MessageFlags)
}

func TestMessageRoundTrip(t *testing.T) {
	cases := map[string]*Message{
		"sequenced audio": NewAudioOnlyRequest([]byte("pcm"), 7, true, NoCompression),
		"session event": {
			Header:    NewHeader(FullServerResponse, WithEvent, JSONSerialization, NoCompression),
			EventType: EventTypeSessionFinished,
			SessionID: "s-1",
			Payload:   []byte(`{}`),
		},
		"connection event": {
			Header:    NewHeader(FullServerResponse, WithEvent, JSONSerialization, NoCompression),
			EventType: EventTypeConnectionStarted,
			ConnectID: "c-9",
		},
		"error": {
			Header:    NewHeader(ErrorMessage, NoSequenceNumber, JSONSerialization, NoCompression),
			ErrorCode: 45000001,
			Payload:   []byte(`{"error":"bad"}`),
		},
	}

	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			decoded, err := DecodeMessage(bytes.NewReader(EncodeMessage(msg)))
			require.NoError(t, err)

			assert.Equal(t, msg.Header, decoded.Header)
			assert.Equal(t, msg.Sequence, decoded.Sequence)
			assert.Equal(t, msg.EventType, decoded.EventType)
			assert.Equal(t, msg.SessionID, decoded.SessionID)
			assert.Equal(t, msg.ConnectID, decoded.ConnectID)
			assert.Equal(t, msg.ErrorCode, decoded.ErrorCode)
			assert.Equal(t, len(msg.Payload), int(decoded.PayloadSize))
			assert.Equal(t, string(msg.Payload), string(decoded.Payload))
		})
	}
}

func TestDecodeTruncatedPayload(t *testing.T) {
	raw := EncodeMessage(NewFullClientRequest([]byte("hello"), NoCompression))
	_, err := DecodeMessage(bytes.NewReader(raw[:len(raw)-2]))
	assert.Error(t, err)
}

func TestCompressionRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("joni eats "), 50)

	packed, err := CompressPayload(data, GzipCompression)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(data))

	unpacked, err := DecompressPayload(packed, GzipCompression)
	require.NoError(t, err)
	assert.Equal(t, data, unpacked)

	same, err := CompressPayload(data, NoCompression)
	require.NoError(t, err)
	assert.Equal(t, data, same)

	_, err = CompressPayload(data, CustomCompression)
	assert.Error(t, err)
}
