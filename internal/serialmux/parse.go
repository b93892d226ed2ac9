package serialmux

import (
	"fmt"
	"strings"
)

// navX ASCII protocol message ids.
const (
	msgStart        = '!'
	StreamYPR       = 'y'
	streamCommandID = 'S'
	streamReplyID   = 's'
)

const (
	EventTypeYPR            = "ypr"
	EventTypeStreamResponse = "stream_response"
	EventTypeUnknown        = "unknown"
)

// ClassifyLine returns the event type of one line from the IMU.
func ClassifyLine(line string) string {
	line = strings.TrimSpace(line)
	if len(line) < 2 || line[0] != msgStart {
		return EventTypeUnknown
	}
	switch line[1] {
	case StreamYPR:
		return EventTypeYPR
	case streamReplyID:
		return EventTypeStreamResponse
	default:
		return EventTypeUnknown
	}
}

// Checksum is the navX message checksum: the byte sum of msg, modulo 256,
// as two upper-case hex digits.
func Checksum(msg string) string {
	var sum byte
	for i := 0; i < len(msg); i++ {
		sum += msg[i]
	}
	return fmt.Sprintf("%02X", sum)
}

// StreamCommand builds the command that selects the IMU's stream type and
// update rate.
func StreamCommand(streamType byte, rateHz int) string {
	if rateHz < 4 {
		rateHz = 4
	}
	if rateHz > 200 {
		rateHz = 200
	}
	body := fmt.Sprintf("%c%c%c%02X", msgStart, streamCommandID, streamType, rateHz)
	return body + Checksum(body) + "\r\n"
}
