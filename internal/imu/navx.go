// Package imu reads chassis heading from a navX-MXP over its UART stream
// and presents it as a swerve.HeadingSensor.
package imu

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/blackknights-robotics/motioncore/internal/serialmux"
)

var (
	// ErrBadChecksum marks a line whose checksum does not match its body.
	ErrBadChecksum = errors.New("imu: bad checksum")
	// ErrMalformed marks a line that is not a YPR update.
	ErrMalformed = errors.New("imu: malformed message")
)

// Each YPR field is a signed fixed-width decimal such as "+123.45".
const (
	fieldWidth  = 7
	yprFields   = 4
	yprBodyLen  = 2 + yprFields*fieldWidth
	checksumLen = 2
)

// YPR is one orientation update in degrees as the navX reports it: yaw is
// clockwise positive in [-180, 180].
type YPR struct {
	Yaw, Pitch, Roll float64
	CompassHeading   float64
}

// ParseYPR decodes a "!y" stream line. Trailing CR/LF is ignored.
func ParseYPR(line string) (YPR, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) != yprBodyLen+checksumLen || !strings.HasPrefix(line, "!y") {
		return YPR{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	body, sum := line[:yprBodyLen], line[yprBodyLen:]
	if want := serialmux.Checksum(body); !strings.EqualFold(sum, want) {
		return YPR{}, fmt.Errorf("%w: got %s, want %s", ErrBadChecksum, sum, want)
	}

	var v [yprFields]float64
	for i := range v {
		start := 2 + i*fieldWidth
		f, err := strconv.ParseFloat(strings.TrimSpace(body[start:start+fieldWidth]), 64)
		if err != nil {
			return YPR{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, i, err)
		}
		v[i] = f
	}
	return YPR{Yaw: v[0], Pitch: v[1], Roll: v[2], CompassHeading: v[3]}, nil
}

// FormatYPR renders an update as the navX would send it. The simulator and
// the mock port use it.
func FormatYPR(u YPR) string {
	body := "!y" + field(u.Yaw) + field(u.Pitch) + field(u.Roll) + field(u.CompassHeading)
	return body + serialmux.Checksum(body) + "\r\n"
}

func field(v float64) string {
	return fmt.Sprintf("%+07.2f", v)
}
