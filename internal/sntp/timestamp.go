package sntp

import (
	"math"
	"time"
)

// EpochOffset is the number of seconds from the NTP epoch (1900-01-01)
// to the POSIX epoch (1970-01-01).
const EpochOffset int64 = 2_208_988_800

const (
	fracScale     = 1 << 32
	nanosPerSec   = 1_000_000_000
	epochFixedPnt = uint64(EpochOffset) << 32
)

// Timestamp is a 64-bit NTP timestamp: whole seconds since 1900 in the
// high 32 bits, binary fraction of a second in the low 32 bits.
type Timestamp uint64

// Seconds returns the whole-second half.
func (t Timestamp) Seconds() uint32 { return uint32(t >> 32) }

// Fraction returns the fractional half.
func (t Timestamp) Fraction() uint32 { return uint32(t) }

// IsZero reports whether the timestamp is unset.
func (t Timestamp) IsZero() bool { return t == 0 }

// PosixToNTP converts POSIX seconds to an NTP timestamp. The fraction is
// rounded to the nearest 2^-32 s and the epoch shift is applied in fixed
// point.
func PosixToNTP(seconds float64) Timestamp {
	whole := math.Floor(seconds)
	frac := math.Round((seconds - whole) * fracScale)
	sec := int64(whole)
	if frac >= fracScale {
		sec++
		frac = 0
	}
	posix := uint64(sec)<<32 | uint64(frac)
	return Timestamp(posix + epochFixedPnt)
}

// NTPToPosix converts an NTP timestamp to POSIX seconds. Era 0 only:
// the whole 32-bit seconds range maps to 1900..2036, so values below the
// epoch offset are times before 1970.
func NTPToPosix(t Timestamp) float64 {
	sec := int64(t.Seconds()) - EpochOffset
	return float64(sec) + float64(t.Fraction())/fracScale
}

// Posix is shorthand for NTPToPosix(t).
func (t Timestamp) Posix() float64 {
	return NTPToPosix(t)
}

// TimestampFromTime converts a time.Time without going through float64.
func TimestampFromTime(t time.Time) Timestamp {
	sec := t.Unix()
	frac := (uint64(t.Nanosecond())<<32 + nanosPerSec/2) / nanosPerSec
	if frac >= fracScale {
		sec++
		frac = 0
	}
	return Timestamp(uint64(sec)<<32 + frac + epochFixedPnt)
}

// Time converts the timestamp to a time.Time, rounded to the nanosecond.
func (t Timestamp) Time() time.Time {
	sec := int64(t.Seconds()) - EpochOffset
	nsec := (uint64(t.Fraction())*nanosPerSec + fracScale/2) >> 32
	return time.Unix(sec, int64(nsec)).UTC()
}

// Sub returns t-u in seconds. The difference is taken in fixed point
// before conversion so precision does not depend on distance from the
// epoch.
func (t Timestamp) Sub(u Timestamp) float64 {
	return float64(int64(t-u)) / fracScale
}

// SecondsToDuration converts float seconds to a time.Duration.
func SecondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s * nanosPerSec))
}
