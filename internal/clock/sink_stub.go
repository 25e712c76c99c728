//go:build !linux

package clock

import "time"

func setSystemTime(time.Time) error {
	return ErrUnsupported
}
