package effects

import (
	"os"
	"strconv"
	"strings"
	"time"

	logx "notigate/pkg/logx"
)

// Motor drives a haptic device through a sysfs-style activation node
// (for example /sys/class/timed_output/vibrator/enable on embedded boards).
// Satisfies notify.Vibrator. On hosts without such a node Available reports
// false and the manager skips vibration entirely.
type Motor struct {
	device string
	log    logx.Logger
}

func NewMotor(device string, log logx.Logger) *Motor {
	return &Motor{device: strings.TrimSpace(device), log: log}
}

func (m *Motor) Available() bool {
	if m.device == "" {
		return false
	}
	_, err := os.Stat(m.device)
	return err == nil
}

// Vibrate plays an on/off pattern: even indexes buzz, odd indexes pause.
// The node expects a duration in milliseconds; writing starts the buzz and
// the driver stops it on its own.
func (m *Motor) Vibrate(pattern []time.Duration) error {
	if !m.Available() || len(pattern) == 0 {
		return nil
	}
	for i, d := range pattern {
		if d <= 0 {
			continue
		}
		if i%2 == 1 {
			time.Sleep(d)
			continue
		}
		ms := strconv.FormatInt(d.Milliseconds(), 10)
		if err := os.WriteFile(m.device, []byte(ms), 0o644); err != nil {
			return err
		}
		time.Sleep(d)
	}
	return nil
}
