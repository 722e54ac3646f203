package gpio

import "time"

// EchoDistance converts an HC-SR04 echo pulse width to whole centimetres:
// half the round trip at 29.1 µs per cm, truncated.
func EchoDistance(width time.Duration) float64 {
	if width <= 0 {
		return 0
	}
	us := width.Microseconds()
	return float64(int64(float64(us/2) / 29.1))
}
