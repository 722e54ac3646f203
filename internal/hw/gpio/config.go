// Package gpio drives the physical fan controller on a Linux board: output
// lines and edge-timed inputs through the GPIO character device, the DHT11
// through its IIO driver and the fan through a sysfs PWM channel.
package gpio

import (
	"errors"
	"time"
)

var (
	ErrNoEcho           = errors.New("gpio: no echo within timeout")
	ErrInvalidPWMPeriod = errors.New("gpio: PWM period must be positive")
	ErrMissingIIODevice = errors.New("gpio: IIO device directory is required")
)

// Config names the line offsets on Chip and the sysfs locations of the
// climate sensor and PWM channel. Offsets follow the board's GPIO numbering.
type Config struct {
	Chip string `koanf:"chip" yaml:"chip" json:"chip"`

	Relay       int `koanf:"relay" yaml:"relay" json:"relay"`
	LEDManual   int `koanf:"led_manual" yaml:"led_manual" json:"led_manual"`
	LEDSetpoint int `koanf:"led_setpoint" yaml:"led_setpoint" json:"led_setpoint"`
	LEDFailure  int `koanf:"led_failure" yaml:"led_failure" json:"led_failure"`
	Buzzer      int `koanf:"buzzer" yaml:"buzzer" json:"buzzer"`

	Trigger     int           `koanf:"trigger" yaml:"trigger" json:"trigger"`
	Echo        int           `koanf:"echo" yaml:"echo" json:"echo"`
	EchoTimeout time.Duration `koanf:"echo_timeout" yaml:"echo_timeout" json:"echo_timeout"`

	EncoderA int `koanf:"encoder_a" yaml:"encoder_a" json:"encoder_a"`
	EncoderB int `koanf:"encoder_b" yaml:"encoder_b" json:"encoder_b"`

	IIODevice string `koanf:"iio_device" yaml:"iio_device" json:"iio_device"`

	PWMChip    string        `koanf:"pwm_chip" yaml:"pwm_chip" json:"pwm_chip"`
	PWMChannel int           `koanf:"pwm_channel" yaml:"pwm_channel" json:"pwm_channel"`
	PWMPeriod  time.Duration `koanf:"pwm_period" yaml:"pwm_period" json:"pwm_period"`
}

func DefaultConfig() Config {
	return Config{
		Chip:        "gpiochip0",
		Relay:       27,
		LEDManual:   5,
		LEDSetpoint: 6,
		LEDFailure:  13,
		Buzzer:      26,
		Trigger:     23,
		Echo:        24,
		EchoTimeout: 40 * time.Millisecond,
		EncoderA:    17,
		EncoderB:    22,
		IIODevice:   "/sys/bus/iio/devices/iio:device0",
		PWMChip:     "/sys/class/pwm/pwmchip0",
		PWMChannel:  0,
		PWMPeriod:   40 * time.Microsecond,
	}
}
