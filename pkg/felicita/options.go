package felicita

import "github.com/fako1024/de1ble/pkg/scale"

// BuzzerSetting denotes the desired state of the buzzer (on user interaction)
type BuzzerSetting string

const (

	// BuzzerSettingOn enforces the buzzer to be turned on upon connection
	BuzzerSettingOn BuzzerSetting = "on"

	// BuzzerSettingOff enforces the buzzer to be turned off upon connection
	BuzzerSettingOff BuzzerSetting = "off"
)

// WithLogger sets the logger
func WithLogger(logger scale.Logger) func(*Felicita) {
	return func(f *Felicita) {
		f.logger = logger
	}
}

// WithBuzzerSetting forces the buzzer into the given state upon connection
func WithBuzzerSetting(setting BuzzerSetting) func(*Felicita) {
	return func(f *Felicita) {
		f.forceBuzzerSettingOnConnect = setting
	}
}
