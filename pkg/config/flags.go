package config

import (
	"fmt"

	flag "github.com/spf13/pflag"
)

// Flag names shared by the command line and ApplyFlags.
const (
	FlagQuiet     = "quiet"
	FlagDebug     = "debug"
	FlagSensor    = "sensor"
	FlagListen    = "listen"
	FlagThreshold = "threshold"
	FlagPTY       = "pty"
	FlagAutoStart = "auto-start"
)

// BindFlags registers the flags that can override file and environment
// configuration.
func BindFlags(fs *flag.FlagSet) {
	fs.Bool(FlagQuiet, false, "Do not display notifications (they are still logged)")
	fs.Bool(FlagDebug, false, "Enable debug logging")
	fs.String(FlagSensor, "", "Path to the activity sensor executable")
	fs.String(FlagListen, "", "Address for the remote UI (e.g. 127.0.0.1:7777)")
	fs.Duration(FlagThreshold, 0, "Idle threshold (e.g. 1m)")
	fs.Bool(FlagPTY, false, "Attach the sensor's output to a pseudo-terminal")
	fs.Bool(FlagAutoStart, false, "Start detection as soon as the sensor runs")
}

// ApplyFlags copies every flag the user set explicitly onto cfg and
// re-validates it. Flags left at their defaults do not override.
func (c *Config) ApplyFlags(fs *flag.FlagSet) error {
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case FlagQuiet:
			c.Quiet, err = fs.GetBool(FlagQuiet)
		case FlagDebug:
			c.Debug, err = fs.GetBool(FlagDebug)
		case FlagSensor:
			var p string
			p, err = fs.GetString(FlagSensor)
			if err == nil {
				c.SetSensorOverride(p)
			}
		case FlagListen:
			c.Listen, err = fs.GetString(FlagListen)
		case FlagThreshold:
			c.IdleThreshold, err = fs.GetDuration(FlagThreshold)
		case FlagPTY:
			c.Sensor.PTY, err = fs.GetBool(FlagPTY)
		case FlagAutoStart:
			c.AutoStart, err = fs.GetBool(FlagAutoStart)
		}
		if err != nil {
			err = fmt.Errorf("flag --%s: %w", f.Name, err)
		}
	})
	if err != nil {
		return err
	}
	return Validate(c)
}

// SetSensorOverride makes every OS family use path.
func (c *Config) SetSensorOverride(path string) {
	c.Sensor.Override = path
}
