package serial

import (
	"fmt"
	"io"

	tarm "github.com/tarm/serial"
	bugst "go.bug.st/serial"

	"github.com/erikbeerepoot/bramble/internal/config"
)

// Port is the physical link. Read must return (0, nil) or io.EOF when no
// bytes arrived within the driver's read timeout.
type Port interface {
	io.ReadWriteCloser
}

// drainer is implemented by ports that can block until written bytes are on the wire
type drainer interface {
	Drain() error
}

// Opener opens a Port for the given settings
type Opener func(settings config.SerialSettings) (Port, error)

// OpenerFor returns the opener for a configured driver name
func OpenerFor(driver string) (Opener, error) {
	switch driver {
	case config.DriverBugst, "":
		return OpenBugst, nil
	case config.DriverTarm:
		return OpenTarm, nil
	default:
		return nil, fmt.Errorf("unknown serial driver %q", driver)
	}
}

// OpenBugst opens the port with go.bug.st/serial (8N1)
func OpenBugst(settings config.SerialSettings) (Port, error) {
	mode := &bugst.Mode{
		BaudRate: settings.Baud,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}

	p, err := bugst.Open(settings.Port, mode)
	if err != nil {
		return nil, err
	}
	if settings.ReadTimeout > 0 {
		if err := p.SetReadTimeout(settings.ReadTimeout); err != nil {
			_ = p.Close()
			return nil, err
		}
	}
	return p, nil
}

// OpenTarm opens the port with github.com/tarm/serial
func OpenTarm(settings config.SerialSettings) (Port, error) {
	p, err := tarm.OpenPort(&tarm.Config{
		Name:        settings.Port,
		Baud:        settings.Baud,
		ReadTimeout: settings.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
