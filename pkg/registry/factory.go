package registry

import (
	"fmt"

	"github.com/smartx-rfid/smartx/pkg/config"
	"github.com/smartx-rfid/smartx/pkg/driver"
	"github.com/smartx-rfid/smartx/pkg/driver/generic"
	"github.com/smartx-rfid/smartx/pkg/driver/icard"
	"github.com/smartx-rfid/smartx/pkg/driver/r700"
	"github.com/smartx-rfid/smartx/pkg/driver/ur4"
	"github.com/smartx-rfid/smartx/pkg/driver/x714"
	"github.com/smartx-rfid/smartx/pkg/util"
)

// NewDriver instantiates the protocol driver for a device config.
func NewDriver(cfg *config.DeviceConfig, events driver.Events) (driver.Driver, error) {
	switch cfg.Reader {
	case config.KindUR4:
		return ur4.New(cfg, events), nil
	case config.KindX714:
		return x714.New(cfg, events), nil
	case config.KindR700:
		return r700.New(cfg, events), nil
	case config.KindICARD:
		return icard.New(cfg, events), nil
	case config.KindSerial, config.KindTCP:
		return generic.New(cfg, events), nil
	}
	return nil, util.NewConfigError("READER", fmt.Sprintf("unknown reader kind %q", cfg.Reader))
}
