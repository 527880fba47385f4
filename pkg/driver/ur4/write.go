package ur4

import (
	"context"
	"strings"
	"time"

	"github.com/smartx-rfid/smartx/pkg/tag"
)

const writeSettle = 500 * time.Millisecond

// WriteEPC writes a new EPC, pausing inventory around the operation and
// promoting an EPC selector to TID when the tag is already cached.
func (d *Driver) WriteEPC(ctx context.Context, req tag.WriteRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	if req.TargetIdentifier == "epc" {
		if tid := d.Events().TIDForEPC(d.Name(), strings.ToLower(req.TargetValue)); tid != "" {
			req.TargetIdentifier = "tid"
			req.TargetValue = strings.ToUpper(tid)
		}
	}

	resume := d.Reading()
	if resume {
		if err := d.send(frameStopInventory1()); err != nil {
			return err
		}
		if err := d.send(frameStopInventory2()); err != nil {
			return err
		}
		time.Sleep(writeSettle)
	}

	err := d.send(writeFrame(req))

	if resume {
		time.Sleep(writeSettle)
		if startErr := d.send(frameStartInventory()); err == nil {
			err = startErr
		}
	}
	return err
}

// writeFrame builds the 0x86 write command for the three selector shapes:
// no target (single tag in field), EPC mask, or TID mask.
func writeFrame(req tag.WriteRequest) []byte {
	newEPC := hexBytes(req.NewEPC)

	var frame []byte
	switch req.TargetIdentifier {
	case "":
		frame = []byte{0xA5, 0x5A, 0x00, 0x22, 0x86, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x20, 0x00, 0x00, 0x01, 0x00, 0x02, 0x00, 0x06}
		frame = append(frame, newEPC...)

	case "epc":
		frame = []byte{0xA5, 0x5A, 0x00, 0x2E, 0x86, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x20, 0x00, 0x60}
		frame = append(frame, hexBytes(req.TargetValue)...)
		frame = append(frame, 0x01, 0x00, 0x02, 0x00, 0x06)
		frame = append(frame, newEPC...)

	case "tid":
		frame = []byte{0xA5, 0x5A, 0x00, 0x2E, 0x86, 0x00, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x60}
		frame = append(frame, hexBytes(req.TargetValue)...)
		frame = append(frame, 0x01, 0x00, 0x02, 0x00, 0x06)
		frame = append(frame, newEPC...)
	}
	return append(frame, 0x00, 0x0D, 0x0A)
}
