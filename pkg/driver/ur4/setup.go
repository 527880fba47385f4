package ur4

import (
	"context"
	"net"
	"time"

	"github.com/smartx-rfid/smartx/pkg/util"
)

// Ordered setup checklist indices.
const (
	stepRegion = iota
	stepInventoryMode
	stepSessionTarget
	stepAntennas
	stepCommandMode
	stepTagFocus
	stepFastID1
	stepFastID2
	stepFastID3
	stepFastInventory
	stepBuzzer
	stepRFLink
	stepCW
	stepGPOOff
	stepPowerAnt1
	stepPowerAnt2
	stepPowerAnt3
	stepPowerAnt4
	stepCount
)

func (d *Driver) resetSetup() {
	d.setupMu.Lock()
	d.setupDone = false
	d.setupStep = 0
	d.waitAnswer = false
	d.setupMu.Unlock()
}

func (d *Driver) setupComplete() bool {
	d.setupMu.Lock()
	defer d.setupMu.Unlock()
	return d.setupDone
}

// acknowledgeSetup advances the checklist when a non-event reply arrives
// while a step is outstanding.
func (d *Driver) acknowledgeSetup() {
	d.setupMu.Lock()
	defer d.setupMu.Unlock()
	if d.setupDone || !d.waitAnswer {
		return
	}
	d.setupStep++
	d.waitAnswer = false
}

// setupLoop walks the checklist. Every step must be answered within the
// step timeout; a silent reader fails closed and the connection is
// dropped so the supervisor starts over.
func (d *Driver) setupLoop(ctx context.Context, done <-chan struct{}, conn net.Conn) {
	ticker := time.NewTicker(setupTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-done:
			return
		case <-ctx.Done():
			return
		}

		d.setupMu.Lock()
		if d.setupDone {
			d.setupMu.Unlock()
			continue
		}
		if d.waitAnswer {
			expired := time.Now().After(d.deadline)
			d.setupMu.Unlock()
			if expired {
				util.WithDevice(d.Name()).Warn("setup step unanswered, dropping connection")
				d.resetSetup()
				conn.Close()
				return
			}
			continue
		}
		step := d.setupStep
		d.setupMu.Unlock()

		if step >= stepCount {
			d.finishSetup(ctx)
			continue
		}
		if d.runStep(step) {
			d.setupMu.Lock()
			d.waitAnswer = true
			d.deadline = time.Now().Add(setupTimeout)
			d.setupMu.Unlock()
		} else {
			// step skipped, nothing to wait for
			d.setupMu.Lock()
			d.setupStep++
			d.setupMu.Unlock()
		}
	}
}

// runStep sends the command for one checklist entry; false means the step
// does not apply (inactive antenna) and the walk should move on.
func (d *Driver) runStep(step int) bool {
	cfg := d.Config()
	util.WithDevice(d.Name()).Debugf("setup step %d", step)

	switch step {
	case stepRegion:
		d.send(frameRegion())
	case stepInventoryMode:
		d.send(frameInventoryMode())
	case stepSessionTarget:
		d.send(frameSessionTarget(cfg.Session))
	case stepAntennas:
		var mask byte
		for i := 0; i < antennaCount; i++ {
			if cfg.Antenna(i + 1).Active {
				mask |= 1 << i
			}
		}
		d.send(frameAntennaMask(mask))
	case stepCommandMode:
		d.send(frameCommandMode())
	case stepTagFocus:
		d.send(frameTagFocus())
	case stepFastID1:
		d.send(frameFastID1())
	case stepFastID2:
		d.send(frameFastID2())
	case stepFastID3:
		d.send(frameFastID3())
	case stepFastInventory:
		d.send(frameFastInventory())
	case stepBuzzer:
		d.send(frameBuzzer(cfg.Buzzer))
	case stepRFLink:
		d.send(frameRFLink())
	case stepCW:
		d.send(frameCW())
	case stepGPOOff:
		d.send(frameGPO(false))
	case stepPowerAnt1, stepPowerAnt2, stepPowerAnt3, stepPowerAnt4:
		port := step - stepPowerAnt1 + 1
		ant := cfg.Antenna(port)
		if !ant.Active {
			return false
		}
		d.send(frameAntennaPower(port, ant.Power))
	}
	return true
}

func (d *Driver) finishSetup(ctx context.Context) {
	d.setupMu.Lock()
	if d.setupDone {
		d.setupMu.Unlock()
		return
	}
	d.setupDone = true
	d.setupMu.Unlock()

	util.WithDevice(d.Name()).Info("setup complete")
	if d.Config().StartReading {
		d.StartInventory(ctx)
	}
}
