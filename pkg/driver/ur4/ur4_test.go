package ur4

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/smartx-rfid/smartx/pkg/config"
	"github.com/smartx-rfid/smartx/pkg/tag"
)

type eventRec struct {
	mu   sync.Mutex
	tags []tag.Reading
	tids map[string]string
}

func (r *eventRec) OnConnect(device string)                            {}
func (r *eventRec) OnDisconnect(device string)                         {}
func (r *eventRec) OnStart(device string)                              {}
func (r *eventRec) OnStop(device string)                               {}
func (r *eventRec) OnEvent(device, eventType string, data interface{}) {}
func (r *eventRec) TIDForEPC(device, epc string) string                { return r.tids[epc] }
func (r *eventRec) OnTag(reading tag.Reading) {
	r.mu.Lock()
	r.tags = append(r.tags, reading)
	r.mu.Unlock()
}

func (r *eventRec) readings() []tag.Reading {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tag.Reading(nil), r.tags...)
}

func newTestDriver(t *testing.T, extra string) (*Driver, *eventRec) {
	t.Helper()
	rec := &eventRec{tids: map[string]string{}}
	cfg, err := config.ParseDeviceConfig("dock1", []byte(`{
		"READER": "UR4",
		"CONNECTION": "192.168.1.40",
		"SESSION": 1,
		"ANT": {"1": {"active": true, "power": 20, "rssi": -60}}`+extra+`
	}`), false)
	if err != nil {
		t.Fatal(err)
	}
	return New(cfg, rec), rec
}

// attachConn wires a pipe into the driver and drains the far end,
// returning the captured writes after the driver side is closed.
func attachConn(t *testing.T, d *Driver) func() []byte {
	t.Helper()
	local, remote := net.Pipe()
	d.mu.Lock()
	d.conn = local
	d.mu.Unlock()

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		chunk := make([]byte, 256)
		for {
			n, err := remote.Read(chunk)
			buf.Write(chunk[:n])
			if err != nil {
				return
			}
		}
	}()
	return func() []byte {
		local.Close()
		<-done
		return buf.Bytes()
	}
}

func TestSealBCC(t *testing.T) {
	frame := frameStartInventory()
	sealBCC(frame)
	var want byte
	for _, b := range frame[2 : len(frame)-3] {
		want ^= b
	}
	if frame[len(frame)-3] != want {
		t.Errorf("bcc = %#x, want %#x in frame %x", frame[len(frame)-3], want, frame)
	}
}

func TestSessionTargetByte(t *testing.T) {
	for session, want := range map[int]byte{0: 0x03, 1: 0x13, 2: 0x23, 3: 0x33} {
		if got := frameSessionTarget(session)[8]; got != want {
			t.Errorf("session %d byte = %#x, want %#x", session, got, want)
		}
	}
}

func TestAntennaMask(t *testing.T) {
	if got := frameAntennaMask(0)[7]; got != 0x01 {
		t.Errorf("empty mask byte = %#x, want fallback to port 1", got)
	}
	if got := frameAntennaMask(0x05)[7]; got != 0x05 {
		t.Errorf("mask byte = %#x, want 0x05", got)
	}
}

func TestAntennaPowerFrame(t *testing.T) {
	frame := frameAntennaPower(2, 50)
	if frame[6] != 2 {
		t.Errorf("antenna byte = %#x, want 2", frame[6])
	}
	value := int(frame[7])<<8 | int(frame[8])
	if value != maxPower*100 {
		t.Errorf("power value = %d, want clamped to %d", value, maxPower*100)
	}
	if frame[9] != frame[7] || frame[10] != frame[8] {
		t.Errorf("read/write power differ: %x", frame)
	}

	if v := frameAntennaPower(1, 5); int(v[7])<<8|int(v[8]) != minPower*100 {
		t.Errorf("low power not clamped: %x", v)
	}
}

func tagFrame(t *testing.T, epc, tid string, rssiRaw int16, ant byte) []byte {
	t.Helper()
	frame := make([]byte, tagFrameLen)
	copy(frame, framePrefix)
	frame[4] = 0x83
	epcBytes, _ := hex.DecodeString(epc)
	tidBytes, _ := hex.DecodeString(tid)
	copy(frame[7:19], epcBytes)
	copy(frame[19:31], tidBytes)
	binary.BigEndian.PutUint16(frame[31:33], uint16(rssiRaw))
	frame[33] = ant
	copy(frame[len(frame)-2:], frameSuffix)
	return frame
}

func TestTagFrameParsing(t *testing.T) {
	d, rec := newTestDriver(t, "")

	d.handleFrame(tagFrame(t, "3074257bf7194e4000001a85", "e28011702000513222330a7b", -450, 1))
	tags := rec.readings()
	if len(tags) != 1 {
		t.Fatalf("tags = %d, want 1", len(tags))
	}
	got := tags[0]
	if got.EPC != "3074257bf7194e4000001a85" || got.TID != "e28011702000513222330a7b" {
		t.Errorf("tag = %+v", got)
	}
	if got.Ant != 1 || got.RSSI == nil || *got.RSSI != -45 {
		t.Errorf("ant/rssi = %+v", got)
	}
}

func TestTagFrameRSSIFloor(t *testing.T) {
	d, rec := newTestDriver(t, "")

	d.handleFrame(tagFrame(t, "3074257bf7194e4000001a85", "e28011702000513222330a7b", -650, 1))
	if len(rec.readings()) != 0 {
		t.Fatalf("tag below antenna floor was reported")
	}
	d.handleFrame(tagFrame(t, "3074257bf7194e4000001a85", "e28011702000513222330a7b", -550, 1))
	if len(rec.readings()) != 1 {
		t.Fatalf("tag above floor was dropped")
	}
}

func TestTemperatureDecode(t *testing.T) {
	d, _ := newTestDriver(t, "")
	d.handleFrame([]byte{0xA5, 0x5A, 0x00, 0x0A, 0x34, 0x00, 0x0A, 0xF0, 0x00, 0x0D, 0x0A})
	if got := d.Temperature(); got != 28 {
		t.Errorf("temperature = %d, want 28", got)
	}
}

func TestSetupAckAdvances(t *testing.T) {
	d, _ := newTestDriver(t, "")
	d.resetSetup()
	d.setupMu.Lock()
	d.waitAnswer = true
	d.setupMu.Unlock()

	d.handleFrame([]byte{0xA5, 0x5A, 0x00, 0x0A, 0x2C, 0x01, 0x00, 0x00, 0x0D, 0x0A})

	d.setupMu.Lock()
	defer d.setupMu.Unlock()
	if d.setupStep != 1 || d.waitAnswer {
		t.Errorf("step=%d waitAnswer=%v after ack", d.setupStep, d.waitAnswer)
	}
}

func TestSetupTimeoutDropsConnection(t *testing.T) {
	d, _ := newTestDriver(t, "")
	local, remote := net.Pipe()
	d.mu.Lock()
	d.conn = local
	d.mu.Unlock()
	d.resetSetup()

	var buf bytes.Buffer
	eof := make(chan struct{})
	go func() {
		defer close(eof)
		chunk := make([]byte, 256)
		for {
			n, err := remote.Read(chunk)
			buf.Write(chunk[:n])
			if err != nil {
				return
			}
		}
	}()

	done := make(chan struct{})
	loop := make(chan struct{})
	go func() {
		d.setupLoop(context.Background(), done, local)
		close(loop)
	}()

	// the first step is sent, never answered, and must fail closed
	select {
	case <-loop:
	case <-time.After(3 * time.Second):
		t.Fatal("setup loop kept running with an unanswered step")
	}
	select {
	case <-eof:
	case <-time.After(time.Second):
		t.Fatal("connection not closed after step timeout")
	}

	if !bytes.HasPrefix(buf.Bytes(), framePrefix) {
		t.Errorf("first step never sent: %x", buf.Bytes())
	}

	d.setupMu.Lock()
	defer d.setupMu.Unlock()
	if d.setupDone || d.setupStep != 0 || d.waitAnswer {
		t.Errorf("setup not reset: done=%v step=%d wait=%v", d.setupDone, d.setupStep, d.waitAnswer)
	}
}

func TestGPIStopWins(t *testing.T) {
	d, _ := newTestDriver(t, `,
		"GPI": {"active": true, "start": {"pin": 1, "state": true}, "stop": {"pin": 2, "state": true}}`)
	drain := attachConn(t, d)
	d.SetReading(true)

	// both pins high: start and stop rules match, stop must win
	d.handleFrame([]byte{0xA5, 0x5A, 0x00, 0x0B, 0xA1, 0x0A, 0x01, 0x01, 0x00, 0x0D, 0x0A})
	if d.Reading() {
		t.Error("still reading after stop trigger")
	}

	d.handleFrame([]byte{0xA5, 0x5A, 0x00, 0x0B, 0xA1, 0x0A, 0x01, 0x00, 0x00, 0x0D, 0x0A})
	if !d.Reading() {
		t.Error("not reading after start trigger")
	}

	// repeated identical poll is not an edge
	d.SetReading(false)
	d.handleFrame([]byte{0xA5, 0x5A, 0x00, 0x0B, 0xA1, 0x0A, 0x01, 0x00, 0x00, 0x0D, 0x0A})
	if d.Reading() {
		t.Error("unchanged pin state retriggered inventory")
	}
	drain()
}

func TestStartStopInventory(t *testing.T) {
	d, _ := newTestDriver(t, "")
	drain := attachConn(t, d)

	if err := d.StartInventory(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !d.Reading() {
		t.Error("not reading after start")
	}
	if err := d.StopInventory(context.Background()); err != nil {
		t.Fatal(err)
	}
	if d.Reading() {
		t.Error("still reading after stop")
	}

	sent := drain()
	if !bytes.Contains(sent, []byte{0x82}) || !bytes.Contains(sent, []byte{0x8C}) || !bytes.Contains(sent, []byte{0x8D}) {
		t.Errorf("sent = %x, want start and both stop opcodes", sent)
	}
}

func TestWriteFrameShapes(t *testing.T) {
	epc := "300833b2ddd9014000000002"
	target := "e200001122334455667788aa"

	noTarget := writeFrame(tag.WriteRequest{NewEPC: epc})
	if len(noTarget) != 34 || noTarget[3] != 0x22 {
		t.Fatalf("no-target frame = %d bytes len byte %#x", len(noTarget), noTarget[3])
	}
	epcBytes, _ := hex.DecodeString(epc)
	if !bytes.Contains(noTarget, epcBytes) {
		t.Errorf("no-target frame missing epc: %x", noTarget)
	}

	byEPC := writeFrame(tag.WriteRequest{NewEPC: epc, TargetIdentifier: "epc", TargetValue: target})
	if len(byEPC) != 46 || byEPC[3] != 0x2E || byEPC[9] != 0x01 {
		t.Fatalf("epc-target frame = %d bytes: %x", len(byEPC), byEPC)
	}
	targetBytes, _ := hex.DecodeString(target)
	if !bytes.Contains(byEPC, targetBytes) {
		t.Errorf("epc-target frame missing selector: %x", byEPC)
	}

	byTID := writeFrame(tag.WriteRequest{NewEPC: epc, TargetIdentifier: "tid", TargetValue: target})
	if len(byTID) != 46 || byTID[9] != 0x02 {
		t.Fatalf("tid-target frame = %x", byTID)
	}
}

func TestWriteEPCPromotesToTID(t *testing.T) {
	d, rec := newTestDriver(t, "")
	rec.tids["300833b2ddd9014000000002"] = "e200001122334455667788aa"
	drain := attachConn(t, d)

	err := d.WriteEPC(context.Background(), tag.WriteRequest{
		NewEPC:           "aaaaaaaaaaaaaaaaaaaaaaaa",
		Password:         "00000000",
		TargetIdentifier: "epc",
		TargetValue:      "300833B2DDD9014000000002",
	})
	if err != nil {
		t.Fatal(err)
	}

	sent := drain()
	tid, _ := hex.DecodeString("e200001122334455667788aa")
	if !bytes.Contains(sent, tid) {
		t.Errorf("write did not target cached tid: %x", sent)
	}
}

func TestEnsureReadingResends(t *testing.T) {
	d, _ := newTestDriver(t, "")
	drain := attachConn(t, d)
	d.setupMu.Lock()
	d.setupDone = true
	d.setupMu.Unlock()
	d.SetReading(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.ensureReadingLoop(ctx, done)
		close(done)
	}()
	time.Sleep(ensureInterval + 200*time.Millisecond)
	cancel()
	<-done

	if sent := drain(); !bytes.Contains(sent, []byte{0x82}) {
		t.Errorf("ensure loop did not re-assert start: %x", sent)
	}
}
