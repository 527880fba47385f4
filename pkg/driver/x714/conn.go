package x714

import (
	"context"
	"io"
	"time"

	"github.com/smartx-rfid/smartx/pkg/transport"
)

func (d *Driver) runSerial(ctx context.Context) error {
	cfg := d.Config()
	conn, err := transport.OpenSerial(transport.SerialParams{
		Port: cfg.Connection,
		Baud: cfg.Baud,
		VID:  cfg.VID,
		PID:  cfg.PID,
	})
	if err != nil {
		return err
	}
	return d.runStream(ctx, conn, 0)
}

func (d *Driver) runTCP(ctx context.Context) error {
	cfg := d.Config()
	port := cfg.Port
	if port == 0 {
		port = 23
	}
	conn, err := transport.DialTCP(cfg.Connection, port)
	if err != nil {
		return err
	}
	return d.runStream(ctx, conn, transport.PingInterval)
}

// runStream serves a byte-stream session (serial or TCP). A non-zero ping
// interval writes a keep-alive line so dead TCP peers surface quickly.
func (d *Driver) runStream(ctx context.Context, conn io.ReadWriteCloser, ping time.Duration) error {
	d.setSender(func(p []byte) error {
		_, err := conn.Write(p)
		return err
	})
	d.SetConnected(true)
	defer func() {
		d.setSender(nil)
		d.DropReading()
		conn.Close()
		d.SetConnected(false)
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	d.session(ctx, done)
	if ping > 0 {
		go func() {
			ticker := time.NewTicker(ping)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					d.writeLine("ping", false)
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	fb := transport.NewFrameBuffer(0)
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
		if n == 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		fb.Append(buf[:n])
		for {
			line, ok := fb.NextLine()
			if !ok {
				break
			}
			d.handleLine(line)
		}
	}
}

func (d *Driver) runBLE(ctx context.Context) error {
	conn, err := transport.DialBLE(ctx, d.Config().BLEName)
	if err != nil {
		return err
	}
	d.setSender(func(p []byte) error {
		_, err := conn.Write(p)
		return err
	})
	d.SetConnected(true)
	defer func() {
		d.setSender(nil)
		d.DropReading()
		conn.Close()
		d.SetConnected(false)
	}()

	done := make(chan struct{})
	defer close(done)

	d.session(ctx, done)
	go func() {
		ticker := time.NewTicker(transport.BLEKeepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.writeLine("ping", false)
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	fb := transport.NewFrameBuffer(0)
	for {
		select {
		case chunk, ok := <-conn.Notifications():
			if !ok {
				return nil
			}
			fb.Append(chunk)
			for {
				line, ok := fb.NextLine()
				if !ok {
					break
				}
				d.handleLine(line)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
