package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/smartx-rfid/smartx/pkg/util"
)

const (
	// DialTimeout bounds TCP connection attempts.
	DialTimeout = 3 * time.Second
	// PingInterval is how often drivers should poke the peer to detect a
	// dead connection.
	PingInterval = 3 * time.Second

	backoffInitial = 3 * time.Second
	backoffMax     = 30 * time.Second
)

// DialTCP connects to ip:port with the standard timeout. The address must
// be a literal IP; hostnames are rejected up front so a broken DNS setup
// cannot stall the supervisor loop.
func DialTCP(ip string, port int) (net.Conn, error) {
	if net.ParseIP(ip) == nil {
		return nil, util.NewConfigError("CONNECTION", fmt.Sprintf("%q is not an IP address", ip))
	}
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", ip, port), DialTimeout)
	if err != nil {
		return nil, util.WrapTransport(err)
	}
	return conn, nil
}

// Backoff computes reconnect delays: a fixed base for ordinary session
// drops, doubling up to a cap while connection attempts keep failing.
type Backoff struct {
	current time.Duration
}

// NewBackoff starts at the standard initial delay.
func NewBackoff() *Backoff {
	return &Backoff{current: backoffInitial}
}

// Next returns the delay to sleep before the next attempt and advances the
// schedule.
func (b *Backoff) Next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

// Reset returns the schedule to the initial delay after a successful
// connection.
func (b *Backoff) Reset() {
	b.current = backoffInitial
}
