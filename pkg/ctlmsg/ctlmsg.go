// Package ctlmsg implements the control channel protocol between the
// harness and the inferior. Messages are payloadless fixed-width
// discriminants and the channel is strictly request/response: the harness
// sends one request and blocks for the matching response before issuing
// the next one.
package ctlmsg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	sys "golang.org/x/sys/unix"

	"github.com/go-warden/warden/pkg/logflags"
)

// Msg is a single control message.
type Msg uint32

const (
	Ping Msg = iota
	Pong
	Crash
	RecoveredFromCrash
	StartExtraThreads
	ExtraThreadsStarted
	Done
)

func (m Msg) String() string {
	switch m {
	case Ping:
		return "PING"
	case Pong:
		return "PONG"
	case Crash:
		return "CRASH"
	case RecoveredFromCrash:
		return "RECOVERED_FROM_CRASH"
	case StartExtraThreads:
		return "START_EXTRA_THREADS"
	case ExtraThreadsStarted:
		return "EXTRA_THREADS_STARTED"
	case Done:
		return "DONE"
	}
	return fmt.Sprintf("Msg(%d)", uint32(m))
}

// msgLen is the wire size of a message: one little-endian uint32.
const msgLen = 4

// ErrChannelClosed is returned by Recv when the peer closed its end of
// the channel.
var ErrChannelClosed = errors.New("control channel closed")

// Conn is one end of the duplex control channel.
type Conn struct {
	f   *os.File
	log *logrus.Entry
}

// New wraps one end of a socketpair created with Pair.
func New(f *os.File) *Conn {
	return &Conn{f: f, log: logflags.CtlMsgLogger()}
}

// Send writes a single message to the channel.
func (c *Conn) Send(m Msg) error {
	var buf [msgLen]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(m))
	if _, err := c.f.Write(buf[:]); err != nil {
		return fmt.Errorf("send %v: %w", m, err)
	}
	c.log.Debugf("sent %v", m)
	return nil
}

// Recv blocks until a single message arrives. Closure of the peer end
// during the blocking read yields ErrChannelClosed.
func (c *Conn) Recv() (Msg, error) {
	var buf [msgLen]byte
	if _, err := io.ReadFull(c.f, buf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, ErrChannelClosed
		}
		return 0, fmt.Errorf("recv: %w", err)
	}
	m := Msg(binary.LittleEndian.Uint32(buf[:]))
	c.log.Debugf("received %v", m)
	return m, nil
}

// Call sends req and blocks for its response. A response other than want
// is a protocol violation and a hard error.
func (c *Conn) Call(req, want Msg) error {
	if err := c.Send(req); err != nil {
		return err
	}
	resp, err := c.Recv()
	if err != nil {
		return fmt.Errorf("no response to %v: %w", req, err)
	}
	if resp != want {
		return fmt.Errorf("sent %v, got %v in response, want %v", req, resp, want)
	}
	return nil
}

// Close releases the underlying descriptor.
func (c *Conn) Close() error {
	return c.f.Close()
}

// Pair creates a connected socketpair for the control channel. The parent
// end stays in the harness, the child end is inherited by the inferior.
func Pair() (parent, child *os.File, err error) {
	fds, err := sys.Socketpair(sys.AF_UNIX, sys.SOCK_STREAM|sys.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("socketpair: %w", err)
	}
	return os.NewFile(uintptr(fds[0]), "ctl|parent"), os.NewFile(uintptr(fds[1]), "ctl|child"), nil
}
