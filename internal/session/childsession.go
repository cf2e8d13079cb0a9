package session

import (
	"fmt"
	"sync/atomic"

	"github.com/collabora-online/kitworker/internal/transport"
)

// Child is the concrete ChildSession the Document Manager creates for each
// "session <id> <docKey>" control-loop message.
type Child struct {
	id       string
	viewID   int
	userName string
	conn     *transport.Conn

	closeFrame atomic.Bool

	// input is called, in order, with every line HandleInput is given
	// except "disconnect" and any line arriving after the close frame.
	// HandleInput is reached through the document package's
	// child-<viewId> dispatch.
	input func(line string) error
}

// NewChild constructs a session bound to conn for sending frames back to
// the client, and input as the handler for incoming command lines.
func NewChild(id string, viewID int, userName string, conn *transport.Conn, input func(string) error) *Child {
	return &Child{id: id, viewID: viewID, userName: userName, conn: conn, input: input}
}

func (c *Child) ID() string       { return c.id }
func (c *Child) ViewID() int      { return c.viewID }
func (c *Child) UserName() string { return c.userName }

func (c *Child) HandleInput(line string) error {
	if line == "disconnect" {
		c.closeFrame.Store(true)
		return nil
	}
	if c.closeFrame.Load() {
		return nil
	}
	if c.input == nil {
		return fmt.Errorf("session %s: no input handler installed", c.id)
	}
	return c.input(line)
}

func (c *Child) IsCloseFrame() bool { return c.closeFrame.Load() }
func (c *Child) IsActive() bool     { return !c.IsCloseFrame() }

func (c *Child) SendTextFrame(line string) error {
	if c.conn == nil {
		return fmt.Errorf("session %s: no transport connection", c.id)
	}
	return c.conn.SendText(line)
}

func (c *Child) SendBinaryFrame(header string, payload []byte) error {
	if c.conn == nil {
		return fmt.Errorf("session %s: no transport connection", c.id)
	}
	return c.conn.SendBinary(header, payload)
}
