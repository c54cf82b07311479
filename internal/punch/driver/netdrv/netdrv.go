// Package netdrv is the terminal adapter for readers that expose the
// websocket push feed (firmware 6.x and later). The terminal accepts one
// feed connection at ws://<addr>:<port>/v1/feed, answers the handshake with
// a hello frame carrying its serial number, and then pushes one JSON frame
// per notification. Backlog reads run as a request/stream exchange over the
// same connection.
package netdrv

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/jmichalek/punchsync/internal/punch/driver"
	"github.com/jmichalek/punchsync/internal/punch/types"
)

func init() {
	driver.Register("net", func(logger *log.Logger) driver.Driver {
		return &Driver{logger: logger}
	})
}

const (
	dialTimeout    = 5 * time.Second
	helloTimeout   = 5 * time.Second
	backlogTimeout = 60 * time.Second
)

// frame is the wire envelope for every feed message, in both directions.
// Unused fields are omitted per frame type.
type frame struct {
	Type string `json:"type"`

	// hello
	Serial string `json:"serial,omitempty"`

	// attendance, backlog
	EmployeeID      int    `json:"employee_id,omitempty"`
	Timestamp       string `json:"timestamp,omitempty"` // RFC3339
	VerifyMethod    int    `json:"verify_method,omitempty"`
	AttendanceState int    `json:"attendance_state,omitempty"`
	WorkCode        int    `json:"work_code,omitempty"`
	Invalid         bool   `json:"invalid,omitempty"`

	// verify, new_user
	UserID int `json:"user_id,omitempty"`

	// card
	CardNumber string `json:"card_number,omitempty"`
}

// Driver speaks the websocket feed. Not safe for concurrent use; the owning
// supervisor serializes Connect/Disconnect/Ping/ReadBacklog.
type Driver struct {
	logger  *log.Logger
	handler driver.Handler

	conn   *websocket.Conn
	serial string
	closed chan struct{} // closed when the read loop exits
	cancel context.CancelFunc

	// backlogMu guards backlog, the only field the read loop shares with
	// ReadBacklog. Each ReadBacklog call installs a fresh channel.
	backlogMu sync.Mutex
	backlog   chan frame
}

func (d *Driver) SetHandler(h driver.Handler) { d.handler = h }

func (d *Driver) SerialNumber() string { return d.serial }

func (d *Driver) Connect(ctx context.Context, address string, port int) error {
	if d.conn != nil {
		select {
		case <-d.closed:
			// The feed died and the read loop exited; the handle is
			// stale. Release it and handshake from scratch, so a
			// reconnect is a real dial rather than a silent no-op.
			d.cancel()
			d.conn.Close(websocket.StatusAbnormalClosure, "stale")
			d.conn = nil
		default:
			return nil
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	u := fmt.Sprintf("ws://%s:%d/v1/feed", address, port)
	conn, _, err := websocket.Dial(dialCtx, u, nil)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", driver.ErrUnavailable, u, err)
	}

	// The terminal speaks first: a hello frame with its serial.
	helloCtx, cancelHello := context.WithTimeout(ctx, helloTimeout)
	defer cancelHello()

	var hello frame
	if err := readFrame(helloCtx, conn, &hello); err != nil {
		conn.Close(websocket.StatusProtocolError, "no hello")
		return fmt.Errorf("%w: read hello: %v", driver.ErrUnavailable, err)
	}
	if hello.Type != "hello" {
		conn.Close(websocket.StatusProtocolError, "bad hello")
		return fmt.Errorf("%w: expected hello frame, got %q", driver.ErrUnavailable, hello.Type)
	}

	loopCtx, cancelLoop := context.WithCancel(context.Background())

	d.conn = conn
	d.serial = hello.Serial
	d.closed = make(chan struct{})
	d.cancel = cancelLoop

	d.backlogMu.Lock()
	d.backlog = make(chan frame, 64)
	d.backlogMu.Unlock()

	go d.readLoop(loopCtx, conn)
	return nil
}

func (d *Driver) Disconnect() {
	if d.conn == nil {
		return
	}
	d.cancel()
	d.conn.Close(websocket.StatusNormalClosure, "disconnect")
	<-d.closed
	d.conn = nil
}

func (d *Driver) Ping(ctx context.Context) bool {
	if d.conn == nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	return d.conn.Ping(pingCtx) == nil
}

// ReadBacklog asks the terminal to stream its buffered records. Returns what
// it has collected so far when the stream errors out or times out.
func (d *Driver) ReadBacklog(ctx context.Context) ([]types.RawLog, error) {
	if d.conn == nil {
		return nil, driver.ErrUnavailable
	}

	reqCtx, cancel := context.WithTimeout(ctx, backlogTimeout)
	defer cancel()

	// Fresh channel per request: frames still streaming from an earlier
	// read that gave up land in the abandoned channel, not this one. The
	// same goes for a stale backlog_done, which would otherwise terminate
	// this read before the terminal answered it.
	ch := make(chan frame, 64)
	d.backlogMu.Lock()
	d.backlog = ch
	d.backlogMu.Unlock()

	if err := writeFrame(reqCtx, d.conn, frame{Type: "backlog_request"}); err != nil {
		return nil, fmt.Errorf("backlog request: %w", err)
	}

	var logs []types.RawLog
	for {
		select {
		case <-reqCtx.Done():
			return logs, reqCtx.Err()
		case <-d.closed:
			return logs, driver.ErrUnavailable
		case f := <-ch:
			if f.Type == "backlog_done" {
				return logs, nil
			}
			rl, err := f.rawLog()
			if err != nil {
				d.logger.Printf("netdrv: skipping malformed backlog frame: %v", err)
				continue
			}
			logs = append(logs, rl)
		}
	}
}

// readLoop routes every inbound frame: backlog frames to the ReadBacklog
// channel, everything else to the handler callbacks. Exits on any read
// error, firing OnDisconnected so the supervisor notices.
func (d *Driver) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer close(d.closed)

	for {
		var f frame
		if err := readFrame(ctx, conn, &f); err != nil {
			if ctx.Err() == nil {
				d.logger.Printf("netdrv: feed closed: %v", err)
				if d.handler.OnDisconnected != nil {
					d.handler.OnDisconnected()
				}
			}
			return
		}

		switch f.Type {
		case "attendance":
			rl, err := f.rawLog()
			if err != nil {
				d.logger.Printf("netdrv: dropping malformed attendance frame: %v", err)
				continue
			}
			if d.handler.OnAttendance != nil {
				d.handler.OnAttendance(rl.EmployeeID, rl.Valid, rl.AttendanceState, rl.VerifyMethod, rl.Timestamp, rl.WorkCode)
			}
		case "backlog", "backlog_done":
			d.backlogMu.Lock()
			ch := d.backlog
			d.backlogMu.Unlock()
			select {
			case ch <- f:
			default:
				// Nobody is draining this channel; drop the frame
				// rather than stall the live feed behind it.
			}
		case "finger_placed":
			if d.handler.OnFingerPlaced != nil {
				d.handler.OnFingerPlaced()
			}
		case "verify":
			if d.handler.OnVerify != nil {
				d.handler.OnVerify(f.UserID)
			}
		case "card":
			if d.handler.OnCard != nil {
				d.handler.OnCard(f.CardNumber)
			}
		case "new_user":
			if d.handler.OnNewUser != nil {
				d.handler.OnNewUser(f.UserID)
			}
		default:
			d.logger.Printf("netdrv: ignoring frame type %q", f.Type)
		}
	}
}

func (f frame) rawLog() (types.RawLog, error) {
	ts, err := time.Parse(time.RFC3339, f.Timestamp)
	if err != nil {
		return types.RawLog{}, fmt.Errorf("bad timestamp %q: %w", f.Timestamp, err)
	}
	return types.RawLog{
		EmployeeID:      f.EmployeeID,
		Timestamp:       ts,
		VerifyMethod:    f.VerifyMethod,
		AttendanceState: f.AttendanceState,
		WorkCode:        f.WorkCode,
		Valid:           !f.Invalid,
	}, nil
}

func readFrame(ctx context.Context, conn *websocket.Conn, f *frame) error {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, f)
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
