package netdrv

import (
	"context"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/jmichalek/punchsync/internal/punch/driver"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "test ", log.LstdFlags)
}

// terminal is a scripted fake reader behind a real websocket listener. The
// harness answers the handshake with a hello frame; the script then owns the
// connection.
type terminal struct {
	t   *testing.T
	srv *httptest.Server

	mu    sync.Mutex
	conns []*websocket.Conn
}

func startTerminal(t *testing.T, script func(ctx context.Context, c *websocket.Conn)) *terminal {
	t.Helper()
	term := &terminal{t: t}

	term.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		term.mu.Lock()
		term.conns = append(term.conns, c)
		term.mu.Unlock()

		ctx := context.Background()
		if err := writeFrame(ctx, c, frame{Type: "hello", Serial: "WS-TEST-01"}); err != nil {
			return
		}
		if script != nil {
			script(ctx, c)
		}
		// Keep reading so pings are answered; exits when the conn dies.
		for {
			var f frame
			if err := readFrame(ctx, c, &f); err != nil {
				return
			}
		}
	}))

	t.Cleanup(term.close)
	return term
}

func (term *terminal) close() {
	term.mu.Lock()
	for _, c := range term.conns {
		_ = c.Close(websocket.StatusGoingAway, "shutdown")
	}
	term.conns = nil
	term.mu.Unlock()
	term.srv.Close()
}

func (term *terminal) endpoint() (string, int) {
	u, err := url.Parse(term.srv.URL)
	if err != nil {
		term.t.Fatalf("parse terminal url: %v", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		term.t.Fatalf("split terminal host: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		term.t.Fatalf("parse terminal port: %v", err)
	}
	return host, port
}

// waitForBacklogRequest reads frames until the client asks for the backlog.
func waitForBacklogRequest(t *testing.T, ctx context.Context, c *websocket.Conn) bool {
	for {
		var f frame
		if err := readFrame(ctx, c, &f); err != nil {
			t.Errorf("terminal read while waiting for backlog request: %v", err)
			return false
		}
		if f.Type == "backlog_request" {
			return true
		}
	}
}

func backlogFrame(employeeID int, ts time.Time) frame {
	return frame{
		Type:         "backlog",
		EmployeeID:   employeeID,
		Timestamp:    ts.Format(time.RFC3339),
		VerifyMethod: 1,
	}
}

func TestConnect_AfterFeedDrop_PerformsRealHandshake(t *testing.T) {
	term := startTerminal(t, nil)
	host, port := term.endpoint()

	d := &Driver{logger: testLogger()}
	lost := make(chan struct{}, 1)
	d.SetHandler(driver.Handler{OnDisconnected: func() { lost <- struct{}{} }})

	if err := d.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if d.SerialNumber() != "WS-TEST-01" {
		t.Fatalf("expected handshake serial, got %q", d.SerialNumber())
	}

	// Kill the terminal and its listener entirely.
	term.close()
	select {
	case <-lost:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the disconnect callback after the feed died")
	}

	// Nothing is listening anymore, so a genuine reconnect attempt must
	// fail; a nil error here means the dead handle was reused.
	if err := d.Connect(context.Background(), host, port); err == nil {
		t.Fatal("expected a dial error reconnecting to a dead terminal")
	}
}

func TestReadBacklog_AbandonedReadDoesNotLeakIntoNext(t *testing.T) {
	staleTail := make(chan struct{})
	day := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	term := startTerminal(t, func(ctx context.Context, c *websocket.Conn) {
		// First request: stream three records, then stall with neither
		// the rest nor the done marker.
		if !waitForBacklogRequest(t, ctx, c) {
			return
		}
		for i := 0; i < 3; i++ {
			_ = writeFrame(ctx, c, backlogFrame(1001, day.Add(8*time.Hour+time.Duration(i)*time.Minute)))
		}

		// The tail arrives only after the client has given up.
		<-staleTail
		_ = writeFrame(ctx, c, backlogFrame(1001, day.Add(12*time.Hour)))
		_ = writeFrame(ctx, c, frame{Type: "backlog_done"})

		// Second request gets one fresh record.
		if !waitForBacklogRequest(t, ctx, c) {
			return
		}
		_ = writeFrame(ctx, c, backlogFrame(2002, day.Add(9*time.Hour)))
		_ = writeFrame(ctx, c, frame{Type: "backlog_done"})
	})
	host, port := term.endpoint()

	d := &Driver{logger: testLogger()}
	d.SetHandler(driver.Handler{})
	if err := d.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(d.Disconnect)

	shortCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	logs, err := d.ReadBacklog(shortCtx)
	if err == nil {
		t.Fatal("expected the first read to give up on the stalled stream")
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 partial records from the first read, got %d", len(logs))
	}

	// Let the stale tail and its done marker arrive with no read active.
	close(staleTail)
	time.Sleep(200 * time.Millisecond)

	logs, err = d.ReadBacklog(context.Background())
	if err != nil {
		t.Fatalf("second ReadBacklog: %v", err)
	}
	if len(logs) != 1 || logs[0].EmployeeID != 2002 {
		t.Fatalf("stale frames leaked into the new read: %+v", logs)
	}
}
