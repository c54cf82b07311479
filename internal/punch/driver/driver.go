// Package driver defines the narrow interface the core uses to talk to a
// terminal, plus a registry of concrete adapters selected by configuration.
// The core never touches a vendor SDK directly; everything device-specific
// lives behind Driver.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/jmichalek/punchsync/internal/punch/types"
)

var ErrUnavailable = errors.New("terminal driver unavailable")

// Handler carries the callbacks a driver fires as the terminal pushes
// notifications. Nil fields are simply not called. Drivers invoke callbacks
// from a single goroutine, in the order the terminal emitted them.
type Handler struct {
	OnAttendance   func(employeeID int, valid bool, state, verify int, ts time.Time, workCode int)
	OnDisconnected func()
	OnFingerPlaced func()
	OnVerify       func(userID int)
	OnCard         func(cardNumber string)
	OnNewUser      func(userID int)
}

// Driver is one terminal connection. Implementations are not safe for
// concurrent use; each instance is exclusively owned by one supervisor.
type Driver interface {
	// Connect performs the handshake. On failure the driver holds no
	// resources and Connect may be retried.
	Connect(ctx context.Context, address string, port int) error

	// Disconnect releases the connection. Idempotent.
	Disconnect()

	// Ping is a lightweight liveness probe (reads the device clock). It
	// reports health only; it never tears down the connection itself.
	Ping(ctx context.Context) bool

	// SerialNumber reports the serial learned during the last successful
	// handshake, or "" before one.
	SerialNumber() string

	// ReadBacklog pulls the records buffered on the device. Best-effort:
	// on a read error it returns whatever it got along with the error.
	ReadBacklog(ctx context.Context) ([]types.RawLog, error)

	// SetHandler installs the callback set. Must be called before Connect.
	SetHandler(Handler)
}

// Factory builds a fresh Driver instance.
type Factory func(logger *log.Logger) Driver

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a driver adapter available under the given config name.
// Adapters call this from init, mirroring database/sql driver registration.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("driver: Register with nil factory")
	}
	if _, dup := registry[name]; dup {
		panic("driver: Register called twice for " + name)
	}
	registry[name] = f
}

// New builds a driver for the named adapter. An unknown name is a
// connection-class error: the watchdog will keep retrying, so a deploy that
// ships the adapter later heals without a restart.
func New(name string, logger *log.Logger) (Driver, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no %q adapter registered (have %v)", ErrUnavailable, name, names())
	}
	return f(logger), nil
}

func names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
