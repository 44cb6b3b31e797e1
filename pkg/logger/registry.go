// pkg/logger/registry.go
package logger

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/YaganovValera/optionstream/pkg/stream"
)

// ErrAlreadyInstalled is returned when a sink configuration is installed a
// second time.
var ErrAlreadyInstalled = errors.New("logger: already installed")

// SinkError reports a sink that could not be opened.
type SinkError struct {
	Path string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("logger: open sink %q: %v", e.Path, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------
// Installer
// -----------------------------------------------------------------------------

// Installer guards the one-time activation of a sink configuration. The
// process-wide instance also replaces zap's global logger; instances from
// NewInstaller do not, which keeps tests independent.
type Installer struct {
	installed atomic.Bool
	global    bool

	mu     sync.Mutex
	active *Logger
}

var defaultInstaller = &Installer{global: true}

// Default returns the process-wide installer.
func Default() *Installer { return defaultInstaller }

// NewInstaller returns an installer that only hands out its logger.
func NewInstaller() *Installer { return &Installer{} }

// Installed reports whether a configuration has been activated.
func (i *Installer) Installed() bool { return i.installed.Load() }

// Logger returns the installed logger, or a no-op logger before Install.
func (i *Installer) Logger() *Logger {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.active == nil {
		return Nop()
	}
	return i.active
}

// NewRegistry starts a sink configuration bound to i.
func (i *Installer) NewRegistry() *Registry {
	return &Registry{installer: i, terminal: zapcore.Lock(os.Stdout)}
}

// NewRegistry starts a sink configuration bound to the process-wide installer.
func NewRegistry() *Registry { return defaultInstaller.NewRegistry() }

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

type sinkKind int

const (
	sinkFile sinkKind = iota
	sinkTerminal
	sinkCapture
)

type sink struct {
	kind    sinkKind
	level   zapcore.Level
	core    zapcore.Core
	file    *os.File
	capture *captureSink
}

// Registry collects sinks until Install activates them. Each sink filters by
// its own minimum level; a record below one sink's level still reaches the
// others. Sinks added after Install are ignored.
type Registry struct {
	installer *Installer
	terminal  zapcore.WriteSyncer

	mu    sync.Mutex
	sinks []sink
	built bool
}

// AddFileSink appends JSON lines at or above level to path, creating the
// file if needed.
func (r *Registry) AddFileSink(path string, level zapcore.Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.built {
		return ErrAlreadyInstalled
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return &SinkError{Path: path, Err: err}
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.Lock(f), level)
	r.sinks = append(r.sinks, sink{kind: sinkFile, level: level, core: core, file: f})
	return nil
}

// AddTerminalSink writes human-readable lines at or above level to stdout.
func (r *Registry) AddTerminalSink(level zapcore.Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.built {
		return
	}
	ec := encoderConfig()
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(ec), r.terminal, level)
	r.sinks = append(r.sinks, sink{kind: sinkTerminal, level: level, core: core})
}

// AddCaptureSink returns a bridge that yields every record at or above level
// emitted after Install. A positive timeout stops the capture once elapsed;
// the bridge then reports end on its next pull. The bridge is usable
// immediately, and closing it detaches the sink.
func (r *Registry) AddCaptureSink(level zapcore.Level, timeout time.Duration) *stream.Bridge[Record] {
	cs := newCaptureSink(timeout)
	b := cs.bridge()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.built {
		cs.stop()
		return b
	}
	r.sinks = append(r.sinks, sink{kind: sinkCapture, level: level, core: newCaptureCore(cs, level), capture: cs})
	return b
}

// Install activates the registered sinks as one multiplexed logger. It can
// succeed once per Installer; later calls return ErrAlreadyInstalled, release
// this registry's sinks and leave the active configuration untouched.
func (r *Registry) Install() (*Logger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.built {
		return nil, ErrAlreadyInstalled
	}
	r.built = true

	if !r.installer.installed.CompareAndSwap(false, true) {
		r.release()
		return nil, ErrAlreadyInstalled
	}

	cores := make([]zapcore.Core, 0, len(r.sinks)+1)
	for _, s := range r.sinks {
		cores = append(cores, s.core)
	}
	// The tee is never empty even with no sinks configured.
	cores = append(cores, zapcore.NewNopCore())

	zl := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	l := FromZap(zl)

	r.installer.mu.Lock()
	r.installer.active = l
	r.installer.mu.Unlock()
	if r.installer.global {
		zap.ReplaceGlobals(zl)
	}
	return l, nil
}

func (r *Registry) release() {
	for _, s := range r.sinks {
		switch s.kind {
		case sinkFile:
			_ = s.file.Close()
		case sinkCapture:
			s.capture.stop()
		}
	}
	r.sinks = nil
}
