// pkg/logger/configure.go
package logger

import (
	"path/filepath"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/YaganovValera/optionstream/pkg/stream"
)

// SinksConfig is the declarative form of a Registry.
type SinksConfig struct {
	Files    []FileSinkConfig    `mapstructure:"files"`
	Terminal TerminalSinkConfig  `mapstructure:"terminal"`
	Captures []CaptureSinkConfig `mapstructure:"captures"`
}

// FileSinkConfig appends records at or above Level to Path.
type FileSinkConfig struct {
	Path  string `mapstructure:"path"`
	Level string `mapstructure:"level"`
}

// TerminalSinkConfig enables the stdout sink.
type TerminalSinkConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"`
}

// CaptureSinkConfig opens an in-process capture stream.
type CaptureSinkConfig struct {
	Level   string        `mapstructure:"level"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Configure builds and installs cfg on i. It returns one bridge per capture
// entry, in order. If i is already installed it fails with
// ErrAlreadyInstalled before opening anything.
func (i *Installer) Configure(cfg SinksConfig) ([]*stream.Bridge[Record], error) {
	if i.Installed() {
		return nil, ErrAlreadyInstalled
	}
	reg := i.NewRegistry()
	for _, f := range cfg.Files {
		if err := reg.AddFileSink(f.Path, ParseLevel(f.Level)); err != nil {
			reg.release()
			return nil, err
		}
	}
	if cfg.Terminal.Enabled {
		reg.AddTerminalSink(ParseLevel(cfg.Terminal.Level))
	}
	bridges := make([]*stream.Bridge[Record], 0, len(cfg.Captures))
	for _, c := range cfg.Captures {
		bridges = append(bridges, reg.AddCaptureSink(ParseLevel(c.Level), c.Timeout))
	}
	if _, err := reg.Install(); err != nil {
		return nil, err
	}
	return bridges, nil
}

// Configure installs cfg on the process-wide installer.
func Configure(cfg SinksConfig) ([]*stream.Bridge[Record], error) {
	return defaultInstaller.Configure(cfg)
}

// StartTracing installs the standard layout under dir: error.log receives
// warnings and above, logs.log receives everything at or above level, and
// terminal adds the stdout sink at the same level.
func (i *Installer) StartTracing(dir, level string, terminal bool, captures ...CaptureSinkConfig) ([]*stream.Bridge[Record], error) {
	return i.Configure(SinksConfig{
		Files: []FileSinkConfig{
			{Path: filepath.Join(dir, "error.log"), Level: zapcore.WarnLevel.String()},
			{Path: filepath.Join(dir, "logs.log"), Level: level},
		},
		Terminal: TerminalSinkConfig{Enabled: terminal, Level: level},
		Captures: captures,
	})
}

// StartTracing runs Installer.StartTracing on the process-wide installer.
func StartTracing(dir, level string, terminal bool, captures ...CaptureSinkConfig) ([]*stream.Bridge[Record], error) {
	return defaultInstaller.StartTracing(dir, level, terminal, captures...)
}
