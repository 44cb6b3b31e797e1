// pkg/logger/host.go
package logger

import "go.uber.org/zap"

// HostLogger emits plain messages on behalf of an embedding host under the
// "host" logger name. It always resolves the current process-wide logger,
// so it is safe to obtain before Install.
type HostLogger struct{}

// Host returns the host-facing facade.
func Host() HostLogger { return HostLogger{} }

func (HostLogger) log() *zap.Logger { return zap.L().Named("host").WithOptions(zap.AddCallerSkip(1)) }

func (h HostLogger) Debug(msg string) { h.log().Debug(msg) }
func (h HostLogger) Info(msg string)  { h.log().Info(msg) }
func (h HostLogger) Warn(msg string)  { h.log().Warn(msg) }
func (h HostLogger) Error(msg string) { h.log().Error(msg) }
