package logging

import (
	"fmt"

	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
)

// waLogger routes whatsmeow's printf-style logging into zap.
type waLogger struct {
	l *zap.SugaredLogger
}

var _ waLog.Logger = waLogger{}

// WhatsApp adapts logger for whatsmeow clients and stores. Sub-modules become
// dotted zap logger names, e.g. "wa.client.Socket".
func WhatsApp(logger *zap.Logger) waLog.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return waLogger{l: logger.Sugar()}
}

func (w waLogger) Debugf(msg string, args ...any) { w.l.Debugf(msg, args...) }
func (w waLogger) Infof(msg string, args ...any)  { w.l.Infof(msg, args...) }
func (w waLogger) Warnf(msg string, args ...any)  { w.l.Warnf(msg, args...) }
func (w waLogger) Errorf(msg string, args ...any) { w.l.Errorf(msg, args...) }

func (w waLogger) Sub(module string) waLog.Logger {
	return waLogger{l: w.l.Desugar().Named(module).Sugar()}
}

// String identifies the logger in whatsmeow debug dumps.
func (w waLogger) String() string {
	return fmt.Sprintf("zap(%s)", w.l.Desugar().Name())
}
