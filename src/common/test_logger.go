package common

import (
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestLogLevel is the level used by loggers created with NewTestLogger.
var TestLogLevel = logrus.DebugLevel

// This can be used as the destination for a logger and it'll
// map them into calls to testing.T.Log, so that you only see
// the logging for failed tests.
// Writes arriving after the test has finished are dropped: testing.T panics
// on Log calls from goroutines that outlive the test.
type testLoggerAdapter struct {
	t      testing.TB
	prefix string
	done   int32
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	if atomic.LoadInt32(&a.done) == 1 {
		return len(d), nil
	}
	if len(d) > 0 && d[len(d)-1] == '\n' {
		d = d[:len(d)-1]
	}
	if a.prefix != "" {
		l := a.prefix + ": " + string(d)
		a.t.Log(l)
		return len(l), nil
	}
	a.t.Log(string(d))
	return len(d), nil
}

// NewTestLogger returns a logrus Logger that writes through t.Log.
func NewTestLogger(t testing.TB) *logrus.Logger {
	adapter := &testLoggerAdapter{t: t}
	t.Cleanup(func() { atomic.StoreInt32(&adapter.done, 1) })

	logger := logrus.New()
	logger.Out = adapter
	logger.Level = TestLogLevel
	return logger
}

// NewTestEntry returns an Entry of a test logger tagged with the test name.
func NewTestEntry(t testing.TB) *logrus.Entry {
	return NewTestLogger(t).WithField("test", t.Name())
}
