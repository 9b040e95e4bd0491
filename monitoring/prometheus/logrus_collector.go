package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// LogrusCollector is a logrus hook that exposes log message counts by level
// and prefix.
type LogrusCollector struct {
	counter *prometheus.CounterVec
}

var supportedLevels = []logrus.Level{logrus.ErrorLevel, logrus.WarnLevel, logrus.InfoLevel}

const (
	prefixKey     = "prefix"
	defaultPrefix = "global"
)

// NewLogrusCollector registers the log counter metric and returns a logrus
// hook feeding it. This function can be called only once; a second call
// panics on duplicate metric registration.
func NewLogrusCollector() *LogrusCollector {
	counterVec := promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "log_entries_total",
		Help: "Total number of log messages.",
	}, []string{"level", prefixKey})
	return &LogrusCollector{
		counter: counterVec,
	}
}

// Fire is called on every log call.
func (hook *LogrusCollector) Fire(entry *logrus.Entry) error {
	prefix := defaultPrefix
	if prefixValue, ok := entry.Data[prefixKey]; ok {
		prefix, _ = prefixValue.(string)
	}
	hook.counter.WithLabelValues(entry.Level.String(), prefix).Inc()
	return nil
}

// Levels returns the log levels this hook fires on.
func (hook *LogrusCollector) Levels() []logrus.Level {
	return supportedLevels
}
