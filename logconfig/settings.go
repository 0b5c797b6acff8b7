package logconfig

import (
	"fmt"
	"strings"

	myLogger "github.com/sirupsen/logrus"
)

// Accepted values of LOG_LEVEL besides the logrus level names.
const (
	PresetDebug      = "debug"
	PresetInfo       = "info"
	PresetProduction = "production"
)

// Terminal output with caller info, used by tests.
func ConfigDebugLogger() {
	myLogger.SetReportCaller(true)
	myLogger.SetLevel(myLogger.DebugLevel)
	myLogger.SetFormatter(&myLogger.TextFormatter{
		ForceColors:            true,
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
}

func ConfigInfoLogger() {
	myLogger.SetReportCaller(false)
	myLogger.SetLevel(myLogger.InfoLevel)
	myLogger.SetFormatter(&myLogger.TextFormatter{
		ForceColors:            true,
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
}

// One json object per line, for log shippers.
func ConfigProductionLogger() {
	myLogger.SetReportCaller(false)
	myLogger.SetLevel(myLogger.InfoLevel)
	myLogger.SetFormatter(&myLogger.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
}

// ConfigLogger applies a preset by name. Any other logrus level name
// ("warn", "error", "trace") keeps the production format at that level.
func ConfigLogger(name string) error {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PresetProduction:
		ConfigProductionLogger()
	case PresetDebug:
		ConfigDebugLogger()
	case PresetInfo:
		ConfigInfoLogger()
	default:
		lvl, err := myLogger.ParseLevel(name)
		if err != nil {
			return fmt.Errorf("unknown log level %q", name)
		}
		ConfigProductionLogger()
		myLogger.SetLevel(lvl)
	}
	return nil
}
