package bthost

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger interface {
	Info(...interface{})
	Debug(...interface{})
	Error(...interface{})
	Warn(...interface{})

	Infof(string, ...interface{})
	Debugf(string, ...interface{})
	Errorf(string, ...interface{})
	Warnf(string, ...interface{})

	ChildLogger(tags map[string]interface{}) Logger
}

// LogConfig selects level and destination of the default logger.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Timestamps bool
}

var logger Logger
var loggerMu sync.Mutex

func SetLogLevelMax() {
	l := GetLogger()

	if lg, ok := l.(*defaultLogger); ok {
		lg.Entry.Logger.SetLevel(logrus.TraceLevel)
	} else {
		l.Error("non-default logger, don't know how to set level")
	}
}

func SetLogger(l Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

func GetLogger() Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if logger == nil {
		logger = buildDefaultLogger()
	}

	return logger
}

// ConfigureLogger replaces the package logger with one built from cfg.
// Output goes to stderr unless a file is set, in which case it is rotated.
func ConfigureLogger(cfg LogConfig) error {
	lvl := logrus.InfoLevel
	if cfg.Level != "" {
		var err error
		lvl, err = logrus.ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
	}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
	}

	l := &logrus.Logger{
		Formatter: &logrus.TextFormatter{
			DisableTimestamp: !cfg.Timestamps,
			FullTimestamp:    cfg.Timestamps,
		},
		Level: lvl,
		Out:   out,
		Hooks: make(logrus.LevelHooks),
	}

	SetLogger(&defaultLogger{Entry: l.WithFields(map[string]interface{}{})})
	return nil
}

type defaultLogger struct {
	*logrus.Entry
}

func buildDefaultLogger() Logger {
	l := &logrus.Logger{
		Formatter: &logrus.TextFormatter{DisableTimestamp: true},
		Level:     logrus.InfoLevel,
		Out:       os.Stderr,
		Hooks:     make(logrus.LevelHooks),
	}

	return &defaultLogger{Entry: l.WithFields(map[string]interface{}{})}
}

func (d *defaultLogger) ChildLogger(ff map[string]interface{}) Logger {
	nl := &defaultLogger{d.Entry.WithFields(ff)}
	return nl
}

// Component returns a child of the package logger tagged with name.
func Component(name string) Logger {
	return GetLogger().ChildLogger(map[string]interface{}{"component": name})
}
