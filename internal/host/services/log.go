package services

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel is the severity of a mod log message.
type LogLevel int

// Log levels, lowest first. The zero value is Trace.
const (
	LogTrace LogLevel = iota
	LogDebug
	LogInfo
	LogWarn
	LogError
	LogAlert
)

// String returns the level name.
func (l LogLevel) String() string {
	switch l {
	case LogTrace:
		return "Trace"
	case LogDebug:
		return "Debug"
	case LogInfo:
		return "Info"
	case LogWarn:
		return "Warn"
	case LogError:
		return "Error"
	case LogAlert:
		return "Alert"
	default:
		return "Unknown"
	}
}

// LogLevels maps level names to values for script access.
var LogLevels = map[string]LogLevel{
	"Trace": LogTrace,
	"Debug": LogDebug,
	"Info":  LogInfo,
	"Warn":  LogWarn,
	"Error": LogError,
	"Alert": LogAlert,
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LogTrace:
		return zerolog.TraceLevel
	case LogDebug:
		return zerolog.DebugLevel
	case LogInfo:
		return zerolog.InfoLevel
	case LogWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// LogManager owns the root logger and hands out one Monitor per mod.
type LogManager struct {
	mu       sync.Mutex
	root     zerolog.Logger
	monitors map[string]*Monitor
	verbose  map[string]bool
}

// NewLogManager creates a log manager. Mods listed in verboseMods get
// VerboseLog output.
func NewLogManager(root zerolog.Logger, verboseMods ...string) *LogManager {
	lm := &LogManager{
		root:     root,
		monitors: make(map[string]*Monitor),
		verbose:  make(map[string]bool),
	}
	for _, id := range verboseMods {
		lm.verbose[strings.ToLower(id)] = true
	}
	return lm
}

// Logger returns the root logger.
func (lm *LogManager) Logger() zerolog.Logger {
	return lm.root
}

// GetMonitor returns the monitor for a mod, creating it on first use.
func (lm *LogManager) GetMonitor(id, name string) *Monitor {
	key := strings.ToLower(id)

	lm.mu.Lock()
	defer lm.mu.Unlock()

	if m, ok := lm.monitors[key]; ok {
		return m
	}
	m := &Monitor{
		source:  name,
		logger:  lm.root.With().Str("mod", id).Logger(),
		verbose: lm.verbose[key],
		seen:    make(map[string]bool),
	}
	lm.monitors[key] = m
	return m
}

// Monitor writes log messages on behalf of one mod.
type Monitor struct {
	source  string
	logger  zerolog.Logger
	verbose bool

	mu   sync.Mutex
	seen map[string]bool
}

// NewMonitor creates a standalone monitor around a logger.
func NewMonitor(source string, logger zerolog.Logger) *Monitor {
	return &Monitor{
		source: source,
		logger: logger,
		seen:   make(map[string]bool),
	}
}

// Source returns the display name used for this monitor.
func (m *Monitor) Source() string {
	return m.source
}

// IsVerbose reports whether VerboseLog writes anything.
func (m *Monitor) IsVerbose() bool {
	return m.verbose
}

// Log writes a message at the given level.
func (m *Monitor) Log(msg string, level LogLevel) {
	ev := m.logger.WithLevel(level.zerolog())
	if level == LogAlert {
		ev = ev.Bool("alert", true)
	}
	ev.Msg(msg)
}

// LogOnce writes a message only the first time it is seen at that level.
func (m *Monitor) LogOnce(msg string, level LogLevel) {
	key := level.String() + "|" + msg

	m.mu.Lock()
	if m.seen[key] {
		m.mu.Unlock()
		return
	}
	m.seen[key] = true
	m.mu.Unlock()

	m.Log(msg, level)
}

// VerboseLog writes a trace message if verbose logging is enabled for the mod.
func (m *Monitor) VerboseLog(msg string) {
	if m.verbose {
		m.Log(msg, LogTrace)
	}
}

// Logger exposes the underlying structured logger.
func (m *Monitor) Logger() zerolog.Logger {
	return m.logger
}
