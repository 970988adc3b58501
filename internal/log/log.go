// Package log provides structured logging for the botweave daemon.
// Entries are written as JSON lines to a file sink and republished on an
// in-process broker so the HTTP event stream can observe them live.
package log

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"botweave/internal/pubsub"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a config string to a Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Category groups related log messages.
type Category string

const (
	CatConfig    Category = "config"    // Configuration loading/saving
	CatDB        Category = "db"        // Database operations
	CatKV        Category = "kv"        // Key-value store operations
	CatAdapter   Category = "adapter"   // Adapter manager lifecycle
	CatQQ        Category = "qq"        // QQ webhook adapter and REST client
	CatOneBot    Category = "onebot"    // OneBot v11 WebSocket adapter
	CatEngine    Category = "engine"    // Workflow engine execution
	CatNode      Category = "node"      // Individual node execution
	CatDispatch  Category = "dispatch"  // Event routing to workflows
	CatScheduler Category = "scheduler" // Cron/interval schedule triggers
	CatAPI       Category = "api"       // Management HTTP API
	CatWebhook   Category = "webhook"   // Inbound webhook handling
	CatWatcher   Category = "watcher"   // File watcher events
	CatStorage   Category = "storage"   // data_storage node file backend
	CatRender    Category = "render"    // HTML template rendering
	CatSnippet   Category = "snippet"   // External snippet execution
	CatCache     Category = "cache"     // Cache operations
)

// Entry is one log record as written to the sink and the broker.
type Entry struct {
	Time     time.Time      `json:"ts"`
	Level    string         `json:"level"`
	Category string         `json:"category"`
	Message  string         `json:"message"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// String renders the entry as a single human-readable line.
func (e Entry) String() string {
	var sb strings.Builder
	sb.WriteString(e.Time.Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&sb, " [%s] [%s] %s", e.Level, e.Category, e.Message)
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Fields[k])
	}
	return sb.String()
}

// Logger writes entries to a file and republishes them on a broker.
type Logger struct {
	mu       sync.Mutex
	file     *os.File
	enabled  bool
	minLevel Level
}

var (
	defaultLogger *Logger
	once          sync.Once

	// broker exists independently of Init so subscribers work in tests
	// and before the file sink is opened.
	broker = pubsub.New[Entry](0)
)

// Init opens the file sink under dir and installs the global logger.
// Returns a cleanup function to close the log file.
func Init(dir string) (func(), error) {
	var initErr error
	once.Do(func() {
		defaultLogger, initErr = newLogger(dir)
	})
	if initErr != nil {
		return nil, initErr
	}
	if defaultLogger == nil {
		return nil, fmt.Errorf("logger initialization failed or already attempted")
	}
	return func() {
		if defaultLogger != nil && defaultLogger.file != nil {
			_ = defaultLogger.file.Close()
		}
	}, nil
}

func newLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, "botweave.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: path derives from the configured log dir
	if err != nil {
		return nil, err
	}

	return &Logger{
		file:     f,
		enabled:  true,
		minLevel: LevelDebug,
	}, nil
}

// SetEnabled toggles the file sink on/off. The broker keeps publishing.
func SetEnabled(enabled bool) {
	if defaultLogger == nil {
		return
	}
	defaultLogger.mu.Lock()
	defaultLogger.enabled = enabled
	defaultLogger.mu.Unlock()
}

// SetMinLevel sets the minimum level that reaches the file sink.
func SetMinLevel(level Level) {
	if defaultLogger == nil {
		return
	}
	defaultLogger.mu.Lock()
	defaultLogger.minLevel = level
	defaultLogger.mu.Unlock()
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	log(LevelDebug, cat, msg, fields...)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	log(LevelInfo, cat, msg, fields...)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	log(LevelWarn, cat, msg, fields...)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	log(LevelError, cat, msg, fields...)
}

// ErrorErr logs an error with the error value.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	errText := "<nil>"
	if err != nil {
		errText = err.Error()
	}
	log(LevelError, cat, msg, append(fields, "error", errText)...)
}

func log(level Level, cat Category, msg string, fields ...any) {
	entry := Entry{
		Time:     time.Now(),
		Level:    level.String(),
		Category: string(cat),
		Message:  msg,
		Fields:   fieldMap(fields),
	}

	broker.Publish(entry)

	if defaultLogger == nil {
		return
	}

	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()

	if !defaultLogger.enabled || level < defaultLogger.minLevel {
		return
	}
	if defaultLogger.file == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		// A field value resisted JSON encoding; stringify and retry.
		for k, v := range entry.Fields {
			entry.Fields[k] = fmt.Sprintf("%v", v)
		}
		data, err = json.Marshal(entry)
		if err != nil {
			return
		}
	}
	data = append(data, '\n')
	_, _ = defaultLogger.file.Write(data)
}

// fieldMap pairs up variadic key/values. An odd trailing key maps to <missing>.
func fieldMap(fields []any) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	m := make(map[string]any, len(fields)/2+1)
	for i := 0; i+1 < len(fields); i += 2 {
		m[fmt.Sprintf("%v", fields[i])] = fields[i+1]
	}
	if len(fields)%2 != 0 {
		m[fmt.Sprintf("%v", fields[len(fields)-1])] = "<missing>"
	}
	return m
}

// Subscribe returns a channel of log entries.
// The channel is closed when ctx is cancelled.
func Subscribe(ctx context.Context) <-chan Entry {
	return broker.Subscribe(ctx)
}

// SafeGo runs fn on a new goroutine and converts panics into error entries
// carrying the goroutine name and stack.
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				Error(CatAdapter, "goroutine panic", "name", name, "panic", fmt.Sprintf("%v", r), "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
