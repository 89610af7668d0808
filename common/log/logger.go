package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

const (
	defaultLogFilePath  = "./logs/takahome.log"
	defaultMaxSizeBytes = 20 * 1024 * 1024
	envLogFilePath      = "LOG_FILE_PATH"
	envLogMaxSizeMB     = "LOG_MAX_SIZE_MB"
	envLogFormat        = "LOG_FORMAT"
	envLogLevel         = "LOG_LEVEL"
	envLogFileDisabled  = "LOG_FILE_DISABLED"
	logFormatText       = "text"
	logFormatJSON       = "json"
	terminalColorReset  = "\033[0m"
	terminalColorGray   = "\033[90m"
	terminalColorGreen  = "\033[32m"
	terminalColorYellow = "\033[33m"
	terminalColorRed    = "\033[31m"
)

func (lv Level) String() string {
	switch lv {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name to a Level, defaulting to InfoLevel.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Options configures the process logger. Zero values keep the env defaults.
type Options struct {
	Level        string
	Format       string
	FilePath     string
	DisableFile  bool
	MaxSizeBytes int64
	Console      io.Writer
}

type logger struct {
	mu           sync.Mutex
	level        Level
	filePath     string
	fileDisabled bool
	maxSizeBytes int64
	format       string
	console      io.Writer
	colorize     bool
	file         *os.File
}

var (
	globalMu sync.RWMutex
	global   = newLoggerFromEnv()
)

func newLoggerFromEnv() *logger {
	path := strings.TrimSpace(os.Getenv(envLogFilePath))
	if path == "" {
		path = defaultLogFilePath
	}

	maxSizeBytes := int64(defaultMaxSizeBytes)
	if raw := strings.TrimSpace(os.Getenv(envLogMaxSizeMB)); raw != "" {
		if sizeMB, err := strconv.Atoi(raw); err == nil && sizeMB > 0 {
			maxSizeBytes = int64(sizeMB) * 1024 * 1024
		}
	}
	format := strings.ToLower(strings.TrimSpace(os.Getenv(envLogFormat)))
	if format != logFormatJSON {
		format = logFormatText
	}
	fileDisabled, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(envLogFileDisabled)))

	return &logger{
		level:        ParseLevel(os.Getenv(envLogLevel)),
		filePath:     path,
		fileDisabled: fileDisabled,
		maxSizeBytes: maxSizeBytes,
		format:       format,
		console:      os.Stdout,
		colorize:     true,
	}
}

// Configure replaces the process logger. The previous log file is closed.
func Configure(opts Options) {
	next := newLoggerFromEnv()
	if opts.Level != "" {
		next.level = ParseLevel(opts.Level)
	}
	if f := strings.ToLower(strings.TrimSpace(opts.Format)); f == logFormatJSON || f == logFormatText {
		next.format = f
	}
	if opts.FilePath != "" {
		next.filePath = opts.FilePath
	}
	if opts.DisableFile {
		next.fileDisabled = true
	}
	if opts.MaxSizeBytes > 0 {
		next.maxSizeBytes = opts.MaxSizeBytes
	}
	if opts.Console != nil {
		next.console = opts.Console
		next.colorize = false
	}

	globalMu.Lock()
	prev := global
	global = next
	globalMu.Unlock()
	prev.close()
}

func current() *logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

func Debugf(format string, args ...any) {
	current().logf(DebugLevel, format, args...)
}

func Infof(format string, args ...any) {
	current().logf(InfoLevel, format, args...)
}

func Warnf(format string, args ...any) {
	current().logf(WarnLevel, format, args...)
}

func Errorf(format string, args ...any) {
	current().logf(ErrorLevel, format, args...)
}

func (l *logger) logf(lv Level, format string, args ...any) {
	if lv < l.level {
		return
	}
	ts := time.Now().Format(time.RFC3339Nano)
	caller := callerFuncName(3)
	message := fmt.Sprintf(format, args...)
	line := l.formatLine(ts, lv, caller, message)

	l.mu.Lock()
	if l.colorize {
		fmt.Fprintln(l.console, colorForLevel(lv)+line+terminalColorReset)
	} else {
		fmt.Fprintln(l.console, line)
	}
	l.mu.Unlock()
	if !l.fileDisabled {
		l.writeToFile(line + "\n")
	}
}

func (l *logger) formatLine(ts string, lv Level, caller, message string) string {
	if l.format == logFormatJSON {
		payload := map[string]string{
			"timestamp": ts,
			"level":     lv.String(),
			"caller":    caller,
			"message":   message,
		}
		if b, err := json.Marshal(payload); err == nil {
			return string(b)
		}
	}
	return fmt.Sprintf("%s:%s:%s:%s", ts, lv, caller, message)
}

func (l *logger) writeToFile(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureOpen(); err != nil {
		fmt.Fprintf(os.Stderr, "logger open file error: %v\n", err)
		return
	}

	if err := l.rotateIfNeeded(int64(len(line))); err != nil {
		fmt.Fprintf(os.Stderr, "logger rotate error: %v\n", err)
		return
	}

	if _, err := l.file.WriteString(line); err != nil {
		fmt.Fprintf(os.Stderr, "logger write error: %v\n", err)
	}
}

func (l *logger) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}

func (l *logger) ensureOpen() error {
	if l.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.filePath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

func (l *logger) rotateIfNeeded(incomingSize int64) error {
	stat, err := l.file.Stat()
	if err != nil {
		return err
	}
	if stat.Size() == 0 || stat.Size()+incomingSize <= l.maxSizeBytes {
		return nil
	}

	if err := l.file.Close(); err != nil {
		return err
	}
	l.file = nil

	rotatedPath, err := nextRotatedPath(l.filePath, time.Now())
	if err != nil {
		return err
	}
	if err := os.Rename(l.filePath, rotatedPath); err != nil {
		return err
	}

	f, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

func nextRotatedPath(currentPath string, now time.Time) (string, error) {
	dir := filepath.Dir(currentPath)
	ext := filepath.Ext(currentPath)
	base := strings.TrimSuffix(filepath.Base(currentPath), ext)
	ts := now.Format("20060102_150405")

	for index := 1; ; index++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%s_%d%s", base, ts, index, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
	}
}

func callerFuncName(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown"
	}
	fullName := fn.Name()
	parts := strings.Split(fullName, "/")
	return parts[len(parts)-1]
}

func colorForLevel(lv Level) string {
	switch lv {
	case DebugLevel:
		return terminalColorGray
	case InfoLevel:
		return terminalColorGreen
	case WarnLevel:
		return terminalColorYellow
	case ErrorLevel:
		return terminalColorRed
	default:
		return terminalColorReset
	}
}
