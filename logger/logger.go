package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sbr_monitor/config"
)

// LogLevel constants
const (
	DEBUG = "debug"
	INFO  = "info"
	WARN  = "warn"
	ERROR = "error"
)

var levelRank = map[string]int{
	DEBUG: 0,
	INFO:  1,
	WARN:  2,
	ERROR: 3,
}

var (
	mu        sync.RWMutex
	loggers   = map[string]*log.Logger{}
	logFile   *os.File
	logLevel  = INFO
	timeStamp = true
)

// Init opens the configured log file and routes every level to it,
// mirroring to the console when requested.
func Init(cfg config.LoggingConfig) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current working directory: %w", err)
	}

	logPath := cfg.LogFile
	if !filepath.IsAbs(logPath) {
		logPath = filepath.Join(cwd, logPath)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	var out, errOut io.Writer = f, f
	if cfg.LogToConsole {
		out = io.MultiWriter(os.Stdout, f)
		errOut = io.MultiWriter(os.Stderr, f)
	}

	mu.Lock()
	logFile = f
	logLevel = normalizeLevel(cfg.LogLevel)
	timeStamp = true
	loggers = map[string]*log.Logger{
		DEBUG: log.New(out, "", 0),
		INFO:  log.New(out, "", 0),
		WARN:  log.New(out, "", 0),
		ERROR: log.New(errOut, "", 0),
	}
	mu.Unlock()

	Printf("=== Session started at %s ===\n", time.Now().Format("2006-01-02 15:04:05"))
	Printf("Log file: %s (level %s, console %t)\n", logPath, logLevel, cfg.LogToConsole)
	LogDivider()

	return nil
}

// InitWriter routes all levels to w without timestamps. Used by tests and
// by commands that only print to the terminal.
func InitWriter(w io.Writer, level string) {
	mu.Lock()
	defer mu.Unlock()
	logFile = nil
	logLevel = normalizeLevel(level)
	timeStamp = false
	loggers = map[string]*log.Logger{
		DEBUG: log.New(w, "", 0),
		INFO:  log.New(w, "", 0),
		WARN:  log.New(w, "", 0),
		ERROR: log.New(w, "", 0),
	}
}

// Close closes the log file
func Close() error {
	mu.RLock()
	f := logFile
	mu.RUnlock()
	if f == nil {
		return nil
	}

	LogDivider()
	Printf("=== Session ended at %s ===\n\n", time.Now().Format("2006-01-02 15:04:05"))

	mu.Lock()
	logFile = nil
	loggers = map[string]*log.Logger{}
	mu.Unlock()
	return f.Close()
}

func normalizeLevel(level string) string {
	if _, ok := levelRank[level]; ok {
		return level
	}
	return INFO
}

// shouldLog determines if a message should be logged based on log level
func shouldLog(messageLevel string) bool {
	mu.RLock()
	current := levelRank[logLevel]
	mu.RUnlock()
	return levelRank[messageLevel] >= current
}

func emit(level, prefix, msg string) {
	if level != ERROR && !shouldLog(level) {
		return
	}

	mu.RLock()
	l := loggers[level]
	stamp := timeStamp
	mu.RUnlock()

	if stamp {
		prefix = time.Now().Format("15:04:05 ") + prefix
	}
	if l == nil {
		w := io.Writer(os.Stdout)
		if level == ERROR {
			w = os.Stderr
		}
		fmt.Fprint(w, prefix+msg)
		return
	}
	l.Print(prefix + msg)
}

// Printf prints formatted text to log (respects log level)
func Printf(format string, v ...interface{}) {
	emit(INFO, "", fmt.Sprintf(format, v...))
}

// Println prints a line to log (respects log level)
func Println(v ...interface{}) {
	emit(INFO, "", fmt.Sprintln(v...))
}

// Debugf prints formatted debug text
func Debugf(format string, v ...interface{}) {
	emit(DEBUG, "DEBUG: ", fmt.Sprintf(format, v...))
}

// Warnf prints formatted warning text
func Warnf(format string, v ...interface{}) {
	emit(WARN, "WARN: ", fmt.Sprintf(format, v...))
}

// Errorf prints formatted error text (always logged regardless of level)
func Errorf(format string, v ...interface{}) {
	emit(ERROR, "ERROR: ", fmt.Sprintf(format, v...))
}

// Fatalf prints formatted fatal error and exits (always logged)
func Fatalf(format string, v ...interface{}) {
	emit(ERROR, "FATAL: ", fmt.Sprintf(format, v...))
	Close()
	os.Exit(1)
}

// LogCommand logs the command being executed
func LogCommand(command string, args []string) {
	if len(args) > 1 {
		Printf("Command executed: %s %v\n", command, args[1:])
		return
	}
	Printf("Command executed: %s\n", command)
}

// LogDivider prints a divider line for better log organization
func LogDivider() {
	Println("------------------------------------------------------------")
}

// LogResult logs a result with status
func LogResult(operation string, success bool, details string) {
	status := "✅ " + operation + ": SUCCESS"
	if !success {
		status = "❌ " + operation + ": FAILED"
	}
	if details != "" {
		status += " - " + details
	}
	Println(status)
}

// LogProgress logs progress information
func LogProgress(current, total int, item string) {
	Printf("Progress: [%d/%d] %s\n", current, total, item)
}

// GetLogFileName returns the current log file name
func GetLogFileName() string {
	mu.RLock()
	defer mu.RUnlock()
	if logFile != nil {
		return logFile.Name()
	}
	return ""
}
