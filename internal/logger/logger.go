package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

type levelStyle struct {
	name     string
	level    *color.Color
	category *color.Color
}

var styles = map[LogLevel]levelStyle{
	DEBUG: {"DEBUG", color.New(color.FgCyan), color.New(color.FgCyan, color.Bold)},
	INFO:  {"INFO", color.New(color.FgGreen), color.New(color.FgGreen, color.Bold)},
	WARN:  {"WARN", color.New(color.FgYellow), color.New(color.FgYellow, color.Bold)},
	ERROR: {"ERROR", color.New(color.FgRed), color.New(color.FgRed, color.Bold)},
	FATAL: {"FATAL", color.New(color.FgRed, color.Bold), color.New(color.FgRed, color.Bold)},
}

var (
	timeColor   = color.New(color.FgBlue)
	sourceColor = color.New(color.FgMagenta)
)

func (lv LogLevel) String() string {
	if s, ok := styles[lv]; ok {
		return s.name
	}
	return "INFO"
}

// LogEntry is one JSON line in the log file. Fields carries the ids the
// domain helpers attach (ticket_id, tx_hash, ...).
type LogEntry struct {
	Timestamp string            `json:"timestamp"`
	Level     string            `json:"level"`
	Category  string            `json:"category"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	File      string            `json:"file,omitempty"`
	Line      int               `json:"line,omitempty"`
}

type Logger struct {
	mu       sync.Mutex
	terminal io.Writer
	minLevel LogLevel

	dir     string
	day     string
	logFile *os.File
}

const fileDateLayout = "2006-01-02"

// NewLogger writes colored lines to stdout and JSON lines to
// dir/ticket-lifecycle-<date>.log, starting a new file each UTC day.
func NewLogger(dir string) *Logger {
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatal("Failed to create logs directory:", err)
	}

	l := &Logger{terminal: os.Stdout, minLevel: DEBUG, dir: dir}
	if err := l.rotate(time.Now().UTC()); err != nil {
		log.Fatal("Failed to create log file:", err)
	}
	l.Info("LOGGER", fmt.Sprintf("Writing JSON logs under %s", dir))
	return l
}

// New returns a logger that only writes terminal lines to w.
func New(w io.Writer) *Logger {
	return &Logger{terminal: w, minLevel: DEBUG}
}

// Discard is a logger that drops everything.
func Discard() *Logger {
	return New(io.Discard)
}

// SetLevel drops entries below level.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// ParseLevel maps a LOG_LEVEL value onto a LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// rotate swaps the log file when the day changes. Callers hold mu, except
// NewLogger before the logger is shared.
func (l *Logger) rotate(now time.Time) error {
	day := now.Format(fileDateLayout)
	if l.dir == "" || day == l.day {
		return nil
	}
	name := filepath.Join(l.dir, fmt.Sprintf("ticket-lifecycle-%s.log", day))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	if l.logFile != nil {
		l.logFile.Close()
	}
	l.logFile = f
	l.day = day
	return nil
}

func (l *Logger) log(level LogLevel, category, message string, fields map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.minLevel {
		return
	}

	now := time.Now().UTC()
	entry := LogEntry{
		Timestamp: now.Format("2006-01-02T15:04:05.000Z"),
		Level:     level.String(),
		Category:  strings.ToUpper(category),
		Message:   message,
		Fields:    fields,
	}
	// skip log and the exported method that called it
	if _, file, line, ok := runtime.Caller(2); ok {
		entry.File, entry.Line = filepath.Base(file), line
	}

	fmt.Fprint(l.terminal, formatTerminal(level, entry))

	if l.dir == "" {
		return
	}
	if err := l.rotate(now); err != nil {
		fmt.Fprintf(l.terminal, "log rotation failed: %v\n", err)
		return
	}
	if line, err := json.Marshal(entry); err == nil {
		l.logFile.Write(append(line, '\n'))
	}
}

func formatTerminal(level LogLevel, entry LogEntry) string {
	style, ok := styles[level]
	if !ok {
		style = styles[INFO]
	}

	var b strings.Builder
	b.WriteString(timeColor.Sprint(entry.Timestamp[11:19]))
	b.WriteByte(' ')
	b.WriteString(style.level.Sprintf("%-5s", entry.Level))
	b.WriteByte(' ')
	b.WriteString(style.category.Sprintf("[%-10s]", entry.Category))
	b.WriteByte(' ')
	b.WriteString(entry.Message)
	if entry.File != "" && entry.Line > 0 {
		b.WriteString(sourceColor.Sprintf(" (%s:%d)", entry.File, entry.Line))
	}
	b.WriteByte('\n')
	return b.String()
}

func (l *Logger) Debug(category, message string) {
	l.log(DEBUG, category, message, nil)
}

func (l *Logger) Info(category, message string) {
	l.log(INFO, category, message, nil)
}

func (l *Logger) Warn(category, message string) {
	l.log(WARN, category, message, nil)
}

func (l *Logger) Error(category, message string) {
	l.log(ERROR, category, message, nil)
}

// Fatal logs, closes the file and exits with status 1.
func (l *Logger) Fatal(category, message string) {
	l.log(FATAL, category, message, nil)
	l.Close()
	os.Exit(1)
}

// LogTicket records a completed lifecycle step for ticketID.
func (l *Logger) LogTicket(action, ticketID, message string) {
	l.log(INFO, "TICKET", fmt.Sprintf("[%s] %s - %s", action, ticketID, message),
		map[string]string{"action": action, "ticket_id": ticketID})
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.log(INFO, "API", fmt.Sprintf("%s %s - %s (%s)", method, path, status, duration),
		map[string]string{"method": method, "path": path, "status": status})
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.log(INFO, "KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message),
		map[string]string{"action": action, "topic": topic})
}

func (l *Logger) LogLedger(action, txHash, message string) {
	l.log(INFO, "LEDGER", fmt.Sprintf("[%s] %s - %s", action, txHash, message),
		map[string]string{"action": action, "tx_hash": txHash})
}

func (l *Logger) LogDatabase(operation, table, message string) {
	l.log(INFO, "DATABASE", fmt.Sprintf("[%s] %s - %s", operation, table, message),
		map[string]string{"operation": operation, "table": table})
}

func (l *Logger) LogSecurity(event, message string) {
	l.log(WARN, "SECURITY", fmt.Sprintf("[%s] %s", event, message),
		map[string]string{"event": event})
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile != nil {
		l.logFile.Close()
		l.logFile = nil
		l.day = ""
		l.dir = ""
	}
}
