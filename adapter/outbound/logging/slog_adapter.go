package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nodefleet/conexus/config"
	"github.com/nodefleet/conexus/domain/port/outbound"
)

// LogLevel is the fabric's own level enum, kept separate from
// slog.Level so callers of the Logger port never need to import
// log/slog themselves.
type LogLevel int

const (
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// LogMessage is one log entry queued for the background writer.
type LogMessage struct {
	Level LogLevel
	Msg   string
	Args  []any
	Time  time.Time
}

// SlogAdapter is the fabric's default Logger: a log/slog.Logger fed
// from a buffered channel drained on its own goroutine, so dispatch,
// circuit breaker transitions, and retry attempts never block on
// writing to stdout. The minimum level lives in a single slog.LevelVar
// so UpdateLevel takes effect for both the JSON handler and shouldLog
// without keeping two copies of the threshold in sync by hand.
type SlogAdapter struct {
	logger    *slog.Logger
	config    *config.Config
	logChan   chan LogMessage
	ctx       context.Context
	cancel    context.CancelFunc
	slogLevel *slog.LevelVar
}

func NewSlogAdapter(config *config.Config) outbound.Logger {
	ctx, cancel := context.WithCancel(context.Background())

	levelVar := &slog.LevelVar{}
	levelVar.Set(slogLevelFor(parseLogLevel(config.General.LogLevel)))

	handlerOpts := &slog.HandlerOptions{Level: levelVar}

	adapter := &SlogAdapter{
		logger:    slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts)),
		config:    config,
		logChan:   make(chan LogMessage, config.Logging.ChannelSize),
		ctx:       ctx,
		cancel:    cancel,
		slogLevel: levelVar,
	}

	go adapter.processLogs()

	return adapter
}

// UpdateLevel changes the minimum level logged, case-insensitively. It
// keeps config.General.LogLevel/config.Logging.Level in sync purely
// for observability; shouldLog and the slog handler both consult
// slogLevel, the single source of truth for what actually gets logged.
func (s *SlogAdapter) UpdateLevel(logLvl string) {
	normalizedLevel := strings.ToLower(logLvl)

	s.config.General.LogLevel = normalizedLevel
	s.config.Logging.Level = strings.ToUpper(normalizedLevel)

	s.slogLevel.Set(slogLevelFor(parseLogLevel(normalizedLevel)))

	s.Info("logger level updated", "newLevel", normalizedLevel)
}

// processLogs drains logChan onto the slog handler until ctx is
// cancelled, then flushes whatever is left queued before returning.
func (s *SlogAdapter) processLogs() {
	for {
		select {
		case msg := <-s.logChan:
			s.writeLog(msg)
		case <-s.ctx.Done():
			for len(s.logChan) > 0 {
				msg := <-s.logChan
				s.writeLog(msg)
			}
			return
		}
	}
}

// parseLogLevel maps a config string onto the fabric's own LogLevel
// enum, case-insensitively. An unrecognized string defaults to
// LevelError.
func parseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelError
	}
}

// slogLevelFor maps the fabric's LogLevel onto the slog.Level ordering
// the handler and LevelVar actually compare against.
func slogLevelFor(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// writeLog hands one queued entry to the underlying slog.Logger.
func (s *SlogAdapter) writeLog(msg LogMessage) {
	switch msg.Level {
	case LevelError:
		s.logger.Error(msg.Msg, msg.Args...)
	case LevelWarn:
		s.logger.Warn(msg.Msg, msg.Args...)
	case LevelInfo:
		s.logger.Info(msg.Msg, msg.Args...)
	case LevelDebug:
		s.logger.Debug(msg.Msg, msg.Args...)
	}
}

// sendLog enqueues msg without blocking; a full channel means the
// writer goroutine is behind, and dropping beats stalling the caller.
func (s *SlogAdapter) sendLog(level LogLevel, msg string, args ...any) {
	select {
	case s.logChan <- LogMessage{
		Level: level,
		Msg:   msg,
		Args:  args,
		Time:  time.Now(),
	}:
	default:
	}
}

// shouldLog reports whether level clears the adapter's current
// threshold, read from the same slogLevel the JSON handler itself
// filters on.
func (s *SlogAdapter) shouldLog(level LogLevel) bool {
	return slogLevelFor(level) >= s.slogLevel.Level()
}

func (s *SlogAdapter) Error(msg string, args ...any) {
	if !s.shouldLog(LevelError) {
		return
	}
	s.sendLog(LevelError, msg, args...)
}

func (s *SlogAdapter) Warn(msg string, args ...any) {
	if !s.shouldLog(LevelWarn) {
		return
	}
	s.sendLog(LevelWarn, msg, args...)
}

func (s *SlogAdapter) Info(msg string, args ...any) {
	if !s.shouldLog(LevelInfo) {
		return
	}
	s.sendLog(LevelInfo, msg, args...)
}

func (s *SlogAdapter) Debug(msg string, args ...any) {
	if !s.shouldLog(LevelDebug) {
		return
	}
	s.sendLog(LevelDebug, msg, args...)
}

func (s *SlogAdapter) Shutdown() {
	s.cancel()
}
