package canbus

import (
	"context"
	"log/slog"
)

// LogOption is a bitmask for selecting which operations to log.
type LogOption uint8

const (
	LogNone LogOption = 0
	LogRead LogOption = 1 << iota
	LogWrite
	LogAll = LogRead | LogWrite
)

// NewLoggedBus wraps the given Bus and logs selected operations at the given
// level. If filter is nil, all frames are considered for logging.
func NewLoggedBus(inner Bus, logger *slog.Logger, level slog.Level, opts LogOption, filter FrameFilter) Bus {
	return &loggedBus{
		inner:  inner,
		logger: logger,
		level:  level,
		opts:   opts,
		filter: filter,
	}
}

// NewLoggedDriver is NewLoggedBus for a Driver; Init outcomes are logged too.
func NewLoggedDriver(inner Driver, logger *slog.Logger, level slog.Level, opts LogOption, filter FrameFilter) Driver {
	return &loggedDriver{
		loggedBus: loggedBus{
			inner:  inner,
			logger: logger,
			level:  level,
			opts:   opts,
			filter: filter,
		},
		driver: inner,
	}
}

type loggedBus struct {
	inner  Bus
	logger *slog.Logger
	level  slog.Level
	opts   LogOption
	filter FrameFilter
}

func (l *loggedBus) frameAttrs(f Frame) []any {
	return []any{
		"id", f.ID,
		"extended", f.Extended,
		"rtr", f.RTR,
		"len", int(f.Len),
		"frame", f.String(),
	}
}

// Send logs the frame and the result when write logging is enabled.
func (l *loggedBus) Send(ctx context.Context, frame Frame) error {
	if l.opts&LogWrite != 0 && (l.filter == nil || l.filter(frame)) {
		l.logger.Log(ctx, l.level, "canbus send", l.frameAttrs(frame)...)
	}
	err := l.inner.Send(ctx, frame)
	if l.opts&LogWrite != 0 && err != nil {
		l.logger.Log(ctx, slog.LevelError, "canbus send error",
			"id", frame.ID,
			"error", err,
		)
	}
	return err
}

// Receive logs the received frame or error when read logging is enabled.
func (l *loggedBus) Receive(ctx context.Context) (Frame, error) {
	f, err := l.inner.Receive(ctx)
	if l.opts&LogRead == 0 {
		return f, err
	}
	switch {
	case err != nil && ctx.Err() == nil:
		l.logger.Log(ctx, slog.LevelError, "canbus receive error", "error", err)
	case err == nil && (l.filter == nil || l.filter(f)):
		l.logger.Log(ctx, l.level, "canbus receive", l.frameAttrs(f)...)
	}
	return f, err
}

// Close forwards to the inner Bus without logging.
func (l *loggedBus) Close() error {
	return l.inner.Close()
}

type loggedDriver struct {
	loggedBus
	driver Driver
}

func (l *loggedDriver) Init(bitrate uint32) error {
	err := l.driver.Init(bitrate)
	if err != nil {
		l.logger.Error("canbus init error", "bitrate", bitrate, "error", err)
	} else {
		l.logger.Log(context.Background(), l.level, "canbus init", "bitrate", bitrate)
	}
	return err
}

func (l *loggedDriver) ErrorCount() uint64 {
	return l.driver.ErrorCount()
}
