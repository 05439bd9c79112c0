package zapLogger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once    sync.Once
	logFile *os.File
	initErr error
	Log     = zap.NewNop().Sugar()
)

// Init opens the log file at path and points Log at stdout and the file.
// Later calls return the outcome of the first one.
func Init(path string, debug bool) (*os.File, error) {
	once.Do(func() {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			initErr = fmt.Errorf("cannot open log file: %w", err)
			return
		}
		logFile = f
		Log = New(zapcore.AddSync(f), debug)
	})
	return logFile, initErr
}

// New builds the console-encoded sugared logger writing to stdout and w.
func New(w zapcore.WriteSyncer, debug bool) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout), w),
		level,
	)
	return zap.New(core, zap.AddCaller()).Sugar()
}

// FiberLoggingMiddleware returns Fiber's built-in logger middleware writing logs to stdout and given logFile
func FiberLoggingMiddleware(logFile io.Writer) fiber.Handler {
	return logger.New(logger.Config{
		Output:     io.MultiWriter(os.Stdout, logFile),
		Format:     "${time} | ${status} | ${method} | ${path} | ${latency} | ${locals:requestid}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	})
}
