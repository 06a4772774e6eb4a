package logger

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/joeydtaylor/steeze-pool/pkg/library"
)

// EnvLogDir overrides the directory rolling log files are written to.
const EnvLogDir = "STEEZE_LOG_DIR"


func ensureLogDir() string {
	dir := strings.TrimSpace(os.Getenv(EnvLogDir))
	if dir == "" {
		dir = "log"
	}
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

// FileName prefixes n with the worker id on worker processes so every
// process of the pool rolls its own files.
func FileName(n string) string {
	if id := strings.TrimSpace(os.Getenv(library.EnvWorkerID)); id != "" {
		return "worker-" + id + "-" + n
	}
	return n
}

// NewLog tees JSON logs to a rolling file under the log dir and to stderr.
// Stdout stays free for the worker RPC stream.
func NewLog(n string) *zap.Logger {
	dir := ensureLogDir()

	cfg := zap.NewProductionEncoderConfig()
	cfg.MessageKey = zapcore.OmitKey

	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(dir, FileName(n)),
		MaxSize:    50, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
	})

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, zap.InfoLevel),
		zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.Lock(os.Stderr), zap.InfoLevel),
	)
	l := zap.New(core)
	if id := os.Getenv(library.EnvWorkerID); id != "" {
		l = l.With(zap.String("worker", id))
	}
	return l
}
