package zapLogger

import (
	"bytes"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func resetInit(t *testing.T) {
	t.Helper()
	reset := func() {
		once = sync.Once{}
		logFile = nil
		initErr = nil
		Log = zap.NewNop().Sugar()
	}
	reset()
	t.Cleanup(reset)
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(zapcore.AddSync(&buf), false)
	log.Debugw("hidden")
	log.Infow("session started", "mode", "employee")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "session started")
	assert.Contains(t, out, "employee")
}

func TestInitOpensFile(t *testing.T) {
	resetInit(t)
	path := filepath.Join(t.TempDir(), "app.log")
	f, err := Init(path, true)
	require.NoError(t, err)
	require.NotNil(t, f)
	defer f.Close()

	Log.Infow("written to file")
	require.NoError(t, f.Sync())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "written to file")
}

func TestInitKeepsFirstError(t *testing.T) {
	resetInit(t)
	dir := t.TempDir()

	_, err := Init(filepath.Join(dir, "missing", "app.log"), false)
	require.Error(t, err)

	f, again := Init(filepath.Join(dir, "app.log"), false)
	assert.Nil(t, f)
	assert.Equal(t, err, again)
}

func TestInitReturnsSameFile(t *testing.T) {
	resetInit(t)
	dir := t.TempDir()

	first, err := Init(filepath.Join(dir, "app.log"), false)
	require.NoError(t, err)
	defer first.Close()

	second, err := Init(filepath.Join(dir, "other.log"), false)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestFiberLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(FiberLoggingMiddleware(&buf))
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "pong", string(body))
	assert.Contains(t, buf.String(), "/ping")
}
