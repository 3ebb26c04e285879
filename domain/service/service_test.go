package service

// testLogger is a no-op outbound.Logger for tests that don't care
// about log output, so each test doesn't have to stand up the real
// async slog adapter.
type testLogger struct{}

func (testLogger) Error(msg string, args ...any) {}
func (testLogger) Warn(msg string, args ...any)  {}
func (testLogger) Info(msg string, args ...any)  {}
func (testLogger) Debug(msg string, args ...any) {}
func (testLogger) UpdateLevel(logLvl string)     {}
func (testLogger) Shutdown()                     {}
