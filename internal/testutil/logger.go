package testutil

import "log/slog"

// DiscardLogger returns a logger that drops everything. Constructors in
// this repo take a *slog.Logger; passing this keeps test output quiet
// without nil checks in the code under test.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
