package simulate

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/pulse/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to stdout and, when logFile is set, to
// that file too. The returned function closes the file.
func SetupLogging(logFile, format string) (func() error, error) {
	if logFile == "" {
		return func() error { return nil }, logger.InitWith(os.Stdout, format)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWith(io.MultiWriter(os.Stdout, file), format); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return file.Close, nil
}
