package driver

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
)

// LogStderr forwards the helper's stderr lines to the logger until the pipe closes.
func LogStderr(runtime string, stderr io.Reader, logger *slog.Logger) error {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		logger.Debug(fmt.Sprintf("%s >> %s", runtime, line))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		return fmt.Errorf("error reading stderr: %w", err)
	}
	return nil
}
