package opencode

import (
	"bytes"
	"io"

	"github.com/cabinetrun/cabinet/internal/sandbox"
)

// captureAll drains stdout and waits for exit, returning combined
// output, exit code, and any transport-level error.
func captureAll(exec *sandbox.Exec) (string, int, error) {
	var out bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(&out, exec.Stdout)
		close(done)
	}()
	code, err := exec.Wait()
	<-done
	return out.String(), code, err
}
