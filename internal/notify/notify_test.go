package notify

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	n := &LogNotifier{Logger: &logger}

	n.NotifySuccess("backup", 2*time.Second, []string{"email"})
	assert.Contains(t, buf.String(), `"task":"backup"`)
	assert.Contains(t, buf.String(), "Task succeeded")

	buf.Reset()
	n.NotifyFailure("backup", errors.New("exit 1"), 3, 3, nil)
	assert.Contains(t, buf.String(), `"attempt":3`)
	assert.Contains(t, buf.String(), "Task failed")
}
