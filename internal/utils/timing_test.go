package utils

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestStageTimer(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	stop := StageTimer("measure", log)
	time.Sleep(2 * time.Millisecond)
	d := stop()

	assert.GreaterOrEqual(t, d, 2*time.Millisecond)
	assert.Contains(t, buf.String(), `"stage":"measure"`)
	assert.Contains(t, buf.String(), `"level":"debug"`)
}
