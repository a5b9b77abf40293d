package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("debug", &buf)
	require.NoError(t, err)

	clog := Component(log, "service")
	clog.Debug().Int("distance", 3).Msg("reduced")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "service", line["component"])
	assert.Equal(t, "reduced", line["message"])
	assert.Equal(t, 3.0, line["distance"])
}

func TestNewLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("", &buf)
	require.NoError(t, err)
	log.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())

	_, err = New("chatty", &buf)
	require.Error(t, err)
}

func TestBadgerAdapter(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("warn", &buf)
	require.NoError(t, err)

	b := Badger{Log: log}
	b.Infof("compaction %d\n", 1)
	assert.Zero(t, buf.Len())
	b.Warningf("slow write %s\n", "L0")
	assert.Contains(t, buf.String(), "slow write L0")
}
