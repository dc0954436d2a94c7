package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("caseline", &buf, "warn")
	log.Info("hidden")
	log.WithField("report_id", "rep-1").Warn("sequence conflict")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "caseline", line["service"])
	assert.Equal(t, "warning", line["level"])
	assert.Equal(t, "sequence conflict", line["message"])
	assert.Equal(t, "rep-1", line["report_id"])
	assert.Contains(t, line, "timestamp")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, logrus.ErrorLevel, parseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, parseLevel(""))
}
