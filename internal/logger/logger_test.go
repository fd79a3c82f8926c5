package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dioptratool/dioptra-web-sub000/internal/config"
)

func TestNewLoggerServiceDefaults(t *testing.T) {
	l := NewLoggerService(map[string]interface{}{})

	assert.Equal(t, "logger", l.Name())
	assert.Equal(t, config.DefaultLogFolder, l.folder)
	assert.Equal(t, int64(config.DefaultLogMaxFileMB)<<20, l.maxFileBytes)
	assert.Equal(t, config.DefaultLogRetentionDays, l.retentionDays)
}

func TestNewLoggerServiceReadsYAMLNumbers(t *testing.T) {
	// yaml.v3 decodes numbers into interface{} as int, but JSON-sourced
	// config hands over float64. Both must work.
	l := NewLoggerService(map[string]interface{}{
		"folder_path":    "/var/log/dioptra",
		"max_file_mb":    float64(25),
		"retention_days": 7,
	})

	assert.Equal(t, "/var/log/dioptra", l.folder)
	assert.Equal(t, int64(25)<<20, l.maxFileBytes)
	assert.Equal(t, 7, l.retentionDays)
}

func TestIntOptionIgnoresZeroAndJunk(t *testing.T) {
	assert.Equal(t, 30, intOption(map[string]interface{}{"days": 0}, "days", 30))
	assert.Equal(t, 30, intOption(map[string]interface{}{"days": "ten"}, "days", 30))
	assert.Equal(t, 30, intOption(map[string]interface{}{}, "days", 30))
}
