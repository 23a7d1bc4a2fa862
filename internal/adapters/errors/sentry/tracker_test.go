package sentry

import (
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"

	"lendingrisk/pkg/errors"
)

func TestConvertLevel(t *testing.T) {
	assert.Equal(t, sentry.LevelWarning, convertLevel(errors.LevelWarning))
	assert.Equal(t, sentry.LevelFatal, convertLevel(errors.LevelFatal))
	assert.Equal(t, sentry.LevelInfo, convertLevel(errors.Level("unknown")))
}
