package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForConfig(t *testing.T) {
	assert.IsType(t, Noop{}, ForConfig(false, false))
	assert.IsType(t, Noop{}, ForConfig(false, true), "disabled wins over headless")
	assert.IsType(t, LogOnly{}, ForConfig(true, true))
	assert.IsType(t, Desktop{}, ForConfig(true, false))
}

func TestLogOnlyNotifyNeverFails(t *testing.T) {
	assert.NoError(t, LogOnly{}.Notify("Target reached", "BUY 10 AAPL @ 175"))
	assert.NoError(t, Noop{}.Notify("ignored", "ignored"))
}
