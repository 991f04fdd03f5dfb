package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/backoffice/internal/app"
	_ "github.com/odyssey-erp/backoffice/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	assert.True(t, app.InTestMode())
	assert.NotPanics(t, main)
}
