package watcher

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aryanr/restock-watcher/internal/browser"
	"github.com/aryanr/restock-watcher/internal/catalog"
	"github.com/aryanr/restock-watcher/internal/config"
	"github.com/aryanr/restock-watcher/internal/probe"
	"github.com/aryanr/restock-watcher/internal/purchase"
	"github.com/aryanr/restock-watcher/internal/status"
	"github.com/stretchr/testify/assert"
)

func TestSeverityOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Severity
	}{
		{"browser launch is fatal", browser.ErrLaunch, SeverityFatal},
		{"bad config is fatal", config.ErrInvalid, SeverityFatal},
		{"unknown catalog label is fatal", catalog.ErrNotFound, SeverityFatal},
		{"selector miss", probe.ErrSelectorMiss, SeveritySelectorMiss},
		{"non-interactive probe", probe.ErrNotInteractive, SeveritySelectorMiss},
		{"name mismatch", purchase.ErrNameMismatch, SeverityMismatch},
		{"store write failure", status.ErrWrite, SeverityStoreIO},
		{"navigation failure is transient", probe.ErrNavigation, SeverityTransient},
		{"arbitrary error is transient", errors.New("connection reset"), SeverityTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SeverityOf(tt.err))
		})
	}
}

func TestSeverityOfWrapped(t *testing.T) {
	wrapped := fmt.Errorf("cycle 12: %w", status.ErrWrite)
	assert.Equal(t, SeverityStoreIO, SeverityOf(wrapped))

	doubly := fmt.Errorf("startup: %w", fmt.Errorf("chromium: %w", browser.ErrLaunch))
	assert.Equal(t, SeverityFatal, SeverityOf(doubly))
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "transient", SeverityTransient.String())
	assert.Equal(t, "fatal", SeverityFatal.String())
	assert.Equal(t, "selector_miss", SeveritySelectorMiss.String())
	assert.Equal(t, "mismatch", SeverityMismatch.String())
	assert.Equal(t, "store_io", SeverityStoreIO.String())
}
