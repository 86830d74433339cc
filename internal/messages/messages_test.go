package messages

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"vn.io.arda/notification-client/internal/domain"
)

func TestBadge(t *testing.T) {
	assert.Equal(t, "", Badge(0))
	assert.Equal(t, "1 unread", Badge(1))
	assert.Equal(t, "99 unread", Badge(99))
	assert.Equal(t, "99+ unread", Badge(100))
}

func TestConnectionLabel(t *testing.T) {
	assert.Equal(t, "", ConnectionLabel(domain.ConnConnected, ""))
	assert.Equal(t, "(connecting)", ConnectionLabel(domain.ConnConnecting, "stale"))
	assert.Equal(t, "(offline)", ConnectionLabel(domain.ConnDisconnected, ""))
	assert.Equal(t, "(offline: dial refused)", ConnectionLabel(domain.ConnErrored, "dial refused"))
}

func TestFetchError(t *testing.T) {
	assert.Equal(t, "", FetchError(nil))
	assert.Equal(t, "Failed to load notifications: boom", FetchError(errors.New("boom")))
}
