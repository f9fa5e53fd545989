package services

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"ssh-guardian-dashboard/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Notification{}, &models.SimulationRun{}, &models.Scenario{}, &models.DashboardSettings{}))
	return db
}

func TestSeenSetDedupe(t *testing.T) {
	s := NewSeenSet()
	assert.False(t, s.Seen("a"))
	assert.True(t, s.Seen("a"))
	assert.False(t, s.Seen("b"))
	assert.Equal(t, 2, s.Len())
}

func TestSeenSetTrimsToMostRecent(t *testing.T) {
	s := NewSeenSet()
	for i := 0; i < 101; i++ {
		assert.False(t, s.Seen(fmt.Sprintf("key-%d", i)))
	}

	// crossing the 100 cap trims to the most recent 50
	assert.Equal(t, 50, s.Len())

	// oldest keys were dropped and can be seen again
	assert.False(t, s.Seen("key-0"))

	// the most recent keys survived the trim
	assert.True(t, s.Seen("key-100"))
	assert.True(t, s.Seen("key-60"))
}

func TestNotifyDedupesByKey(t *testing.T) {
	db := newTestDB(t)
	svc := NewNotificationService(db)

	svc.Notify("warning", "IP detected", "198.51.100.77", "detect:198.51.100.77")
	svc.Notify("warning", "IP detected", "198.51.100.77", "detect:198.51.100.77")
	svc.Notify("success", "IP blocked", "198.51.100.77", "block:198.51.100.77")

	var count int64
	db.Model(&models.Notification{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestNotifyEmptyKeySkipsDedupe(t *testing.T) {
	db := newTestDB(t)
	svc := NewNotificationService(db)

	svc.Notify("info", "first", "", "")
	svc.Notify("info", "second", "", "")

	var count int64
	db.Model(&models.Notification{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestUnreadCountAndMarkAllRead(t *testing.T) {
	db := newTestDB(t)
	svc := NewNotificationService(db)

	svc.Notify("info", "one", "", "k1")
	svc.Notify("info", "two", "", "k2")
	svc.Notify("info", "three", "", "k3")

	unread, err := svc.UnreadCount()
	require.NoError(t, err)
	assert.Equal(t, int64(3), unread)

	require.NoError(t, svc.MarkAllRead())
	unread, err = svc.UnreadCount()
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread)

	// idempotent
	require.NoError(t, svc.MarkAllRead())
	unread, _ = svc.UnreadCount()
	assert.Equal(t, int64(0), unread)
}

func TestRecentOrdering(t *testing.T) {
	db := newTestDB(t)
	svc := NewNotificationService(db)

	for i := 0; i < 5; i++ {
		svc.Notify("info", fmt.Sprintf("message %d", i), "", fmt.Sprintf("k%d", i))
	}

	items, err := svc.Recent(3)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}
