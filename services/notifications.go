package services

import (
	"sync"

	"gorm.io/gorm"

	"ssh-guardian-dashboard/models"
	"ssh-guardian-dashboard/system"
)

// SeenSet is a bounded set of recently displayed notification keys,
// used purely for idempotent display. It holds at most 100 keys and
// trims to the most recent 50 when full.
type SeenSet struct {
	mu    sync.Mutex
	keys  []string
	index map[string]struct{}
}

const (
	seenSetCap  = 100
	seenSetKeep = 50
)

func NewSeenSet() *SeenSet {
	return &SeenSet{
		index: make(map[string]struct{}),
	}
}

// Seen records a key and reports whether it was already present
func (s *SeenSet) Seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[key]; ok {
		return true
	}
	s.keys = append(s.keys, key)
	s.index[key] = struct{}{}

	if len(s.keys) > seenSetCap {
		dropped := s.keys[:len(s.keys)-seenSetKeep]
		s.keys = append([]string(nil), s.keys[len(s.keys)-seenSetKeep:]...)
		for _, k := range dropped {
			delete(s.index, k)
		}
	}
	return false
}

// Len returns the number of tracked keys
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// NotificationService persists user-facing notices and tracks their
// read state for the badge count. Duplicate keys within the recent
// window are dropped silently.
type NotificationService struct {
	db   *gorm.DB
	seen *SeenSet
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{
		db:   db,
		seen: NewSeenSet(),
	}
}

// Notify records a notification unless its key was recently seen.
// An empty key disables deduplication for that notice.
func (n *NotificationService) Notify(level, message, sourceIP, key string) {
	if key != "" && n.seen.Seen(key) {
		return
	}

	notif := models.Notification{
		Key:      key,
		Level:    level,
		Message:  message,
		SourceIP: sourceIP,
	}
	if err := n.db.Create(&notif).Error; err != nil {
		system.Warn("Failed to persist notification: %v", err)
	}
}

// Recent returns the newest notifications, up to limit
func (n *NotificationService) Recent(limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var out []models.Notification
	err := n.db.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// UnreadCount returns the badge count
func (n *NotificationService) UnreadCount() (int64, error) {
	var count int64
	err := n.db.Model(&models.Notification{}).Where("read = ?", false).Count(&count).Error
	return count, err
}

// MarkAllRead clears the badge. Idempotent for any prior count.
func (n *NotificationService) MarkAllRead() error {
	return n.db.Model(&models.Notification{}).Where("read = ?", false).Update("read", true).Error
}
