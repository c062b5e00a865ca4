package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SessionEntry is one login/logout pair on a device. A nil LogoutAt marks
// the open session.
type SessionEntry struct {
	LoginAt  time.Time  `json:"login_at"`
	LogoutAt *time.Time `json:"logout_at,omitempty"`
}

type Device struct {
	ID           string         `json:"id"`
	IP           string         `json:"ip"`
	UserAgent    string         `json:"user_agent"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	LoginCount   int            `json:"login_count"`
	History      []SessionEntry `json:"history"`
}

// HasOpenSession reports whether the last history entry lacks a logout.
func (d *Device) HasOpenSession() bool {
	if len(d.History) == 0 {
		return false
	}
	return d.History[len(d.History)-1].LogoutAt == nil
}

// DeviceRegistry maps device id to device state. It is stored as one JSON
// column so the whole registry changes atomically with the lock state.
type DeviceRegistry map[string]*Device

func (r DeviceRegistry) Value() (driver.Value, error) {
	if r == nil {
		return "{}", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *DeviceRegistry) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*r = DeviceRegistry{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("device registry: unsupported type %T", src)
	}
	reg := DeviceRegistry{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &reg); err != nil {
			return err
		}
	}
	*r = reg
	return nil
}

// LoginCredential holds the authentication state of a login enabled user.
// Version is the optimistic concurrency token; every write must match the
// version it read.
type LoginCredential struct {
	ID                uint           `gorm:"primaryKey"`
	UserID            uint           `gorm:"uniqueIndex;not null"`
	PasswordHash      string         `gorm:"size:255;not null"`
	Attempts          int            `gorm:"not null;default:0"`
	LockLevel         int            `gorm:"not null;default:0"`
	LockUntil         *time.Time     `gorm:"index"`
	PermanentlyLocked bool           `gorm:"not null;default:false"`
	Devices           DeviceRegistry `gorm:"type:text"`
	IsLoggedIn        bool           `gorm:"not null;default:false"`
	LastLogin         *time.Time     `json:"last_login"`
	Version           int64          `gorm:"not null;default:0"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}
