package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// assignID sets a fresh UUID when the primary key is still zero.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	assignID(&u.ID)
	return nil
}

func (t *TeamMember) BeforeCreate(tx *gorm.DB) error {
	assignID(&t.ID)
	return nil
}

func (b *BlacklistEntry) BeforeCreate(tx *gorm.DB) error {
	assignID(&b.ID)
	return nil
}

func (m *MobileSession) BeforeCreate(tx *gorm.DB) error {
	assignID(&m.ID)
	return nil
}

func (o *OtpCode) BeforeCreate(tx *gorm.DB) error {
	assignID(&o.ID)
	return nil
}

func (b *BiometricSettings) BeforeCreate(tx *gorm.DB) error {
	assignID(&b.ID)
	return nil
}

func (r *RoleGrant) BeforeCreate(tx *gorm.DB) error {
	assignID(&r.ID)
	return nil
}

func (s *SystemLog) BeforeCreate(tx *gorm.DB) error {
	assignID(&s.ID)
	return nil
}
