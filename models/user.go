package models

import "time"

type User struct {
	ID           string    `gorm:"primaryKey;type:text" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null;type:text" json:"username"`
	Password     string    `gorm:"not null;type:text" json:"-"`
	Name         string    `gorm:"type:text" json:"name"`
	ImageProfile string    `gorm:"type:text" json:"image_profile"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Profile is the public part of a user shown to the other side of a chat.
type Profile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ImageProfile string `json:"image_profile"`
}

func (u User) Profile() Profile {
	return Profile{ID: u.ID, Name: u.Name, ImageProfile: u.ImageProfile}
}
