package domain

import (
	"time"
)

// Client is a pet owner that can be invoiced.
type Client struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	Email     *string   `gorm:"type:text" json:"email,omitempty"`
	Phone     *string   `gorm:"type:text" json:"phone,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Client) TableName() string { return "clients" }
