package models

import "time"

// User 平台用户，通过 user_homes 关联可访问的住宅
type User struct {
	BaseModel
	OrganizationID string `gorm:"type:varchar(36);index;not null" json:"organization_id"`
	Name           string `gorm:"type:varchar(100)" json:"name"`
}

// UserHome 用户与住宅的关联行。住宅被禁用时关联依然保留
type UserHome struct {
	UserID    string    `gorm:"type:varchar(36);primaryKey" json:"user_id"`
	HomeID    string    `gorm:"type:varchar(36);primaryKey;index" json:"home_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 自定义表名
func (UserHome) TableName() string {
	return "user_homes"
}
