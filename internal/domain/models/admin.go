package models

// Admin represents organization administrators
type Admin struct {
	BaseModel
	Username       string `gorm:"type:varchar(50);unique;not null" json:"username"`
	Password       string `gorm:"type:varchar(100);not null" json:"-"` // Password not exposed in JSON
	OrganizationID string `gorm:"type:varchar(36);index;not null" json:"organization_id"`
	Role           string `gorm:"type:varchar(50);default:'admin'" json:"role"`    // Role: admin
	Status         string `gorm:"type:varchar(20);default:'active'" json:"status"` // Status: active, inactive, locked
}
