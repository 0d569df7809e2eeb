package models

// Home 住宅，UniqueID 为对外的唯一标识，可独立于 ID 重命名
type Home struct {
	BaseModel
	UniqueID       string `gorm:"type:varchar(100);uniqueIndex;not null" json:"unique_id"`
	OrganizationID string `gorm:"type:varchar(36);index;not null" json:"organization_id"`
	Name           string `gorm:"type:varchar(100)" json:"name"`
	Disabled       bool   `gorm:"not null;default:false" json:"disabled"`

	// Relations - 关联关系，用户关联通过 UserHome 维护
	Devices []Device `gorm:"foreignKey:HomeID" json:"devices,omitempty"` // 关联的设备（一对多）
}
