package models

// Device 物联网设备，HomeID 为空表示尚未分配到住宅
type Device struct {
	BaseModel
	UniqueID       string  `gorm:"type:varchar(100);uniqueIndex;not null" json:"unique_id"`
	OrganizationID string  `gorm:"type:varchar(36);index;not null" json:"organization_id"`
	Name           string  `gorm:"type:varchar(100)" json:"name"`
	HomeID         *string `gorm:"type:varchar(36);index" json:"home_id,omitempty"`

	Home *Home `gorm:"foreignKey:HomeID" json:"home,omitempty"`
}

// AssignedTo 判断设备是否属于指定住宅
func (d *Device) AssignedTo(homeID string) bool {
	return d.HomeID != nil && *d.HomeID == homeID
}
