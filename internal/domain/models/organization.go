package models

// Organization 租户组织，所有住宅、设备、用户都归属于某个组织
type Organization struct {
	BaseModel
	Name string `gorm:"type:varchar(100);unique;not null" json:"name"`
}
