package model

import (
	"time"
)

type UserRole string

const (
	Candidate UserRole = "candidate"
	HR        UserRole = "hr"
	Admin     UserRole = "admin"
)

// swagger:model User
type User struct {
	BaseModel
	Name        string    `gorm:"size:100;not null" json:"Name"`
	Email       string    `gorm:"size:100;unique;not null" json:"Email"`
	Password    string    `gorm:"size:100;not null" json:"-"`
	Role        UserRole  `gorm:"size:20;default:'candidate'" json:"Role"`
	Gender      string    `gorm:"size:20" json:"Gender"`
	CompanyName string    `gorm:"size:150" json:"CompanyName"` // HR 账号所属公司
	ResumePath  string    `gorm:"size:300" json:"ResumePath"`
	ResumeText  string    `gorm:"type:text" json:"-"` // 简历抽取文本，由上传流程写入
	Disabled    bool      `gorm:"default:false" json:"Disabled"`
	LastLogin   time.Time `gorm:"autoCreateTime" json:"LastLogin"`
	LastSeen    time.Time `gorm:"autoCreateTime" json:"LastSeen"`
}

func (User) TableName() string {
	return "users"
}
