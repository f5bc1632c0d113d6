package entities

import "time"

const (
	RoleEndUser         = "end_user"
	RoleSupportEngineer = "support_engineer"
	RoleAdmin           = "admin"
)

type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Username   string    `gorm:"uniqueIndex" json:"username"`
	Role       string    `json:"role"` // end_user|support_engineer|admin
	Department string    `json:"department"`
	CreatedAt  time.Time `json:"created_at"`
}
