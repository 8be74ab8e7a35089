package models

import "time"

// User is a student or staff account keyed by student ID.
// Password holds a bcrypt hash, or legacy plaintext until the first successful login.
type User struct {
	StudentID string     `json:"studentId"`
	Password  string     `json:"password,omitempty"`
	Name      string     `json:"name"`
	Grade     string     `json:"grade"`
	Email     string     `json:"email"`
	Avatar    string     `json:"avatar,omitempty"`
	Role      string     `json:"role"`
	IsActive  bool       `json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
	LastLogin *time.Time `json:"lastLogin"`
}

// Public returns a copy of u without the password.
func (u User) Public() User {
	u.Password = ""
	return u
}

// UsersMetadata is the summary kept alongside the users table.
type UsersMetadata struct {
	TotalUsers  int       `json:"totalUsers"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// UserPatch carries the fields of a user update; nil fields are left unchanged.
type UserPatch struct {
	Password *string `json:"password"`
	Name     *string `json:"name"`
	Grade    *string `json:"grade"`
	Email    *string `json:"email"`
	Avatar   *string `json:"avatar"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"isActive"`
}

// Apply copies the non-nil fields of p onto u, except Password, which callers
// must hash first.
func (p UserPatch) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Grade != nil {
		u.Grade = *p.Grade
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Avatar != nil {
		u.Avatar = *p.Avatar
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.IsActive != nil {
		u.IsActive = *p.IsActive
	}
}
