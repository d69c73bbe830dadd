package core

// User is the single resource exposed by the service.
type User struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CreateUserRequest is the body accepted by POST /api/users.
type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}
