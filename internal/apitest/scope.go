package apitest

import (
	"gorm.io/gorm"

	"userapi/internal/app"
	"userapi/internal/storage"
	"userapi/internal/users"
)

// Scope exposes the services of a running application, overrides included.
type Scope struct {
	services *app.Services
}

// Users returns the user store the HTTP handlers use.
func (s *Scope) Users() users.Store {
	return s.services.Users
}

// DB returns the application's ORM session.
func (s *Scope) DB() *gorm.DB {
	return s.services.Storage.DB()
}

// Storage returns the application's storage.
func (s *Scope) Storage() storage.Storage {
	return s.services.Storage
}
