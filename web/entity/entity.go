// Package entity defines the forms and views exchanged by the web layer.
package entity

import (
	"strconv"
	"time"

	"github.com/memberpanel/memberpanel/database/model"

	"github.com/go-playground/validator/v10"
)

// RegisterValidations adds the custom form tags to v.
func RegisterValidations(v *validator.Validate) error {
	return v.RegisterValidation("maxbytes", maxBytes)
}

// maxBytes limits the encoded length of a string, unlike max which counts runes.
func maxBytes(fl validator.FieldLevel) bool {
	n, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= n
}

// SignupForm is the body of POST /signup.
type SignupForm struct {
	Name     string `form:"name" binding:"required,max=100"`
	Email    string `form:"email" binding:"required,email,max=254"`
	Password string `form:"password" binding:"required,maxbytes=72"` // bcrypt limit
	Role     string `form:"role" binding:"omitempty,oneof=user admin"`
}

// LoginForm is the body of POST /login.
type LoginForm struct {
	Email    string `form:"email" binding:"required,email"`
	Password string `form:"password" binding:"required"`
}

// UserView is a user as shown on the admin page. It never carries the password hash.
type UserView struct {
	Id      int
	Name    string
	Email   string
	Role    model.Role
	IsAdmin bool
	IsSelf  bool
	Since   time.Time
}

// NewUserViews converts users for the admin listing; self marks the viewing admin.
func NewUserViews(users []model.User, self string) []UserView {
	views := make([]UserView, 0, len(users))
	for _, u := range users {
		views = append(views, UserView{
			Id:      u.Id,
			Name:    u.Name,
			Email:   u.Email,
			Role:    u.Role,
			IsAdmin: u.IsAdmin(),
			IsSelf:  u.Email == self,
			Since:   u.CreatedAt,
		})
	}
	return views
}
