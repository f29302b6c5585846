package echoapi

import (
	"github.com/go-playground/validator/v10"

	"github.com/jindoapp/jindo/core/track"
)

type statsResponse struct {
	Dashboard track.DashboardStats `json:"dashboard"`
	Cache     track.CacheStats     `json:"cache"`
}

type ToggleRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	LessonID  string `json:"lesson_id" validate:"required"`
	Completed bool   `json:"completed"`
}

func (tr *ToggleRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(tr)
}

type EnrollmentRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	CourseID string `json:"course_id" validate:"required"`
}

func (er *EnrollmentRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(er)
}

type NewLessonRequest struct {
	Name string `json:"lesson_name" validate:"required"`
}

func (nl *NewLessonRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(nl)
}
