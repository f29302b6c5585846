package track

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/jindoapp/jindo/core"
)

var (
	departmentTag  = "department"
	departmentText = "unknown department"
)

// InitValidators registers the tracking domain's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(departmentTag, departmentValidation)
	core.RegisterCustomTranslation(validate, translator, departmentTag, departmentText)
}

func departmentValidation(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	for _, dept := range Departments {
		if dept == value {
			return true
		}
	}
	return false
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Department = core.CleanString(ns.Department)
	return validate.Struct(ns)
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Code = core.CleanString(nc.Code)
	nc.Name = core.CleanString(nc.Name)
	nc.Department = core.CleanString(nc.Department)
	return validate.Struct(nc)
}
