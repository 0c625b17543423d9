package entity

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator 返回注册了领域规则（title_case / snake_case / rgb_hex）的校验器
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = RegisterValidations(validate)
	})
	return validate
}

// RegisterValidations 向已有校验器注册领域规则，供 HTTP 绑定层复用
func RegisterValidations(v *validator.Validate) error {
	rules := map[string]func(string) bool{
		"title_case": IsTitleCase,
		"snake_case": IsSnakeCase,
		"rgb_hex":    IsRGBHex,
	}
	for tag, fn := range rules {
		fn := fn
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return fn(fl.Field().String())
		}); err != nil {
			return err
		}
	}
	return nil
}

// Validate 按结构体标签校验
func Validate(v any) error {
	return Validator().Struct(v)
}
