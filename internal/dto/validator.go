package dto

import (
	"regexp"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var uaiPattern = regexp.MustCompile(`^[0-9]{7}[A-Z]$`)

// RegisterValidators 向 gin 的校验引擎注册自定义标签
//   - hhmm:       "HH:MM" 时间
//   - attendance: 出勤状态 0/1/2
//   - uai:        学校行政编码（7 位数字 + 1 位大写字母）
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return RegisterOn(v)
}

// RegisterOn 在指定的 validator 实例上注册自定义标签
func RegisterOn(v *validator.Validate) error {
	if err := v.RegisterValidation("hhmm", validateHHMM); err != nil {
		return err
	}
	if err := v.RegisterValidation("attendance", validateAttendance); err != nil {
		return err
	}
	return v.RegisterValidation("uai", validateUAI)
}

func validateHHMM(fl validator.FieldLevel) bool {
	_, err := time.Parse("15:04", fl.Field().String())
	return err == nil
}

func validateAttendance(fl validator.FieldLevel) bool {
	status := fl.Field().Int()
	return status >= 0 && status <= 2
}

func validateUAI(fl validator.FieldLevel) bool {
	return uaiPattern.MatchString(fl.Field().String())
}

// IsValidUAI 校验学校行政编码
func IsValidUAI(code string) bool {
	return uaiPattern.MatchString(code)
}
