package verify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
	zhtranslations "github.com/go-playground/validator/v10/translations/zh"
)

const (
	LocaleZH = "zh"
	LocaleEN = "en"
)

type ValidatorInstance struct {
	Validate   *validator.Validate
	Translator ut.Translator
}

// InitValidator 初始化带翻译的校验器
func InitValidator(locale string) (*ValidatorInstance, error) {
	zhT := zh.New()
	enT := en.New()
	uni := ut.New(enT, zhT, enT)

	trans, ok := uni.GetTranslator(locale)
	if !ok {
		return nil, fmt.Errorf("不支持的语言: %s", locale)
	}

	v := validator.New()
	var err error
	switch locale {
	case LocaleEN:
		err = entranslations.RegisterDefaultTranslations(v, trans)
	default:
		err = zhtranslations.RegisterDefaultTranslations(v, trans)
	}
	if err != nil {
		return nil, fmt.Errorf("注册翻译失败: %w", err)
	}

	return &ValidatorInstance{Validate: v, Translator: trans}, nil
}

// RemoveTopSaStr 去掉结构体名前缀，多个错误按字段排序后用分号拼接
func RemoveTopSaStr(errs validator.ValidationErrors, trans ut.Translator) string {
	translated := errs.Translate(trans)
	fields := make([]string, 0, len(translated))
	for field := range translated {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, field := range fields {
		msg := translated[field]
		if idx := strings.Index(field, "."); idx >= 0 {
			msg = strings.ReplaceAll(msg, field[:idx+1], "")
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}
