package entity

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	TitleMinLength = 10
	TitleMaxLength = 150
)

var (
	snakeCasePattern = regexp.MustCompile(`^[a-z0-9]+(?:_[a-z0-9]+)*$`)
	rgbHexPattern    = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

	// 标题中允许小写的虚词
	titleMinorWords = map[string]struct{}{
		"a": {}, "an": {}, "the": {}, "of": {}, "in": {}, "on": {}, "at": {}, "to": {},
		"for": {}, "and": {}, "or": {}, "but": {}, "nor": {}, "by": {}, "with": {}, "from": {},
	}
)

// ErrInvalidTitle 标题不符合长度或 Title Case 约束
var ErrInvalidTitle = errors.New("invalid title")

// IsSnakeCase 是否为 snake_case 标识符
func IsSnakeCase(s string) bool {
	return snakeCasePattern.MatchString(s)
}

// IsRGBHex 是否为 #RRGGBB 颜色
func IsRGBHex(s string) bool {
	return rgbHexPattern.MatchString(s)
}

// IsTitleCase 首词大写，其余词除虚词外均以大写字母或非字母开头
func IsTitleCase(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 {
		return false
	}
	for i, word := range words {
		r, _ := utf8.DecodeRuneInString(word)
		if !unicode.IsLetter(r) || unicode.IsUpper(r) {
			continue
		}
		if _, minor := titleMinorWords[strings.ToLower(word)]; minor && i > 0 {
			continue
		}
		return false
	}
	return true
}

// ValidateTitle 校验资产包标题
func ValidateTitle(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < TitleMinLength || n > TitleMaxLength {
		return fmt.Errorf("%w: length %d outside [%d, %d]", ErrInvalidTitle, n, TitleMinLength, TitleMaxLength)
	}
	if !IsTitleCase(name) {
		return fmt.Errorf("%w: %q is not Title Case", ErrInvalidTitle, name)
	}
	return nil
}

func indexedPath(group string, i int, field string) string {
	if field == "" {
		return fmt.Sprintf("%s[%d]", group, i)
	}
	return fmt.Sprintf("%s[%d].%s", group, i, field)
}
