// Package retrieval 按类别对瓦片集描述做相似度检索
package retrieval

import (
	"fmt"
	"strings"
)

// Category 瓦片集类别，每个类别对应独立的向量集合
type Category string

const (
	CategoryItems        Category = "items"
	CategoryEnvironments Category = "environments"
	CategoryEntities     Category = "entities"
)

// Categories 固定顺序的全部类别
func Categories() []Category {
	return []Category{CategoryItems, CategoryEnvironments, CategoryEntities}
}

// ParseCategory 解析类别名，大小写与首尾空白不敏感
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CategoryItems, CategoryEnvironments, CategoryEntities:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
}

func (c Category) String() string {
	return string(c)
}
