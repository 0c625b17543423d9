// Package tileset 读取瓦片集 CSV 描述文件
package tileset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Row 瓦片集中的一个条目
type Row struct {
	Description string
	X           int
	Y           int
	// Image base64 编码的贴图，可为空
	Image string
}

// Source 类别 -> CSV 路径
type Source map[string]string

var (
	ErrMissingColumn    = errors.New("missing required column")
	ErrBlankDescription = errors.New("blank description")
	ErrBadCoordinate    = errors.New("invalid coordinate")
)

// LoadCSV 从文件读取瓦片集
func LoadCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tileset %s: %w", path, err)
	}
	defer f.Close()

	rows, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("tileset %s: %w", path, err)
	}
	return rows, nil
}

// Parse 解析 CSV：表头至少包含 description、x、y，base64 或 image 列可选其一
func Parse(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, required := range []string{"description", "x", "y"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}
	imageCol := -1
	if i, ok := cols["base64"]; ok {
		imageCol = i
	} else if i, ok := cols["image"]; ok {
		imageCol = i
	}

	var rows []Row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		desc := strings.TrimSpace(field(record, cols["description"]))
		if desc == "" {
			return nil, fmt.Errorf("line %d: %w", line, ErrBlankDescription)
		}
		x, err := coordinate(field(record, cols["x"]))
		if err != nil {
			return nil, fmt.Errorf("line %d: x: %w", line, err)
		}
		y, err := coordinate(field(record, cols["y"]))
		if err != nil {
			return nil, fmt.Errorf("line %d: y: %w", line, err)
		}

		rows = append(rows, Row{
			Description: desc,
			X:           x,
			Y:           y,
			Image:       strings.TrimSpace(field(record, imageCol)),
		})
	}
	return rows, nil
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

func coordinate(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadCoordinate, s)
	}
	return v, nil
}
