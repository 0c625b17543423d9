package structured

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	openaiopts "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/eino-contrib/jsonschema"
)

var (
	schemaCache   sync.Map // reflect.Type -> map[string]any
	schemaNameBad = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
)

// SchemaFor 反射 T 的 JSON Schema，按类型缓存
func SchemaFor[T any]() (map[string]any, error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if cached, ok := schemaCache.Load(typ); ok {
		return cached.(map[string]any), nil
	}

	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	b, err := json.Marshal(r.Reflect(new(T)))
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", typ, err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode schema for %s: %w", typ, err)
	}
	delete(out, "$schema")
	delete(out, "$id")

	actual, _ := schemaCache.LoadOrStore(typ, out)
	return actual.(map[string]any), nil
}

func schemaName(stage string) string {
	name := schemaNameBad.ReplaceAllString(strings.TrimSpace(stage), "_")
	if name == "" {
		return "output"
	}
	return name
}

// responseFormatOption 通过 OpenAI 扩展字段绑定输出 Schema
func responseFormatOption(stage string, sch map[string]any) model.Option {
	return openaiopts.WithExtraFields(map[string]any{
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   schemaName(stage),
				"strict": false,
				"schema": sch,
			},
		},
	})
}

// schemaInstruction prompt-only 模式下追加到任务消息末尾的说明
func schemaInstruction(sch map[string]any) string {
	b, _ := json.MarshalIndent(sch, "", "  ")
	return "\n\nRespond with a single JSON object and nothing else. It must conform to this JSON Schema:\n" + string(b)
}

// IsResponseFormatUnsupportedError 后端拒绝 response_format / json_schema 参数
func IsResponseFormatUnsupportedError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "response_format"):
		return true
	case strings.Contains(msg, "json_schema"):
		return true
	case strings.Contains(msg, "response_schema"):
		return true
	case strings.Contains(msg, "unknown parameter") && strings.Contains(msg, "response"):
		return true
	default:
		return false
	}
}
