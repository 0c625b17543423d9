package structured

import "strings"

// ExtractJSONObject 从模型输出中截取第一个括号配平的 JSON 对象
//
// 容忍 ```json 围栏与前后说明文字；找不到对象时返回去空白后的原文。
func ExtractJSONObject(s string) string {
	raw := strings.TrimSpace(s)
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return raw
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}

	// 未闭合：交给解码器报告语法错误
	return raw[start:]
}
