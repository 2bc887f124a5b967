// Package placeholder 处理模板中的 {{name}} 占位符
package placeholder

import (
	"regexp"
	"strings"
)

var (
	pattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)
	// 写作助手模板使用 [name] 形式
	bracketPattern = regexp.MustCompile(`\[([^\]]+)\]`)
)

// Extract 按首次出现顺序返回去重后的占位符名
func Extract(content string) []string {
	return unique(pattern.FindAllStringSubmatch(content, -1))
}

// ExtractBracketed 同 Extract，匹配 [name]
func ExtractBracketed(content string) []string {
	return unique(bracketPattern.FindAllStringSubmatch(content, -1))
}

func unique(matches [][]string) []string {
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}

// Token 返回 {{name}}
func Token(name string) string {
	return "{{" + name + "}}"
}

// Fill 按 names 顺序做字面替换，不转义替换内容
func Fill(content string, names []string, values map[string]string) string {
	filled := content
	for _, name := range names {
		v, ok := values[name]
		if !ok {
			continue
		}
		filled = strings.ReplaceAll(filled, Token(name), v)
	}
	return filled
}

// HasAny 内容中是否还有占位符
func HasAny(content string) bool {
	return pattern.MatchString(content)
}
