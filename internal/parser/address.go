package parser

import (
	"regexp"
	"strings"
)

// emailPattern 宽松匹配邮箱地址，兼容 `Name <addr>` 形式；
// 逗号、分号和引号不会被吞进地址。
var emailPattern = regexp.MustCompile(`[^@<\s,;"]+@[^@\s>,;"]+`)

// ExtractAddresses 返回邮件头中的全部邮箱地址，头为空时返回空切片
func ExtractAddresses(header string) []string {
	matches := emailPattern.FindAllString(header, -1)
	if matches == nil {
		return []string{}
	}
	return matches
}

// FirstAddress 返回邮件头中的第一个邮箱地址
func FirstAddress(header string) string {
	return emailPattern.FindString(header)
}

// Alias 返回邮箱地址 @ 之前的部分
func Alias(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// Aliases 批量提取别名
func Aliases(emails []string) []string {
	aliases := make([]string, 0, len(emails))
	for _, email := range emails {
		aliases = append(aliases, Alias(email))
	}
	return aliases
}
