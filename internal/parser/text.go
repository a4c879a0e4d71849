package parser

import (
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	`$`, `\$`,
	`'`, `\'`,
	`"`, `\"`,
)

// DecodeText 将 base64（标准或 URL 安全）正文解码为 UTF-8 字符串。
func DecodeText(data, charset string) (string, error) {
	body, err := decodeBase64(data)
	if err != nil {
		return "", fmt.Errorf("decode text body: %w", err)
	}

	// 字符集转换
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset != "" && charset != "utf-8" && charset != "us-ascii" {
		if enc, err := htmlindex.Get(charset); err == nil {
			if converted, _, err := transform.Bytes(enc.NewDecoder(), body); err == nil {
				body = converted
			}
		}
	}

	return string(body), nil
}

// EscapeText 转义反斜杠、美元符与引号，并去除首尾空白
func EscapeText(text string) string {
	return strings.TrimSpace(textEscaper.Replace(text))
}

// decodeBase64 同时接受标准与 URL 安全字母表，填充可有可无
func decodeBase64(data string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '-':
			return '+'
		case '_':
			return '/'
		case '\r', '\n', ' ', '\t':
			return -1
		}
		return r
	}, data)
	cleaned = strings.TrimRight(cleaned, "=")
	return base64.RawStdEncoding.DecodeString(cleaned)
}

// ToStdBase64 将 base64url 文本转写为带填充的标准 base64，不解码内容
func ToStdBase64(data string) string {
	converted := strings.NewReplacer("-", "+", "_", "/").Replace(strings.TrimRight(data, "="))
	if rem := len(converted) % 4; rem != 0 {
		converted += strings.Repeat("=", 4-rem)
	}
	return converted
}
