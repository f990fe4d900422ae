package model

import "unicode/utf8"

// TruncateString cắt chuỗi xuống độ dài tối đa (byte) cho phép
// nếu chuỗi dài hơn giới hạn, không cắt ngang một ký tự UTF-8
func TruncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	cut := maxLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
