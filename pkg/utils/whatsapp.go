package utils

import (
	"net/url"
	"regexp"
)

var nonDigit = regexp.MustCompile(`\D`)

// DigitsOnly 去掉所有非数字字符
func DigitsOnly(s string) string {
	return nonDigit.ReplaceAllString(s, "")
}

// WhatsAppLink 生成 wa.me 链接。号码已带国家区号时不再重复添加
func WhatsAppLink(countryCode, phone, message string) string {
	number := DigitsOnly(phone)
	cc := DigitsOnly(countryCode)
	if cc != "" && len(number) <= 8 {
		number = cc + number
	}
	link := "https://wa.me/" + number
	if message != "" {
		link += "?text=" + url.QueryEscape(message)
	}
	return link
}
