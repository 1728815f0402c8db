package utils

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// GenerateDigits 生成 n 位随机数字串（允许前导0）
func GenerateDigits(n int) (string, error) {
	if n <= 0 {
		n = 6
	}
	var b strings.Builder
	b.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

// GenerateAccessCode 生成6位一次性访问码
func GenerateAccessCode() (string, error) {
	return GenerateDigits(6)
}

// GeneratePlaceholderPhone 生成7位占位手机号（游客没有手机号，但目录要求手机号唯一）
func GeneratePlaceholderPhone() (string, error) {
	first, err := rand.Int(rand.Reader, big.NewInt(9))
	if err != nil {
		return "", err
	}
	rest, err := GenerateDigits(6)
	if err != nil {
		return "", err
	}
	return string(rune('1'+first.Int64())) + rest, nil
}
