package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// API 密钥哈希方案：pbkdf2_sha256，密钥先做 sha256 预哈希再派生。
// 存储格式 base64(salt)$base64(dk)，兼容带算法前缀的
// pbkdf2_sha256$iterations$salt$hash 四段格式。
const (
	algorithm  = "pbkdf2_sha256"
	iterations = 120000
	saltBytes  = 16
	keyBytes   = 32
)

// NewAPIKey 生成新的明文 API 密钥（仅在注册/轮换时返回一次）
func NewAPIKey() (string, error) {
	raw := make([]byte, keyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate api key failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Fingerprint 密钥的短标识，用于查找账户（非机密，可建索引）
func Fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])[:16]
}

// prehash 归一化密钥，避免超长输入影响 PBKDF2
func prehash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// HashAPIKey 哈希 API 密钥
func HashAPIKey(secret string) (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt failed: %w", err)
	}
	dk := pbkdf2.Key([]byte(prehash(secret)), salt, iterations, sha256.Size, sha256.New)
	return fmt.Sprintf("%s$%s",
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(dk),
	), nil
}

// VerifyAPIKey 校验 API 密钥（常量时间比较）
func VerifyAPIKey(secret, secretHash string) bool {
	parts := strings.Split(secretHash, "$")

	var (
		salt     []byte
		expected []byte
		iters    = iterations
		err      error
	)

	switch {
	case len(parts) == 4 && parts[0] == algorithm:
		iters, err = strconv.Atoi(parts[1])
		if err != nil {
			return false
		}
		if salt, err = base64.StdEncoding.DecodeString(parts[2]); err != nil {
			return false
		}
		if expected, err = base64.StdEncoding.DecodeString(parts[3]); err != nil {
			return false
		}
	case len(parts) == 2:
		if salt, err = base64.StdEncoding.DecodeString(parts[0]); err != nil {
			return false
		}
		if expected, err = base64.StdEncoding.DecodeString(parts[1]); err != nil {
			return false
		}
	default:
		return false
	}

	computed := pbkdf2.Key([]byte(prehash(secret)), salt, iters, sha256.Size, sha256.New)
	return hmac.Equal(expected, computed)
}
