package cookiecipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

// The vendor's dashboard encrypts the PPDUO cookie with CryptoJS
// AES.encrypt(plaintext, passphrase), which produces the OpenSSL envelope:
// base64("Salted__" + 8-byte salt + AES-256-CBC ciphertext) with key and IV
// derived from the passphrase via EVP_BytesToKey over MD5.

const opensslMagic = "Salted__"

// Decrypt reverses a CryptoJS passphrase encryption.
func Decrypt(encoded, secret string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(raw) < 16 || string(raw[:8]) != opensslMagic {
		return "", fmt.Errorf("not an OpenSSL salted payload")
	}
	salt := raw[8:16]
	ct := raw[16:]
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext length %d not a block multiple", len(ct))
	}

	key, iv := evpBytesToKey([]byte(secret), salt, 32, aes.BlockSize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)

	pt, err = stripPKCS7(pt)
	if err != nil {
		return "", fmt.Errorf("wrong secret or corrupt payload: %w", err)
	}
	return string(pt), nil
}

// evpBytesToKey is OpenSSL's legacy KDF: chained MD5 over
// previous-digest || secret || salt until enough material exists.
func evpBytesToKey(secret, salt []byte, keyLen, ivLen int) (key, iv []byte) {
	var d, prev []byte
	for len(d) < keyLen+ivLen {
		h := md5.New()
		h.Write(prev)
		h.Write(secret)
		h.Write(salt)
		prev = h.Sum(nil)
		d = append(d, prev...)
	}
	return d[:keyLen], d[keyLen : keyLen+ivLen]
}

func stripPKCS7(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("bad padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("bad padding")
		}
	}
	return b[:len(b)-n], nil
}

var ppduoRe = regexp.MustCompile(`PPDUO=([^;\s]+)`)

// ExtractCookie pulls the PPDUO value out of a full Cookie header. A bare
// value (no "=") passes through unchanged; otherwise the last cookie's value
// is the fallback, mirroring how operators paste headers from the browser.
func ExtractCookie(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	if !strings.Contains(header, "=") {
		return header, true
	}
	if m := ppduoRe.FindStringSubmatch(header); m != nil {
		return m[1], true
	}
	parts := strings.Split(header, ";")
	last := strings.TrimSpace(parts[len(parts)-1])
	if last == "" && len(parts) > 1 {
		last = strings.TrimSpace(parts[len(parts)-2])
	}
	if eq := strings.Index(last, "="); eq >= 0 {
		last = last[eq+1:]
	}
	if last == "" {
		return "", false
	}
	return last, true
}
