// Package linking builds the redirect that hands an unlinked identity off
// to the external account-linking service. The raw ID token is encrypted
// under a key shared with that service so it can complete the association
// out-of-band; nothing else in this service ever reads the payload back.
package linking

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/meshresearch/cilogon-rp/internal/auth"
	"github.com/meshresearch/cilogon-rp/internal/config"
)

type Linker struct {
	baseURL string
	secret  string
}

func New(cfg config.DirectoryConfig) *Linker {
	return &Linker{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		secret:  cfg.LinkingSecret,
	}
}

// RedirectURL encrypts rawIDToken and returns the linking-service URL the
// browser must be sent to. The caller terminates the request after
// redirecting; the user retries login once linking completes.
//
// Wire format, fixed by the linking service: AES-256-CBC with a fresh
// 16-byte IV, key = SHA-256(shared secret) raw digest, payload =
// base64(iv || ciphertext) as the userinfo query parameter.
func (l *Linker) RedirectURL(rawIDToken string) (string, error) {
	if l.secret == "" {
		// Fail closed: a key derived from an empty secret still encrypts,
		// but offers no protection at all.
		return "", fmt.Errorf("%w: linking secret is not configured", auth.ErrConfiguration)
	}

	key := sha256.Sum256([]byte(l.secret))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", fmt.Errorf("failed to initialize cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	plaintext := pkcs7Pad([]byte(rawIDToken), aes.BlockSize)
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)

	payload := base64.StdEncoding.EncodeToString(append(iv, ciphertext...))

	return l.baseURL + "/associate?userinfo=" + url.QueryEscape(payload), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}
