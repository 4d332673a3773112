package secrets

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fernet/fernet-go"

	"github.com/hatchpad/hatchpad-backend/internal/pkg/envutil"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/logger"
)

// Codec encrypts and decrypts a project's env-var bundle. Every write goes
// through Encrypt, even when copying a bundle from a prior version, so the
// signing key can rotate without stranding old ciphertexts in new rows.
type Codec struct {
	key *fernet.Key
}

func NewCodec(keyString string) (*Codec, error) {
	if keyString == "" {
		return nil, fmt.Errorf("secrets: encryption key cannot be empty")
	}
	key, err := fernet.DecodeKey(keyString)
	if err != nil {
		return nil, fmt.Errorf("secrets: invalid encryption key: %w", err)
	}
	return &Codec{key: key}, nil
}

// NewCodecFromEnv reads the key from SECRETS_ENCRYPTION_KEY.
func NewCodecFromEnv(log *logger.Logger) (*Codec, error) {
	keyString := envutil.GetEnv("SECRETS_ENCRYPTION_KEY", "", log)
	return NewCodec(keyString)
}

// EncryptBundle serializes and encrypts an env-var mapping. The returned
// token is base64 so it stores as text.
func (c *Codec) EncryptBundle(env map[string]string) (string, error) {
	if env == nil {
		env = map[string]string{}
	}
	plaintext, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("secrets: serialize bundle: %w", err)
	}
	token, err := fernet.EncryptAndSign(plaintext, c.key)
	if err != nil {
		return "", fmt.Errorf("secrets: encryption failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(token), nil
}

// DecryptBundle reverses EncryptBundle.
func (c *Codec) DecryptBundle(ciphertext string) (map[string]string, error) {
	tokenBytes, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("secrets: invalid token format: %w", err)
	}
	// Bundles never expire; the TTL only guards against clock nonsense.
	plaintext := fernet.VerifyAndDecrypt(tokenBytes, time.Hour*24*365*100, []*fernet.Key{c.key})
	if plaintext == nil {
		return nil, fmt.Errorf("secrets: failed to decrypt token")
	}
	var env map[string]string
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return nil, fmt.Errorf("secrets: deserialize bundle: %w", err)
	}
	return env, nil
}
