package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/scrypt"
)

// Secrets file layout: [salt][nonce][ciphertext+tag], AES-256-GCM with a
// scrypt-derived key.
const (
	saltSize  = 16
	nonceSize = 12
	scryptN   = 32768
	scryptR   = 8
	scryptP   = 1
	keySize   = 32
)

// SecretsPasswordEnv holds the passphrase for secrets_file.
const SecretsPasswordEnv = "SLACKAGENT_SECRETS_PASSWORD"

// Well-known secret names filled into empty config fields.
const (
	SecretLLMAPIKey     = "LLM_API_KEY"
	SecretSlackBotToken = "SLACK_BOT_TOKEN"
	SecretSlackAppToken = "SLACK_APP_TOKEN"
	SecretNotionToken   = "NOTION_TOKEN"
	SecretRedisPassword = "REDIS_PASSWORD"
)

// ErrSecretsPasswordMissing is returned when a secrets file is configured
// without a passphrase.
var ErrSecretsPasswordMissing = errors.New("secrets file configured but " + SecretsPasswordEnv + " is not set")

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func deriveGCM(password, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(password, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// EncryptSecretsFile writes secrets to path with mode 0600.
func EncryptSecretsFile(path, password string, secrets map[string]string) error {
	passwordBytes := []byte(password)
	defer zero(passwordBytes)

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	gcm, err := deriveGCM(passwordBytes, salt)
	if err != nil {
		return err
	}

	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}
	defer zero(plaintext)

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	data := make([]byte, 0, saltSize+nonceSize+len(plaintext)+gcm.Overhead())
	data = append(data, salt...)
	data = append(data, nonce...)
	data = gcm.Seal(data, nonce, plaintext, nil)

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create secrets directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// DecryptSecretsFile reads and decrypts path.
func DecryptSecretsFile(path, password string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	if len(data) < saltSize+nonceSize+16 {
		return nil, errors.New("secrets file is corrupted or invalid format (too small)")
	}

	passwordBytes := []byte(password)
	defer zero(passwordBytes)

	gcm, err := deriveGCM(passwordBytes, data[:saltSize])
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, data[saltSize:saltSize+nonceSize], data[saltSize+nonceSize:], nil)
	if err != nil {
		return nil, errors.New("decryption failed (wrong password or corrupted file)")
	}
	defer zero(plaintext)

	var secrets map[string]string
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}
	return secrets, nil
}

// SetSecret adds or replaces one secret, creating the file if needed.
func SetSecret(path, password, name, value string) error {
	secrets := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		existing, err := DecryptSecretsFile(path, password)
		if err != nil {
			return err
		}
		secrets = existing
	}
	secrets[name] = value
	return EncryptSecretsFile(path, password, secrets)
}

// ApplySecrets fills empty credential fields from secrets.
func ApplySecrets(cfg *Config, secrets map[string]string) {
	fill := func(dst *string, name string) {
		if *dst == "" {
			*dst = secrets[name]
		}
	}
	fill(&cfg.LLM.APIKey, SecretLLMAPIKey)
	fill(&cfg.Slack.BotToken, SecretSlackBotToken)
	fill(&cfg.Slack.AppToken, SecretSlackAppToken)
	fill(&cfg.Tasks.NotionToken, SecretNotionToken)
	fill(&cfg.Queue.Password, SecretRedisPassword)
}

func applySecretsFile(cfg *Config) error {
	password := os.Getenv(SecretsPasswordEnv)
	if password == "" {
		return ErrSecretsPasswordMissing
	}
	secrets, err := DecryptSecretsFile(cfg.SecretsFile, password)
	if err != nil {
		return fmt.Errorf("secrets file %s: %w", cfg.SecretsFile, err)
	}
	ApplySecrets(cfg, secrets)
	return nil
}
