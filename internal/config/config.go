package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPPort string
	Domain   string

	DBPath string

	TURNPort     int
	TURNRealm    string
	TURNPublicIP string

	// RoomTTL bounds how long an idle signaling room is retained.
	RoomTTL time.Duration

	JWTSecret string
	VAPIDKeys *VAPIDKeys

	LogLevel string
}

type VAPIDKeys struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

func Load() *Config {
	cfg := &Config{
		HTTPPort:     getEnv("HTTP_PORT", "8080"),
		Domain:       getEnv("DOMAIN", "localhost"),
		DBPath:       getEnv("DB_PATH", "teleconsult.db"),
		TURNPort:     getEnvInt("TURN_PORT", 3478),
		TURNRealm:    getEnv("TURN_REALM", "teleconsult"),
		TURNPublicIP: getEnv("TURN_PUBLIC_IP", ""),
		RoomTTL:      time.Duration(getEnvInt("ROOM_TTL_MINUTES", 30)) * time.Minute,
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	cfg.JWTSecret = loadOrGenerateJWTSecret()
	cfg.VAPIDKeys = loadVAPIDKeys()

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getKeysDirectory resolves the keys directory next to the executable so
// generated secrets survive restarts of the same deployment.
func getKeysDirectory() string {
	execPath, err := os.Executable()
	if err != nil {
		return "keys"
	}
	return filepath.Join(filepath.Dir(execPath), "keys")
}

func generateRandomSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}

func loadOrGenerateJWTSecret() string {
	// Environment wins over the persisted file.
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		return secret
	}

	keysDir := getKeysDirectory()
	secretFile := filepath.Join(keysDir, "jwt-secret.key")

	if data, err := os.ReadFile(secretFile); err == nil {
		if secret := strings.TrimSpace(string(data)); secret != "" {
			return secret
		}
	}

	secret := generateRandomSecret()
	if err := os.MkdirAll(keysDir, 0700); err == nil {
		if err := os.WriteFile(secretFile, []byte(secret), 0600); err != nil {
			fmt.Printf("Warning: failed to save JWT secret: %v\n", err)
			fmt.Println("Secret will be regenerated on restart unless JWT_SECRET is set")
		}
	}
	return secret
}

func loadVAPIDKeys() *VAPIDKeys {
	publicKey := os.Getenv("VAPID_PUBLIC_KEY")
	privateKey := os.Getenv("VAPID_PRIVATE_KEY")
	if publicKey != "" && privateKey != "" {
		return &VAPIDKeys{
			PublicKey:  publicKey,
			PrivateKey: privateKey,
			Subject:    getEnv("VAPID_SUBJECT", "mailto:admin@teleconsult.local"),
		}
	}

	keysDir := getKeysDirectory()
	publicKeyFile := filepath.Join(keysDir, "vapid-public.key")
	privateKeyFile := filepath.Join(keysDir, "vapid-private.key")

	if publicData, err := os.ReadFile(publicKeyFile); err == nil {
		if privateData, err := os.ReadFile(privateKeyFile); err == nil {
			priv := strings.TrimSpace(string(privateData))
			// The webpush library expects the raw 32-byte P-256 private key.
			if decoded, err := base64.RawURLEncoding.DecodeString(priv); err == nil && len(decoded) == 32 {
				return &VAPIDKeys{
					PublicKey:  strings.TrimSpace(string(publicData)),
					PrivateKey: priv,
					Subject:    getEnv("VAPID_SUBJECT", "mailto:admin@teleconsult.local"),
				}
			}
			fmt.Println("Warning: stored VAPID private key is not a raw P-256 key, regenerating")
			os.Remove(publicKeyFile)
			os.Remove(privateKeyFile)
		}
	}

	privateKeyECDSA, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic("failed to generate VAPID keys: " + err.Error())
	}

	// Uncompressed public point (0x04 || X || Y) for the browser.
	publicKeyBytes := make([]byte, 65)
	publicKeyBytes[0] = 0x04
	privateKeyECDSA.PublicKey.X.FillBytes(publicKeyBytes[1:33])
	privateKeyECDSA.PublicKey.Y.FillBytes(publicKeyBytes[33:65])

	privateKeyBytes := make([]byte, 32)
	privateKeyECDSA.D.FillBytes(privateKeyBytes)

	keys := &VAPIDKeys{
		PublicKey:  base64.RawURLEncoding.EncodeToString(publicKeyBytes),
		PrivateKey: base64.RawURLEncoding.EncodeToString(privateKeyBytes),
		Subject:    getEnv("VAPID_SUBJECT", "mailto:admin@teleconsult.local"),
	}

	if err := os.MkdirAll(keysDir, 0700); err == nil {
		if err := os.WriteFile(publicKeyFile, []byte(keys.PublicKey), 0600); err != nil {
			fmt.Printf("Warning: failed to save VAPID public key: %v\n", err)
		}
		if err := os.WriteFile(privateKeyFile, []byte(keys.PrivateKey), 0600); err != nil {
			fmt.Printf("Warning: failed to save VAPID private key: %v\n", err)
		}
	}

	return keys
}
