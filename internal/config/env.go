package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnvFiles reads .env files from the working directory and the user
// config dirs. Variables already present in the environment win.
func LoadEnvFiles() error {
	for _, path := range envPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := loadEnvFile(path); err != nil {
				return err
			}
		}
	}
	return nil
}

func envPaths() []string {
	paths := []string{"./.env"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".devocr", ".env"),
			filepath.Join(home, ".config", "devocr", ".env"),
		)
	}
	return paths
}

func loadEnvFile(path string) error {
	return godotenv.Load(path)
}

func GetEnvWithFallback(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

func GetEnvDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// envAliases maps canonical DEVOCR_* keys to the names other Tesseract and
// Chrome tooling already understands.
var envAliases = map[string][]string{
	"DEVOCR_OCR_TESSDATA_DIR":         {"TESSDATA_PREFIX"},
	"DEVOCR_OCR_BINARY":               {"TESSERACT_CMD", "TESSERACT_PATH"},
	"DEVOCR_EXPORT_CHROME_PATH":       {"CHROME_PATH", "CHROME_BIN"},
	"DEVOCR_SECURITY_DOWNLOAD_SECRET": {"DEVOCR_SECRET"},
}

func ResolveEnvWithAliases(canonicalKey string) string {
	if val := os.Getenv(canonicalKey); val != "" {
		return val
	}

	if aliases, ok := envAliases[canonicalKey]; ok {
		for _, alias := range aliases {
			if val := os.Getenv(alias); val != "" {
				return val
			}
		}
	}

	return ""
}

// applyAliases copies alias values onto their canonical keys so viper's
// AutomaticEnv sees them.
func applyAliases() {
	for canonical := range envAliases {
		if os.Getenv(canonical) != "" {
			continue
		}
		if val := ResolveEnvWithAliases(canonical); val != "" {
			os.Setenv(canonical, val)
		}
	}
}

func GetRequiredEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", &MissingEnvError{Key: key}
	}
	return val, nil
}

type MissingEnvError struct {
	Key string
}

func (e *MissingEnvError) Error() string {
	return "required environment variable not set: " + e.Key
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
