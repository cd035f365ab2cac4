package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for devocr
type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Processing ProcessingConfig `mapstructure:"processing" yaml:"processing"`
	OCR        OCRConfig        `mapstructure:"ocr" yaml:"ocr"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output"`
	Export     ExportConfig     `mapstructure:"export" yaml:"export"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Session    SessionConfig    `mapstructure:"session" yaml:"session"`
	Security   SecurityConfig   `mapstructure:"security" yaml:"security"`
	Janitor    JanitorConfig    `mapstructure:"janitor" yaml:"janitor"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string  `mapstructure:"address" yaml:"address"`
	Port         int     `mapstructure:"port" yaml:"port"`
	ReadTimeout  int     `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout int     `mapstructure:"write_timeout" yaml:"write_timeout"`
	BodyLimitMB  int     `mapstructure:"body_limit_mb" yaml:"body_limit_mb"`
	ConvertRPS   float64 `mapstructure:"convert_rps" yaml:"convert_rps"`
	ConvertBurst int     `mapstructure:"convert_burst" yaml:"convert_burst"`
}

// Range is an inclusive integer bound with a default.
type Range struct {
	Default int `mapstructure:"default" yaml:"default"`
	Min     int `mapstructure:"min" yaml:"min"`
	Max     int `mapstructure:"max" yaml:"max"`
}

// Clamp bounds v to [Min, Max]; zero selects the default.
func (r Range) Clamp(v int) int {
	if v == 0 {
		v = r.Default
	}
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// ProcessingConfig holds rasterization and batching settings
type ProcessingConfig struct {
	Workers       int    `mapstructure:"workers" yaml:"workers"`
	DPI           Range  `mapstructure:"dpi" yaml:"dpi"`
	BatchSize     Range  `mapstructure:"batch_size" yaml:"batch_size"`
	PreviewPages  int    `mapstructure:"preview_pages" yaml:"preview_pages"`
	ScratchPrefix string `mapstructure:"scratch_prefix" yaml:"scratch_prefix"`
	Rasterizer    string `mapstructure:"rasterizer" yaml:"rasterizer"`
}

// WorkerCount returns the pool size: configured, or all CPUs but one.
func (p ProcessingConfig) WorkerCount() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return DefaultWorkers()
}

// DefaultWorkers leaves one CPU free for the host, minimum 1.
func DefaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		return 1
	}
	return n
}

// OCRConfig holds OCR engine settings
type OCRConfig struct {
	Engine            string   `mapstructure:"engine" yaml:"engine"`
	Binary            string   `mapstructure:"binary" yaml:"binary"`
	Config            string   `mapstructure:"config" yaml:"config"`
	TessdataDir       string   `mapstructure:"tessdata_dir" yaml:"tessdata_dir"`
	RequiredLanguages []string `mapstructure:"required_languages" yaml:"required_languages"`
}

// OutputConfig holds export destination settings
type OutputConfig struct {
	Dir           string `mapstructure:"dir" yaml:"dir"`
	DefaultFormat string `mapstructure:"default_format" yaml:"default_format"`
}

// ExportConfig holds format writer settings
type ExportConfig struct {
	PDFRenderer string `mapstructure:"pdf_renderer" yaml:"pdf_renderer"`
	ChromePath  string `mapstructure:"chrome_path" yaml:"chrome_path"`
	FontPath    string `mapstructure:"font_path" yaml:"font_path"`
	PDFTimeout  int    `mapstructure:"pdf_timeout" yaml:"pdf_timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir" yaml:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path" yaml:"badger_path"`
}

// SessionConfig holds UI session settings
type SessionConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"`
	TTLMinutes int    `mapstructure:"ttl_minutes" yaml:"ttl_minutes"`
}

func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLMinutes) * time.Minute
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	DownloadSecret     string   `mapstructure:"download_secret" yaml:"-"`
	DownloadTTLMinutes int      `mapstructure:"download_ttl_minutes" yaml:"download_ttl_minutes"`
	AllowOrigins       []string `mapstructure:"allow_origins" yaml:"allow_origins"`
}

func (s SecurityConfig) DownloadTTL() time.Duration {
	return time.Duration(s.DownloadTTLMinutes) * time.Minute
}

// JanitorConfig holds cleanup schedule settings
type JanitorConfig struct {
	Schedule         string `mapstructure:"schedule" yaml:"schedule"`
	ExportMaxAgeMins int    `mapstructure:"export_max_age_minutes" yaml:"export_max_age_minutes"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.SetDefault("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "devocr.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "sessions"))

	if configPath == "" {
		configPath = ConfigFilePath(dataDir)
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (DEVOCR_SERVER_PORT, DEVOCR_OUTPUT_DIR, etc.)
	applyAliases()
	v.SetEnvPrefix("DEVOCR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Output.Dir = expandPath(cfg.Output.Dir)
	cfg.OCR.TessdataDir = expandPath(cfg.OCR.TessdataDir)
	cfg.Export.FontPath = expandPath(cfg.Export.FontPath)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8501)
	v.SetDefault("server.read_timeout", 300)
	v.SetDefault("server.write_timeout", 300)
	v.SetDefault("server.body_limit_mb", 200)
	v.SetDefault("server.convert_rps", 1.0)
	v.SetDefault("server.convert_burst", 3)

	v.SetDefault("processing.workers", 0)
	v.SetDefault("processing.dpi.default", 200)
	v.SetDefault("processing.dpi.min", 100)
	v.SetDefault("processing.dpi.max", 300)
	v.SetDefault("processing.batch_size.default", 10)
	v.SetDefault("processing.batch_size.min", 5)
	v.SetDefault("processing.batch_size.max", 50)
	v.SetDefault("processing.preview_pages", 3)
	v.SetDefault("processing.scratch_prefix", "devanagari_ocr_")
	v.SetDefault("processing.rasterizer", "pdftoppm")

	v.SetDefault("ocr.engine", "tesseract")
	v.SetDefault("ocr.binary", "tesseract")
	v.SetDefault("ocr.config", "--oem 3 --psm 6 -l hin+san")
	v.SetDefault("ocr.tessdata_dir", "")
	v.SetDefault("ocr.required_languages", []string{"hin", "san"})

	v.SetDefault("output.dir", "output")
	v.SetDefault("output.default_format", "txt")

	v.SetDefault("export.pdf_renderer", "chrome")
	v.SetDefault("export.chrome_path", "")
	v.SetDefault("export.font_path", "")
	v.SetDefault("export.pdf_timeout", 60)

	v.SetDefault("session.backend", "badger")
	v.SetDefault("session.ttl_minutes", 120)

	v.SetDefault("security.download_secret", "")
	v.SetDefault("security.download_ttl_minutes", 10)
	v.SetDefault("security.allow_origins", []string{"*"})

	v.SetDefault("janitor.schedule", "@every 10m")
	v.SetDefault("janitor.export_max_age_minutes", 60)
}

// ConfigFilePath is where Load looks for devocr.yaml when no path is given.
func ConfigFilePath(dataDir string) string {
	return filepath.Join(dataDir, "devocr.yaml")
}

// DefaultDataDir returns the XDG data directory for devocr.
func DefaultDataDir() string {
	return getDefaultDataDir()
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "devocr")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "devocr")
}

func validate(cfg *Config) error {
	p := cfg.Processing
	if p.DPI.Min <= 0 || p.DPI.Min > p.DPI.Max {
		return fmt.Errorf("processing.dpi: invalid bounds [%d, %d]", p.DPI.Min, p.DPI.Max)
	}
	if p.BatchSize.Min <= 0 || p.BatchSize.Min > p.BatchSize.Max {
		return fmt.Errorf("processing.batch_size: invalid bounds [%d, %d]", p.BatchSize.Min, p.BatchSize.Max)
	}
	cfg.Processing.DPI.Default = p.DPI.Clamp(p.DPI.Default)
	cfg.Processing.BatchSize.Default = p.BatchSize.Clamp(p.BatchSize.Default)

	if cfg.Processing.PreviewPages <= 0 {
		return fmt.Errorf("processing.preview_pages must be positive")
	}
	if cfg.OCR.Config == "" {
		return fmt.Errorf("ocr.config is required")
	}
	if len(cfg.OCR.RequiredLanguages) == 0 {
		return fmt.Errorf("ocr.required_languages is required")
	}
	if cfg.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}

	if cfg.Security.DownloadSecret == "" {
		cfg.Security.DownloadSecret = generateSecret(32)
	}

	return nil
}

func generateSecret(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return strings.Repeat("x", n*2)
	}
	return hex.EncodeToString(b)
}

// ListenAddr returns host:port for the HTTP server
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
