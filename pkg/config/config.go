// Package config holds the service configuration. Everything dynamic is
// resolved once at startup (env, .env file, font discovery) and injected
// into the components that need it; nothing reads the environment after
// Load returns.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/kanjilens/kanjilens/pkg/logging"
)

// Config holds the complete service configuration
type Config struct {
	Logging  *logging.LogConfig `json:"logging"`
	Server   *ServerConfig      `json:"server"`
	Pipeline *PipelineConfig    `json:"pipeline"`
	OCR      *OCRConfig         `json:"ocr"`
	NLP      *NLPConfig         `json:"nlp"`
	LLM      *LLMConfig         `json:"llm"`
	Layout   *LayoutConfig      `json:"layout"`
	Render   *RenderConfig      `json:"render"`
	Artifact *ArtifactConfig    `json:"artifact"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	MaxRequestSize int64         `json:"max_request_size"`
}

// PipelineConfig holds time budgets for the stages with suspension points
// (layout is pure in-memory work and carries none) plus enrichment
// concurrency.
type PipelineConfig struct {
	OCRTimeout     time.Duration `json:"ocr_timeout"`
	EnrichTimeout  time.Duration `json:"enrich_timeout"`
	AnalyzeTimeout time.Duration `json:"analyze_timeout"`
	EnrichWorkers  int           `json:"enrich_workers"`
	MaxGlosses     int           `json:"max_glosses"`
}

// OCRConfig holds Tesseract settings
type OCRConfig struct {
	Language      string  `json:"language"`       // tesseract language code
	MinConfidence float64 `json:"min_confidence"` // 0..100, below is discarded
}

// NLPConfig holds tokenizer and dictionary settings
type NLPConfig struct {
	DictionaryPath string `json:"dictionary_path"` // empty means no gloss lookup
}

// LLMConfig holds the language-model collaborator settings
type LLMConfig struct {
	BaseURL     string        `json:"base_url"`
	APIKey      string        `json:"-"`
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Timeout     time.Duration `json:"timeout"`
	MaxRetries  int           `json:"max_retries"`
}

// LayoutConfig holds annotation placement parameters
type LayoutConfig struct {
	CharWidth int `json:"char_width"` // estimated rendered width per reading rune, px
	MaxBands  int `json:"max_bands"`  // stacking levels before a placement is dropped
}

// RenderConfig holds renderer settings. FontPaths is resolved at startup;
// the first readable font wins.
type RenderConfig struct {
	FontPaths []string `json:"font_paths"`
	FontSize  float64  `json:"font_size"`
}

// ArtifactConfig holds annotated-image artifact settings
type ArtifactConfig struct {
	Dir    string        `json:"dir"`
	MaxAge time.Duration `json:"max_age"` // artifacts older than this are swept at startup
}

// Default returns a complete default configuration
func Default() *Config {
	return &Config{
		Logging: logging.DefaultLogConfig(),
		Server: &ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
			MaxRequestSize: 20 * 1024 * 1024, // 20MB
		},
		Pipeline: &PipelineConfig{
			OCRTimeout:     30 * time.Second,
			EnrichTimeout:  15 * time.Second,
			AnalyzeTimeout: 60 * time.Second,
			EnrichWorkers:  4,
			MaxGlosses:     2,
		},
		OCR: &OCRConfig{
			Language:      "jpn",
			MinConfidence: 20,
		},
		NLP: &NLPConfig{
			DictionaryPath: "./data/jmdict.json",
		},
		LLM: &LLMConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "llama-3.3-70b-versatile",
			Temperature: 0.3,
			MaxTokens:   5000,
			Timeout:     60 * time.Second,
			MaxRetries:  2,
		},
		Layout: &LayoutConfig{
			CharWidth: 12,
			MaxBands:  3,
		},
		Render: &RenderConfig{
			FontPaths: []string{
				"/usr/share/fonts/opentype/noto/NotoSansCJK-Regular.ttc",
				"/usr/share/fonts/truetype/noto/NotoSansCJKjp-Regular.otf",
				"/System/Library/Fonts/Hiragino Sans GB.ttc",
				"C:/Windows/Fonts/msgothic.ttc",
			},
			FontSize: 14,
		},
		Artifact: &ArtifactConfig{
			Dir:    "./data/annotated",
			MaxAge: time.Hour,
		},
	}
}

// Load builds the configuration from defaults plus environment overrides.
// A .env file in the working directory is honored if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)

	cfg.OCR.Language = getEnv("OCR_LANGUAGE", cfg.OCR.Language)

	cfg.NLP.DictionaryPath = getEnv("DICTIONARY_PATH", cfg.NLP.DictionaryPath)

	cfg.LLM.BaseURL = getEnv("GROQ_API_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("GROQ_API_KEY", "")
	cfg.LLM.Model = getEnv("GROQ_MODEL", cfg.LLM.Model)

	if fp := getEnv("FONT_PATH", ""); fp != "" {
		cfg.Render.FontPaths = append([]string{fp}, cfg.Render.FontPaths...)
	}

	cfg.Artifact.Dir = getEnv("ARTIFACT_DIR", cfg.Artifact.Dir)

	cfg.Pipeline.EnrichWorkers = getEnvInt("ENRICH_WORKERS", cfg.Pipeline.EnrichWorkers)

	return cfg, cfg.Validate()
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Pipeline.EnrichWorkers < 1 {
		return fmt.Errorf("enrich workers must be at least 1, got %d", c.Pipeline.EnrichWorkers)
	}
	if c.Layout.MaxBands < 1 {
		return fmt.Errorf("layout max bands must be at least 1, got %d", c.Layout.MaxBands)
	}
	return nil
}

// ResolveFontPath returns the first configured font path that exists on
// disk. Resolution happens once at startup so the renderer never probes
// the filesystem per request.
func (r *RenderConfig) ResolveFontPath() (string, error) {
	for _, p := range r.FontPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no usable font found in %d candidate paths", len(r.FontPaths))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
