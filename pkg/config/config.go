package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	GigaChat    GigaChatConfig
	OCR         OCRConfig
	Converter   ConverterConfig
	Recognition RecognitionConfig
	Logger      LoggerConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BodyLimitMB  int
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	SecretKey  string
	Expiration time.Duration
	RefreshExp time.Duration
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	InsecureSkipVerify bool
	AssistEnabled      bool
}

// OCRConfig selects and configures the OCR engine.
// Provider is "vision" (Google Cloud Vision) or "tesseract".
type OCRConfig struct {
	Provider          string
	VisionCredentials string // inline service-account JSON; empty means default credentials
	VisionEndpoint    string
	Languages         []string
	EnhanceImages     bool
	Timeout           time.Duration
}

// ConverterConfig configures the PDF/Office conversion boundary.
type ConverterConfig struct {
	Python          string
	PDFScript       string
	OfficeScript    string
	Timeout         time.Duration
	MaxProcs        int
	PDFRasterizer   string // "script" | "fitz"
	PDFDPI          int
	PDFMaxPages     int
	PageConcurrency int
}

type RecognitionConfig struct {
	MaxFileMB           int
	RawTextLimit        int
	SupplierAnchorsFile string
}

func Load() (*Config, error) {
	// Try to load .env file from current directory or project root.
	// Plain environment variables are used when none is found (Docker/K8s).
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	readTimeout := getEnvInt("SERVER_READ_TIMEOUT", 30)
	writeTimeout := getEnvInt("SERVER_WRITE_TIMEOUT", 30)
	jwtExp := getEnvInt("JWT_EXPIRATION_HOURS", 24)
	refreshExp := getEnvInt("JWT_REFRESH_EXPIRATION_HOURS", 168)

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
			BodyLimitMB:  getEnvInt("SERVER_BODY_LIMIT_MB", 12),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "stroycrm"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			SecretKey:  getEnv("JWT_SECRET_KEY", "your-secret-key-change-in-production"),
			Expiration: time.Duration(jwtExp) * time.Hour,
			RefreshExp: time.Duration(refreshExp) * time.Hour,
		},
		GigaChat: GigaChatConfig{
			APIKey:             getEnv("GIGACHAT_API_KEY", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			InsecureSkipVerify: getEnvBool("GIGACHAT_INSECURE_SKIP_VERIFY", true),
			AssistEnabled:      getEnvBool("GIGACHAT_ASSIST_ENABLED", false),
		},
		OCR: OCRConfig{
			Provider:          strings.ToLower(getEnv("OCR_PROVIDER", "vision")),
			VisionCredentials: getEnv("GOOGLE_VISION_CREDENTIALS", ""),
			VisionEndpoint:    getEnv("GOOGLE_VISION_ENDPOINT", "https://vision.googleapis.com"),
			Languages:         splitList(getEnv("OCR_LANGUAGES", "ru,en")),
			EnhanceImages:     getEnvBool("OCR_ENHANCE_IMAGES", true),
			Timeout:           time.Duration(getEnvInt("OCR_TIMEOUT", 60)) * time.Second,
		},
		Converter: ConverterConfig{
			Python:          getEnv("CONVERTER_PYTHON", "python3"),
			PDFScript:       getEnv("CONVERTER_PDF_SCRIPT", "scripts/pdf_to_images.py"),
			OfficeScript:    getEnv("CONVERTER_OFFICE_SCRIPT", "scripts/extract_office_text.py"),
			Timeout:         time.Duration(getEnvInt("CONVERTER_TIMEOUT", 90)) * time.Second,
			MaxProcs:        getEnvInt("CONVERTER_MAX_PROCS", 2),
			PDFRasterizer:   strings.ToLower(getEnv("PDF_RASTERIZER", "script")),
			PDFDPI:          getEnvInt("PDF_DPI", 200),
			PDFMaxPages:     getEnvInt("PDF_MAX_PAGES", 20),
			PageConcurrency: getEnvInt("PDF_PAGE_CONCURRENCY", 2),
		},
		Recognition: RecognitionConfig{
			MaxFileMB:           getEnvInt("RECOGNITION_MAX_FILE_MB", 10),
			RawTextLimit:        getEnvInt("RECOGNITION_RAW_TEXT_LIMIT", 5000),
			SupplierAnchorsFile: getEnv("SUPPLIER_ANCHORS_FILE", "config/supplier_anchors.yaml"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1"
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
