package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port      string
	Mode      string // dev|prod, selects logger config
	DBPath    string
	JWTSecret string

	// OpenAI-compatible endpoints. Chat and embeddings may be served by
	// different deployments, so each carries its own endpoint/key.
	LLMEndpoint string
	LLMAPIKey   string
	LLMModel    string
	EmbEndpoint string
	EmbAPIKey   string
	EmbModel    string

	// Classifier policy knobs.
	SimilarityThreshold        float64
	MinConfidenceThreshold     float64
	SuccessConfidenceThreshold float64
	DefaultCTIID               uint
	LearningDataDir            string
}

func Load() AppConfig {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("[cfg] No .env file found or error loading: %v", err)
	}

	get := func(k, def string) string {
		if v := os.Getenv(k); v != "" {
			return v
		}
		return def
	}
	getFloat := func(k string, def float64) float64 {
		if v := os.Getenv(k); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
			log.Printf("[cfg] %s: not a float, using default %v", k, def)
		}
		return def
	}
	getUint := func(k string, def uint) uint {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.ParseUint(v, 10, 32); err == nil {
				return uint(n)
			}
			log.Printf("[cfg] %s: not an integer, using default %v", k, def)
		}
		return def
	}

	cfg := AppConfig{
		Port:      get("PORT", "8080"),
		Mode:      get("MODE", "dev"),
		DBPath:    get("DB_PATH", "triage.db"),
		JWTSecret: get("JWT_SECRET", "dev-secret-change-me"),

		LLMEndpoint: get("LLM_ENDPOINT", ""),
		LLMAPIKey:   get("LLM_API_KEY", ""),
		LLMModel:    get("LLM_MODEL", "gpt-4o"),
		EmbEndpoint: get("EMB_ENDPOINT", ""),
		EmbAPIKey:   get("EMB_API_KEY", ""),
		EmbModel:    get("EMB_MODEL", "text-embedding-3-large"),

		SimilarityThreshold:        getFloat("SIMILARITY_THRESHOLD", 0.2),
		MinConfidenceThreshold:     getFloat("MIN_CONFIDENCE_THRESHOLD", 0.3),
		SuccessConfidenceThreshold: getFloat("SUCCESS_CONFIDENCE_THRESHOLD", 0.7),
		DefaultCTIID:               getUint("DEFAULT_CTI_ID", 0),
		LearningDataDir:            get("LEARNING_DATA_DIR", "learning_data"),
	}
	return cfg
}
