package config

import (
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

type Config struct {
	Database  DatabaseConfig
	Rabbit    RabbitConfig
	Rules     RulesConfig
	Heuristic HeuristicConfig
	Metrics   MetricsConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RabbitConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
	Prefetch int
	Workers  int
}

// RulesConfig drives the rule evaluator and the acceptance threshold
// applied to heuristic decisions before they can flag a transaction.
type RulesConfig struct {
	AmountThreshold   decimal.Decimal
	HighRiskCountries string
	ScoreThreshold    decimal.Decimal
}

type HeuristicConfig struct {
	HighRiskCountries string
}

type MetricsConfig struct {
	Addr string
}

func Load() (*Config, error) {
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, err
	}
	rmqPort, err := strconv.Atoi(getEnv("RABBITMQ_PORT", "5672"))
	if err != nil {
		return nil, err
	}
	prefetch, err := strconv.Atoi(getEnv("RABBITMQ_PREFETCH", "32"))
	if err != nil {
		return nil, err
	}
	workers, err := strconv.Atoi(getEnv("RABBITMQ_WORKERS", "4"))
	if err != nil {
		return nil, err
	}
	amountThreshold, err := decimal.NewFromString(getEnv("RULES_AMOUNT_THRESHOLD", "10000"))
	if err != nil {
		return nil, err
	}
	scoreThreshold, err := decimal.NewFromString(getEnv("RULES_SCORE_THRESHOLD", "0.70"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "matchsentinel"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Rabbit: RabbitConfig{
			Host:     getEnv("RABBITMQ_HOST", "localhost"),
			Port:     rmqPort,
			User:     getEnv("RABBITMQ_USER", "guest"),
			Password: getEnv("RABBITMQ_PASSWORD", "guest"),
			VHost:    getEnv("RABBITMQ_VHOST", "/"),
			Prefetch: prefetch,
			Workers:  workers,
		},
		Rules: RulesConfig{
			AmountThreshold:   amountThreshold,
			HighRiskCountries: getEnv("RULES_HIGH_RISK_COUNTRIES", "IR,KP,SY,RU"),
			ScoreThreshold:    scoreThreshold,
		},
		Heuristic: HeuristicConfig{
			HighRiskCountries: getEnv("HEURISTIC_HIGH_RISK_COUNTRIES", "IR,KP,SY,RU"),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ":9090"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
