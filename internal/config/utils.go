package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// lookupEnv treats a blank variable as unset.
func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func getEnv(key, defaultVal string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	value, ok := lookupEnv(key)
	if !ok {
		return defaultVal
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return defaultVal
	}
	return v
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	value, ok := lookupEnv(key)
	if !ok {
		return defaultVal
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultVal
	}
	return v
}

func getEnvAsBool(key string, defaultVal bool) bool {
	value, ok := lookupEnv(key)
	if !ok {
		return defaultVal
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		return defaultVal
	}
	return v
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	value, ok := lookupEnv(key)
	if !ok {
		return defaultVal
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvAsStringSlice(key string, defaults []string) []string {
	value, ok := lookupEnv(key)
	if !ok {
		return defaults
	}
	filtered := make([]string, 0, strings.Count(value, ",")+1)
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) == 0 {
		return defaults
	}
	return filtered
}
