package kcommon

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvInt returns defaultValue when key is unset or not an integer.
func GetEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetEnvString(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvBool accepts 1/0, true/false, yes/no.
func GetEnvBool(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}

// GetEnvDurationMs reads an integer number of milliseconds.
func GetEnvDurationMs(key string, defaultValue time.Duration) time.Duration {
	ms := GetEnvInt(key, -1)
	if ms < 0 {
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}

func RoundDurationToMs(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}
