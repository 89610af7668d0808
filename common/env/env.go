package env

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func String(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func Int(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func Bool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// Millis reads a positive integer number of milliseconds.
func Millis(key string, fallback time.Duration) time.Duration {
	n := Int(key, 0)
	if n == 0 {
		return fallback
	}
	return time.Duration(n) * time.Millisecond
}

func CSV(key string, fallback []string) []string {
	result := SplitCSV(os.Getenv(key))
	if len(result) == 0 {
		return append([]string(nil), fallback...)
	}
	return result
}

// SplitCSV splits a comma separated list, dropping blanks and duplicates.
func SplitCSV(v string) []string {
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	seen := map[string]struct{}{}
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		result = append(result, item)
	}
	return result
}
