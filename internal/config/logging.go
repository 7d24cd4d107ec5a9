package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/gridbot/core/pkg/logger"
)

// LoadLoggingProps parses a Java-properties-style key=value file (one
// entry per line, '#' or '!' starts a comment) into a logger.Config.
// Recognized keys: level, output_file, max_size, max_backups, max_age,
// compress. Unrecognized keys are ignored.
func LoadLoggingProps(path string) (logger.Config, error) {
	cfg := logger.Config{Level: "info"}

	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "level":
			cfg.Level = value
		case "output_file":
			cfg.OutputFile = value
		case "max_size":
			cfg.MaxSize, _ = strconv.Atoi(value)
		case "max_backups":
			cfg.MaxBackups, _ = strconv.Atoi(value)
		case "max_age":
			cfg.MaxAge, _ = strconv.Atoi(value)
		case "compress":
			cfg.Compress, _ = strconv.ParseBool(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
