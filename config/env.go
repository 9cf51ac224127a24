package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadFromEnv loads a .env file (if present) and then overrides c from the
// process environment. Unset variables leave the current value untouched.
func (c *Config) LoadFromEnv() error {
	// Missing .env is not an error.
	_ = godotenv.Load()

	if v, ok := EnvString("WB_API_BASE_URL"); ok {
		c.SearchURL = v
	}
	if v, ok := EnvString("WB_DEST"); ok {
		c.Dest = v
	}
	if v, ok, err := EnvInt("WB_MAX_PAGES"); err != nil {
		return err
	} else if ok {
		c.MaxPages = v
	}
	if v, ok, err := EnvInt("WB_CONCURRENCY_LIMIT"); err != nil {
		return err
	} else if ok {
		c.ConcurrencyLimit = v
	}
	if v, ok, err := EnvDuration("WB_REQUEST_TIMEOUT"); err != nil {
		return err
	} else if ok {
		c.RequestTimeout = v
	}
	if v, ok, err := EnvInt("WB_RETRY_ATTEMPTS"); err != nil {
		return err
	} else if ok {
		c.RetryAttempts = v
	}
	if v, ok, err := EnvFloat("WB_BACKOFF_FACTOR"); err != nil {
		return err
	} else if ok {
		c.BackoffFactor = v
	}
	if v, ok := EnvString("WB_DELAY_BETWEEN_REQUESTS"); ok {
		minDelay, maxDelay, err := ParseDelayRange(v)
		if err != nil {
			return fmt.Errorf("WB_DELAY_BETWEEN_REQUESTS: %w", err)
		}
		c.DelayMin, c.DelayMax = minDelay, maxDelay
	}
	if v, ok, err := EnvFloat("WB_RATE_PER_SECOND"); err != nil {
		return err
	} else if ok {
		c.RatePerSecond = v
	}
	if v, ok, err := EnvInt("MAX_KEYWORDS_LIMIT"); err != nil {
		return err
	} else if ok {
		c.MaxKeywords = v
	}
	if v, ok, err := EnvFloat("MAX_EXECUTION_TIME_MINUTES"); err != nil {
		return err
	} else if ok {
		c.MaxExecutionTime = time.Duration(v * float64(time.Minute))
	}
	if v, ok, err := EnvDuration("DEADLINE_GRACE"); err != nil {
		return err
	} else if ok {
		c.DeadlineGrace = v
	}
	if v, ok := EnvString("LOG_LEVEL"); ok {
		c.LogLevel = strings.ToLower(v)
	}
	if v, ok := EnvString("LOG_FORMAT"); ok {
		c.LogFormat = strings.ToLower(v)
	}
	if v, ok := EnvString("OUTPUT_DIRECTORY"); ok {
		c.OutputFile = filepath.Join(v, filepath.Base(c.OutputFile))
	}
	if v, ok := EnvString("RANKER_DB_PATH"); ok {
		c.DBPath = v
	}
	if v, ok := EnvString("RANKER_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	return nil
}

// EnvString returns the trimmed value of name and whether it was set to a
// non-empty value.
func EnvString(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return "", false
	}
	return v, true
}

// EnvInt parses name as an integer.
func EnvInt(name string) (int, bool, error) {
	v, ok := EnvString(name)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, true, nil
}

// EnvFloat parses name as a float.
func EnvFloat(name string) (float64, bool, error) {
	v, ok := EnvString(name)
	if !ok {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return f, true, nil
}

// EnvDuration parses name as a Go duration ("15s") or a bare number of
// seconds ("15", "0.5").
func EnvDuration(name string) (time.Duration, bool, error) {
	v, ok := EnvString(name)
	if !ok {
		return 0, false, nil
	}
	d, err := parseSeconds(v)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, true, nil
}

// ParseDelayRange parses "min,max" seconds. Surrounding brackets are accepted
// so "[0.05, 0.2]" works too.
func ParseDelayRange(v string) (time.Duration, time.Duration, error) {
	v = strings.Trim(strings.TrimSpace(v), "[]()")
	parts := strings.Split(v, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected min,max but got %q", v)
	}
	minDelay, err := parseSeconds(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("parse min delay: %w", err)
	}
	maxDelay, err := parseSeconds(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("parse max delay: %w", err)
	}
	return minDelay, maxDelay, nil
}

func parseSeconds(v string) (time.Duration, error) {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}
