package password

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Params controls Argon2id hashing cost. MemoryKiB is in KiB as required by
// argon2.IDKey.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Params

	// Length bounds, counted in runes.
	MinLength int
	MaxLength int
}

// DefaultConfig returns a baseline suitable for interactive logins.
// Parallelism follows the host CPU count, clamped to [1..4] so cost stays
// predictable inside containers.
func DefaultConfig() Config {
	threads := runtime.NumCPU()
	if threads < 1 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Params{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		MinLength: 8,
		MaxLength: 256,
	}
}

// FromEnv loads config from environment variables, starting from defaults.
//
// Env surface:
//   - PARLEY_PASSWORD_MIN_LEN
//   - PARLEY_PASSWORD_MAX_LEN
//   - PARLEY_ARGON2_MEMORY_KIB
//   - PARLEY_ARGON2_ITERATIONS
//   - PARLEY_ARGON2_PARALLELISM
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("PARLEY_PASSWORD_MIN_LEN"); ok {
		n, err := envInt(v, 1, 1024)
		if err != nil {
			return Config{}, fmt.Errorf("PARLEY_PASSWORD_MIN_LEN: %w", err)
		}
		cfg.MinLength = n
	}

	if v, ok := os.LookupEnv("PARLEY_PASSWORD_MAX_LEN"); ok {
		n, err := envInt(v, 1, 4096)
		if err != nil {
			return Config{}, fmt.Errorf("PARLEY_PASSWORD_MAX_LEN: %w", err)
		}
		cfg.MaxLength = n
	}

	if v, ok := os.LookupEnv("PARLEY_ARGON2_MEMORY_KIB"); ok {
		n, err := envInt(v, 8*1024, 1024*1024) // 8 MiB .. 1 GiB
		if err != nil {
			return Config{}, fmt.Errorf("PARLEY_ARGON2_MEMORY_KIB: %w", err)
		}
		cfg.Params.MemoryKiB = uint32(n) // #nosec G115 -- bounded by envInt above.
	}

	if v, ok := os.LookupEnv("PARLEY_ARGON2_ITERATIONS"); ok {
		n, err := envInt(v, 1, 20)
		if err != nil {
			return Config{}, fmt.Errorf("PARLEY_ARGON2_ITERATIONS: %w", err)
		}
		cfg.Params.Iterations = uint32(n) // #nosec G115 -- bounded by envInt above.
	}

	if v, ok := os.LookupEnv("PARLEY_ARGON2_PARALLELISM"); ok {
		n, err := envInt(v, 1, 64)
		if err != nil {
			return Config{}, fmt.Errorf("PARLEY_ARGON2_PARALLELISM: %w", err)
		}
		cfg.Params.Parallelism = uint8(n) // #nosec G115 -- bounded by envInt above.
	}

	if cfg.MinLength > cfg.MaxLength {
		return Config{}, fmt.Errorf("password policy invalid: min_len(%d) > max_len(%d)", cfg.MinLength, cfg.MaxLength)
	}

	return cfg, nil
}

func envInt(s string, minVal, maxVal int) (int, error) {
	i64, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	n := int(i64)
	if n < minVal || n > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return n, nil
}
