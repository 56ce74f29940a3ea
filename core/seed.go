package core

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// GetSeed returns a seed value for random number generation, read from the
// IVFHNSW_SEED environment variable when present and parseable, falling back
// to the current wall-clock time otherwise.
func GetSeed() int64 {
	seedStr := os.Getenv("IVFHNSW_SEED")
	if seedStr != "" {
		if seed, err := strconv.ParseInt(seedStr, 10, 64); err == nil {
			log.Info().Msgf("Using seed from IVFHNSW_SEED value: %d", seed)
			return seed
		}
		log.Warn().Msgf("Failed to parse IVFHNSW_SEED value: %s", seedStr)
	}

	seed := time.Now().UnixNano()
	log.Info().Msgf("Using current time as seed: %d", seed)
	return seed
}
