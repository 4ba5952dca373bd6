// Package config builds runtime configuration from environment variables so
// main stays lean. All trust-policy numbers live here: thresholds, windows,
// tolerances, and the credibility delta table are tunables, not constants.
package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	PostgresURL   string
	RedisURL      string
}

// Trust captures the policy knobs of the trust engine.
type Trust struct {
	// RetentionWindowDays is W from the temporal rules: observations asserted
	// further than W days from now require justification.
	RetentionWindowDays int

	// Tier credibility thresholds for verification standing.
	Tier1MinScore int
	Tier2MinScore int

	// NewUserBaseScore is the starting credibility for unknown users. Must be
	// in [0,20].
	NewUserBaseScore int

	// Dispute resolution: resolve at quorum votes, or force resolution when
	// the voting window elapses, whichever comes first.
	DisputeQuorum int
	VotingWindow  time.Duration

	// Conflict detection tolerances: coordinates are bucketed to
	// ConflictCellDecimals decimal places, timestamps to the UTC calendar day.
	ConflictCellDecimals int

	// Buffer-zone disclosure precision bounds (meters). The contributor picks
	// within [min,max]; the midpoint applies when unspecified.
	BufferPrecisionMinMeters int
	BufferPrecisionMaxMeters int

	// MaxTransitionRetries bounds automatic retries after losing a
	// serialization race.
	MaxTransitionRetries int

	// SyncWorkers bounds parallelism when replaying offline batches.
	SyncWorkers int

	// Credibility deltas (policy table). Monotonic response to correctness is
	// the contract; the numbers are operator-tunable.
	Deltas DeltaTable
}

// DeltaTable maps verification/dispute outcomes to credibility score deltas.
type DeltaTable struct {
	OwnerVerified          int // observation reached verified
	OwnerOverturned        int // owner's verified observation overturned (negative)
	OwnerUpheld            int // owner's observation survived a dispute
	VerifierOverturned     int // original verifier's call reversed (negative)
	VerifierParticipation  int // modest credit for tier-appropriate verification work
	VoterParticipation     int // modest credit for casting a resolving vote
	DisputantConfirmed     int // disputer credited when the dispute is overturned in their favor
	DisputantRejected      int // disputer debited when the community upholds (negative)
}

// Config is the root configuration object.
type Config struct {
	Server Server
	Trust  Trust
}

// FromEnv builds a Config from environment variables with development defaults.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:          getEnv("NATUREWATCH_ADDR", ":8080"),
			JWTSigningKey: getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			PostgresURL:   os.Getenv("POSTGRES_URL"),
			RedisURL:      os.Getenv("REDIS_URL"),
		},
		Trust: Trust{
			RetentionWindowDays:      getEnvInt("RETENTION_WINDOW_DAYS", 90),
			Tier1MinScore:            getEnvInt("TIER1_MIN_SCORE", 20),
			Tier2MinScore:            getEnvInt("TIER2_MIN_SCORE", 70),
			NewUserBaseScore:         getEnvInt("NEW_USER_BASE_SCORE", 10),
			DisputeQuorum:            getEnvInt("DISPUTE_QUORUM", 3),
			VotingWindow:             getEnvDuration("VOTING_WINDOW", 72*time.Hour),
			ConflictCellDecimals:     getEnvInt("CONFLICT_CELL_DECIMALS", 3),
			BufferPrecisionMinMeters: getEnvInt("BUFFER_PRECISION_MIN_M", 100),
			BufferPrecisionMaxMeters: getEnvInt("BUFFER_PRECISION_MAX_M", 5000),
			MaxTransitionRetries:     getEnvInt("MAX_TRANSITION_RETRIES", 3),
			SyncWorkers:              getEnvInt("SYNC_WORKERS", 4),
			Deltas: DeltaTable{
				OwnerVerified:         getEnvInt("DELTA_OWNER_VERIFIED", 2),
				OwnerOverturned:       getEnvInt("DELTA_OWNER_OVERTURNED", -5),
				OwnerUpheld:           getEnvInt("DELTA_OWNER_UPHELD", 1),
				VerifierOverturned:    getEnvInt("DELTA_VERIFIER_OVERTURNED", -4),
				VerifierParticipation: getEnvInt("DELTA_VERIFIER_PARTICIPATION", 1),
				VoterParticipation:    getEnvInt("DELTA_VOTER_PARTICIPATION", 1),
				DisputantConfirmed:    getEnvInt("DELTA_DISPUTANT_CONFIRMED", 2),
				DisputantRejected:     getEnvInt("DELTA_DISPUTANT_REJECTED", -2),
			},
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
