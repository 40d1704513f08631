// Package config defines the vector index's configuration struct, the
// CREATE/UPDATE VECTOR INDEX `WITH (...)` option parser, and the
// path-traversal-safe directory validation checkpointing relies on.
package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gibram-io/annidx/internal/annerr"
)

// DistanceFunc selects the metric a partition's graph is built and
// searched under.
type DistanceFunc int

const (
	L2 DistanceFunc = iota
	Cosine
	IP
)

func (d DistanceFunc) String() string {
	switch d {
	case L2:
		return "L2"
	case Cosine:
		return "COSINE"
	case IP:
		return "IP"
	default:
		return "UNKNOWN"
	}
}

func parseDistanceFunc(s string) (DistanceFunc, error) {
	switch strings.ToUpper(s) {
	case "L2":
		return L2, nil
	case "COSINE":
		return Cosine, nil
	case "IP":
		return IP, nil
	default:
		return 0, fmt.Errorf("unknown distance function %q", s)
	}
}

// VectorIndexConfig mirrors the persisted config struct of the
// header: every field is optional at CREATE time and falls back to
// Default().
type VectorIndexConfig struct {
	MaxNbrsUpper           int
	MaxNbrsLower           int
	SamplingProbability    float32
	EfConstruction         int
	EfSearch               int
	Alpha                  float32
	NumVectorsPerPartition int
	SQEnabled              bool
	DistanceFunc           DistanceFunc

	// Gamma controls filter-friendliness of the graph (Open Question
	// in the source: referenced as config.gamma but never defined on
	// VectorIndexConfig). Resolved here with default 1.0.
	Gamma float32
}

// Default returns the documented default configuration.
func Default() VectorIndexConfig {
	return VectorIndexConfig{
		MaxNbrsUpper:           64,
		MaxNbrsLower:           128,
		SamplingProbability:    0.05,
		EfConstruction:         200,
		EfSearch:               200,
		Alpha:                  1.0,
		NumVectorsPerPartition: 5_000_000,
		SQEnabled:              true,
		DistanceFunc:           Cosine,
		Gamma:                  1.0,
	}
}

// Validate enforces the configuration error kind of the spec:
// sampling probability must lie in [0, 0.4], efConstruction/efSearch/
// maxNbrs must be positive, and numVectorsPerPartition must be
// positive.
func (c VectorIndexConfig) Validate(dim int) error {
	if dim <= 0 {
		return &annerr.ConfigError{Option: "dim", Reason: "must be positive"}
	}
	if c.SamplingProbability < 0 || c.SamplingProbability > 0.4 {
		return &annerr.ConfigError{Option: "SAMPLINGPROBABILITY", Reason: "must be within [0, 0.4]"}
	}
	if c.MaxNbrsUpper <= 0 || c.MaxNbrsLower <= 0 {
		return &annerr.ConfigError{Option: "MAXNBRSATUPPERLEVEL/MAXNBRSATLOWERLEVEL", Reason: "must be positive"}
	}
	if c.EfConstruction <= 0 || c.EfSearch <= 0 {
		return &annerr.ConfigError{Option: "EFCONSTRUCTION/EFSEARCH", Reason: "must be positive"}
	}
	if c.NumVectorsPerPartition <= 0 {
		return &annerr.ConfigError{Option: "NUMVECTORSPERPARTITION", Reason: "must be positive"}
	}
	if c.Gamma <= 0 {
		return &annerr.ConfigError{Option: "GAMMA", Reason: "must be positive"}
	}
	return nil
}

// ParseOptions parses the `WITH (OPT=val, ...)` option bag recognized
// by CREATE/UPDATE VECTOR INDEX (spec.md §6.1) on top of Default().
// Unknown options are rejected as configuration errors so a typo never
// silently falls back to a default.
func ParseOptions(opts map[string]string) (VectorIndexConfig, error) {
	cfg := Default()

	for rawKey, val := range opts {
		key := strings.ToUpper(strings.TrimSpace(rawKey))
		switch key {
		case "MAXNBRSATUPPERLEVEL":
			n, err := strconv.Atoi(val)
			if err != nil {
				return cfg, &annerr.ConfigError{Option: key, Reason: err.Error()}
			}
			cfg.MaxNbrsUpper = n
		case "MAXNBRSATLOWERLEVEL":
			n, err := strconv.Atoi(val)
			if err != nil {
				return cfg, &annerr.ConfigError{Option: key, Reason: err.Error()}
			}
			cfg.MaxNbrsLower = n
		case "SAMPLINGPROBABILITY":
			f, err := strconv.ParseFloat(val, 32)
			if err != nil {
				return cfg, &annerr.ConfigError{Option: key, Reason: err.Error()}
			}
			cfg.SamplingProbability = float32(f)
		case "EFCONSTRUCTION":
			n, err := strconv.Atoi(val)
			if err != nil {
				return cfg, &annerr.ConfigError{Option: key, Reason: err.Error()}
			}
			cfg.EfConstruction = n
		case "EFSEARCH":
			n, err := strconv.Atoi(val)
			if err != nil {
				return cfg, &annerr.ConfigError{Option: key, Reason: err.Error()}
			}
			cfg.EfSearch = n
		case "ALPHA":
			f, err := strconv.ParseFloat(val, 32)
			if err != nil {
				return cfg, &annerr.ConfigError{Option: key, Reason: err.Error()}
			}
			cfg.Alpha = float32(f)
		case "NUMVECTORSPERPARTITION":
			n, err := strconv.Atoi(val)
			if err != nil {
				return cfg, &annerr.ConfigError{Option: key, Reason: err.Error()}
			}
			cfg.NumVectorsPerPartition = n
		case "SQENABLED":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return cfg, &annerr.ConfigError{Option: key, Reason: err.Error()}
			}
			cfg.SQEnabled = b
		case "DISTANCEFUNC":
			df, err := parseDistanceFunc(val)
			if err != nil {
				return cfg, &annerr.ConfigError{Option: key, Reason: err.Error()}
			}
			cfg.DistanceFunc = df
		case "GAMMA":
			f, err := strconv.ParseFloat(val, 32)
			if err != nil {
				return cfg, &annerr.ConfigError{Option: key, Reason: err.Error()}
			}
			cfg.Gamma = float32(f)
		default:
			return cfg, &annerr.ConfigError{Option: key, Reason: "unrecognized option"}
		}
	}

	return cfg, nil
}

// ValidatePath resolves target against base and rejects any path that
// escapes base, guarding against traversal in checkpoint directory
// configuration.
func ValidatePath(base, target string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("config: resolve base path: %w", err)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("config: resolve target path: %w", err)
	}

	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil {
		return "", fmt.Errorf("config: compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("config: path %q escapes base %q", target, base)
	}

	return absTarget, nil
}

// systemRoots lists absolute directories a snapshot/WAL data dir must
// never resolve to exactly, so a misconfigured CREATE VECTOR INDEX
// call can't be pointed at the host filesystem root or a standard
// system directory. Subdirectories of these (e.g. a dedicated dir
// under /var or /tmp) are allowed.
var systemRoots = map[string]bool{
	"/": true, "/etc": true, "/usr": true, "/bin": true, "/sbin": true,
	"/var": true, "/tmp": true, "/root": true, "/boot": true,
	"/dev": true, "/proc": true, "/sys": true,
}

// SanitizeDataDir cleans and resolves dataDir to an absolute path and
// rejects it if it resolves exactly to one of systemRoots.
func SanitizeDataDir(dataDir string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(dataDir))
	if err != nil {
		return "", fmt.Errorf("config: resolve data dir: %w", err)
	}
	if systemRoots[abs] {
		return "", fmt.Errorf("config: data dir %q is a reserved system path", abs)
	}
	return abs, nil
}
