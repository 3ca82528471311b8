package hostcheck

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/ipshipyard/hostrep/hostlist"
)

// maxCacheHours is the longest cacheperiod a time.Duration can hold.
const maxCacheHours = math.MaxInt64 / int64(time.Hour)

// Option names accepted by ParseOptions.
const (
	OptCheckAffiliates = "checkaffiliates"
	OptCheckCohosts    = "checkcohosts"
	OptCachePeriod     = "cacheperiod"
)

// OptionDescriptions documents each option for scan front-ends.
var OptionDescriptions = map[string]string{
	OptCheckAffiliates: "Apply checks to affiliates?",
	OptCheckCohosts:    "Apply checks to sites found to be co-hosted on the target's IP?",
	OptCachePeriod:     "Hours to cache list data before re-fetching.",
}

// Config selects which hostname categories are checked and how long the
// downloaded list is cached.
type Config struct {
	CheckAffiliates bool
	CheckCohosts    bool
	CachePeriod     time.Duration
}

// DefaultConfig checks every category and caches the list for a day.
func DefaultConfig() Config {
	return Config{
		CheckAffiliates: true,
		CheckCohosts:    true,
		CachePeriod:     hostlist.DefaultCachePeriod,
	}
}

// ParseOptions applies string options on top of DefaultConfig.
func ParseOptions(opts map[string]string) (Config, error) {
	return ApplyOptions(DefaultConfig(), opts)
}

// ApplyOptions applies string options on top of base. Unknown keys and
// unparseable values are rejected. cacheperiod is a whole number of hours,
// at least 1.
func ApplyOptions(base Config, opts map[string]string) (Config, error) {
	cfg := base

	// sorted so the first error reported is deterministic
	names := make([]string, 0, len(opts))
	for k := range opts {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, k := range names {
		v := opts[k]
		switch k {
		case OptCheckAffiliates:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return cfg, fmt.Errorf("invalid %s value %q: %w", k, v, err)
			}
			cfg.CheckAffiliates = b
		case OptCheckCohosts:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return cfg, fmt.Errorf("invalid %s value %q: %w", k, v, err)
			}
			cfg.CheckCohosts = b
		case OptCachePeriod:
			hours, err := strconv.Atoi(v)
			if err != nil {
				return cfg, fmt.Errorf("invalid %s value %q: %w", k, v, err)
			}
			if hours < 1 {
				return cfg, fmt.Errorf("%s must be at least 1 hour, got %d", k, hours)
			}
			if int64(hours) > maxCacheHours {
				return cfg, fmt.Errorf("%s must be at most %d hours, got %d", k, maxCacheHours, hours)
			}
			cfg.CachePeriod = time.Duration(hours) * time.Hour
		default:
			return cfg, fmt.Errorf("unknown option: %s", k)
		}
	}

	return cfg, nil
}
