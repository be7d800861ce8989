package config

import (
	"reflect"
	"sort"
	"strings"

	logx "sitepacer/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging, and (3) a list of site names whose
// settings changed (added, removed, or modified).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Fetch client
	if oldCfg.Fetch != newCfg.Fetch {
		changed = append(changed, "fetch")
		attrs = append(attrs,
			logx.String("fetch.timeout", strings.TrimSpace(newCfg.Fetch.Timeout)),
			logx.Float64("fetch.global_rate_per_sec", newCfg.Fetch.GlobalRatePerSec),
			logx.Bool("fetch.user_agent_set", strings.TrimSpace(newCfg.Fetch.UserAgent) != ""),
		)
	}

	// Metrics listener
	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.listen", strings.TrimSpace(newCfg.Metrics.Listen)),
		)
	}

	// Sites
	siteChanged := diffSites(oldCfg.Sites, newCfg.Sites)
	if len(siteChanged) > 0 {
		changed = append(changed, "sites")
		attrs = append(attrs,
			logx.Int("sites.changed_count", len(siteChanged)),
			logx.Int("sites.count", len(newCfg.Sites)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, siteChanged
}

func diffSites(oldS, newS []SiteConfig) []string {
	oldM := make(map[string]SiteConfig, len(oldS))
	for _, s := range oldS {
		oldM[s.Name] = s
	}
	newM := make(map[string]SiteConfig, len(newS))
	for _, s := range newS {
		newM[s.Name] = s
	}

	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		o, inOld := oldM[name]
		n, inNew := newM[name]
		if inOld != inNew || !reflect.DeepEqual(o, n) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
