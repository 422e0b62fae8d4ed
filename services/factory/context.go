package factory

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"phantomd/pkg/fingerprint"
	"phantomd/pkg/identity"
)

// TrapContext is the fully enriched payload handed to a text template. It
// starts as a clone of the run's base profile and never aliases it.
type TrapContext struct {
	identity.Profile

	Version     string
	GeneratedAt string
	LastUpdated string

	// Internal carries harmless diagnostic stubs for templates that want a
	// bit of operational texture. It never carries identity; the identity
	// lives diffused in the profile fields above.
	Internal map[string]string
}

var internalRegions = []string{"us-east-1", "us-west-2", "eu-central-1", "eu-west-1", "ap-southeast-2"}

// enrichContext clones the base profile and diffuses the template
// fingerprint through fields an intruder is likely to copy out by hand: the
// version patch digit, a hostname suffix and the credential tail. Diffused
// marks survive partial copy/paste where a metadata field would not.
func enrichContext(p *identity.Provider, base identity.Profile, templateName string, now time.Time) TrapContext {
	fp := fingerprint.Derive(templateName)
	profile := base.Clone()

	profile.DBHost = spliceHostSuffix(profile.DBHost, fp.HostSuffix())
	profile.AWSAccessKey = spliceKeyTail(profile.AWSAccessKey, fp.KeyTail())

	generated := now.Add(-time.Duration(p.Between(0, 364*86400)) * time.Second).UTC()
	updated := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, p.Intn(now.YearDay()))

	return TrapContext{
		Profile:     profile,
		Version:     fmt.Sprintf("v%d.%d.%d", p.Between(1, 4), p.Between(0, 9), fp.PatchDigit()),
		GeneratedAt: generated.Format(time.RFC3339),
		LastUpdated: updated.Format("2006-01-02"),
		Internal: map[string]string{
			"build":  strconv.Itoa(p.Between(1000, 9999)),
			"region": internalRegions[p.Intn(len(internalRegions))],
		},
	}
}

// spliceHostSuffix marks a hostname just ahead of its first dot, where the
// extra label reads as an environment qualifier.
func spliceHostSuffix(host, suffix string) string {
	if host == "" {
		host = "db-prod-local"
	}
	if i := strings.IndexByte(host, '.'); i >= 0 {
		return host[:i] + "-" + suffix + host[i:]
	}
	return host + "-" + suffix
}

// spliceKeyTail rewrites the end of a credential, keeping the total width at
// the issued key length so the result still scans as a real key.
func spliceKeyTail(key, tail string) string {
	head := identity.AccessKeyWidth - len(tail)
	if len(key) < head {
		key += strings.Repeat("0", head-len(key))
	}
	return key[:head] + tail
}
