package plugin

import (
	"strings"

	"golang.org/x/mod/semver"
)

// canonical turns "1.2" or "v1.2.3" into a canonical semver string, or ""
// if v is not a version.
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}

// CheckCompatibility reports whether a plugin built for info.CompatibleVersion
// may load into a host at hostVersion.
func CheckCompatibility(hostVersion string, info Info) error {
	want := strings.TrimSpace(info.CompatibleVersion)
	if want == "" {
		return nil
	}

	host := canonical(hostVersion)
	if host == "" {
		return NewError(KindCompatibility, "invalid host version %q", hostVersion)
	}

	atLeast := strings.HasPrefix(want, ">=")
	req := canonical(strings.TrimPrefix(want, ">="))
	if req == "" {
		return NewError(KindCompatibility, "plugin %s declares invalid version %q", info.Name, info.CompatibleVersion)
	}

	if semver.Compare(host, req) < 0 {
		return NewError(KindCompatibility, "plugin %s requires host %s, have %s", info.Name, want, hostVersion)
	}
	if !atLeast && semver.Major(host) != semver.Major(req) {
		return NewError(KindCompatibility, "plugin %s targets host %s, have %s", info.Name, semver.Major(req), hostVersion)
	}
	return nil
}
