package versions

import (
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// IsNewerVersion reports whether newVersion is strictly greater than oldVersion.
// Data Dragon patch tokens ("14.20.1") are compared as semantic versions when both
// sides parse, and lexicographically otherwise. An empty oldVersion is older than
// any non-empty newVersion.
func IsNewerVersion(newVersion, oldVersion string) bool {
	newSemver, errNew := semver.NewVersion(newVersion)
	oldSemver, errOld := semver.NewVersion(oldVersion)

	if errNew != nil || errOld != nil {
		return newVersion > oldVersion
	}

	return newSemver.GreaterThan(oldSemver)
}

// MajorMinor trims a patch token to its "major.minor" prefix, which is how most
// guide sites bucket their statistics. Tokens that do not parse are returned as-is.
func MajorMinor(version string) string {
	v, err := semver.NewVersion(version)
	if err != nil {
		return strings.TrimSpace(version)
	}
	return strings.Join([]string{strconv.FormatUint(v.Major(), 10), strconv.FormatUint(v.Minor(), 10)}, ".")
}
