package orchestrate

import "golang.org/x/mod/semver"

// NormalizeCodeVersion canonicalises the running binary's version
// string for recording into transaction entries and version manifests.
// An invalid or missing version degrades to "v0.0.0-unknown" rather
// than failing the whole operation — a malformed build tag shouldn't
// block a submit.
func NormalizeCodeVersion(codeVersion string) string {
	if codeVersion == "" {
		return "v0.0.0-unknown"
	}
	if !semver.IsValid(codeVersion) {
		if semver.IsValid("v" + codeVersion) {
			return semver.Canonical("v" + codeVersion)
		}
		return "v0.0.0-unknown"
	}
	return semver.Canonical(codeVersion)
}
