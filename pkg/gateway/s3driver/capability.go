package s3driver

import "strings"

// Capability identifies one operation family a storage driver supports.
// Callers query HasCapability and branch deterministically instead of
// probing the provider at runtime.
type Capability uint

const (
	CapRead Capability = 1 << iota
	CapWrite
	CapList
	CapPresign
	CapMultipart
	CapCopy
	CapProxy
)

// CapabilitySet is a bit set of capabilities.
type CapabilitySet uint

// AllCapabilities is the full S3 capability set.
const AllCapabilities = CapabilitySet(CapRead | CapWrite | CapList | CapPresign | CapMultipart | CapCopy | CapProxy)

// Has reports whether the set contains the capability.
func (s CapabilitySet) Has(c Capability) bool {
	return uint(s)&uint(c) != 0
}

// String returns a comma-separated list of capability names.
func (s CapabilitySet) String() string {
	names := []struct {
		c    Capability
		name string
	}{
		{CapRead, "read"},
		{CapWrite, "write"},
		{CapList, "list"},
		{CapPresign, "presign"},
		{CapMultipart, "multipart"},
		{CapCopy, "copy"},
		{CapProxy, "proxy"},
	}

	out := make([]string, 0, len(names))
	for _, n := range names {
		if s.Has(n.c) {
			out = append(out, n.name)
		}
	}
	return strings.Join(out, ",")
}
