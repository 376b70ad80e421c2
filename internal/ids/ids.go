// Package ids implements the pod/container identity scheme and the
// image-id grammar described by the Vimana CRI surface.
package ids

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// PodPrefix is the two-character prefix that marks a managed pod sandbox ID.
	PodPrefix = "p-"
	// ContainerPrefix is the two-character prefix that marks a managed container ID.
	ContainerPrefix = "c-"
)

var (
	domainPattern  = regexp.MustCompile(`^[0-9a-f]{32}$`)
	servicePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(\.[a-zA-Z0-9_]+)*$`)
)

// ErrInvalidDomain is returned when a domain token isn't a 32-char hex string.
var ErrInvalidDomain = fmt.Errorf("domain must be a 32-character hex string")

// ErrInvalidService is returned when a service name isn't a dotted identifier.
var ErrInvalidService = fmt.Errorf("service must be a dotted name")

// ErrInvalidVersion is returned when a version string is empty.
var ErrInvalidVersion = fmt.Errorf("version must not be empty")

// PodID is the tuple identity of a managed pod: (domain, service, version, attempt).
type PodID struct {
	Domain  string
	Service string
	Version string
	Attempt uint32
}

// Validate checks that the tuple satisfies the identity grammar in spec §3/§6.
func (id PodID) Validate() error {
	if !domainPattern.MatchString(id.Domain) {
		return ErrInvalidDomain
	}
	if !servicePattern.MatchString(id.Service) {
		return ErrInvalidService
	}
	if id.Version == "" {
		return ErrInvalidVersion
	}
	return nil
}

// String renders the canonical external pod ID: p-{domain}:{service}@{version}#{attempt}.
func (id PodID) String() string {
	return fmt.Sprintf("%s%s:%s@%s#%d", PodPrefix, id.Domain, id.Service, id.Version, id.Attempt)
}

// ContainerID derives the paired container ID by construction: the pod ID's
// suffix with "c-" substituted for "p-". This IS the round-trip invariant;
// there is no separate parse step to get it wrong.
func (id PodID) ContainerID() string {
	return ContainerPrefix + strings.TrimPrefix(id.String(), PodPrefix)
}

// ParsePodID parses a canonical pod ID string back into its tuple.
func ParsePodID(s string) (PodID, error) {
	if !strings.HasPrefix(s, PodPrefix) {
		return PodID{}, fmt.Errorf("not a managed pod id: %q", s)
	}
	return parseSuffix(strings.TrimPrefix(s, PodPrefix))
}

// ParseContainerID parses a canonical container ID string back into its
// parent pod's tuple.
func ParseContainerID(s string) (PodID, error) {
	if !strings.HasPrefix(s, ContainerPrefix) {
		return PodID{}, fmt.Errorf("not a managed container id: %q", s)
	}
	return parseSuffix(strings.TrimPrefix(s, ContainerPrefix))
}

// Suffix returns the part of the ID after the two-character managed prefix,
// or false if the ID doesn't carry one.
func Suffix(id string) (string, bool) {
	if strings.HasPrefix(id, PodPrefix) || strings.HasPrefix(id, ContainerPrefix) {
		return id[2:], true
	}
	return "", false
}

// IsManaged reports whether an ID carries the managed p-/c- prefix.
func IsManaged(id string) bool {
	return strings.HasPrefix(id, PodPrefix) || strings.HasPrefix(id, ContainerPrefix)
}

func parseSuffix(suffix string) (PodID, error) {
	domainAndRest := strings.SplitN(suffix, ":", 2)
	if len(domainAndRest) != 2 {
		return PodID{}, fmt.Errorf("malformed id suffix: %q", suffix)
	}
	domain := domainAndRest[0]

	serviceAndRest := strings.SplitN(domainAndRest[1], "@", 2)
	if len(serviceAndRest) != 2 {
		return PodID{}, fmt.Errorf("malformed id suffix: %q", suffix)
	}
	service := serviceAndRest[0]

	versionAndAttempt := strings.SplitN(serviceAndRest[1], "#", 2)
	if len(versionAndAttempt) != 2 {
		return PodID{}, fmt.Errorf("malformed id suffix: %q", suffix)
	}
	version := versionAndAttempt[0]

	attempt, err := strconv.ParseUint(versionAndAttempt[1], 10, 32)
	if err != nil {
		return PodID{}, fmt.Errorf("malformed attempt in id suffix %q: %w", suffix, err)
	}

	id := PodID{Domain: domain, Service: service, Version: version, Attempt: uint32(attempt)}
	return id, nil
}

// TripleKey identifies a (domain, service, version) triple for the purpose
// of allocating monotonic attempt numbers.
type TripleKey struct {
	Domain  string
	Service string
	Version string
}
