// Package admission implements the front-end-facing admission helpers
// (§4.8): name syntax checking, availability, and a friendly mining
// pre-check that mirrors the validator's transaction checks without
// replicating its byte-level machinery. Grounded on the teacher's
// internal/validationutils package (small, stateless helper functions
// returning named results rather than raw bools) adapted to the
// domain/zone naming rules instead of EmPower1's economic constants.
package admission

import (
	"strings"

	"nameledger.dev/nameledger/internal/chainconst"
	"nameledger.dev/nameledger/internal/cryptoutil"
)

// CheckDomain validates name syntax (§4.8): lowercase ASCII alphanumeric
// plus '-' and, when allowDots is true, '.'; no leading/trailing '.' or
// '-'; no ".." or "--".
func CheckDomain(name string, allowDots bool) bool {
	if name == "" {
		return false
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return false
	}
	if strings.Contains(name, "..") || strings.Contains(name, "--") {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		case r == '.' && allowDots:
		default:
			return false
		}
	}
	return true
}

// Verdict is the friendly result of CanMineDomain (§4.8).
type Verdict struct {
	Kind             VerdictKind
	SecondsRemaining int64 // only meaningful when Kind == Cooldown
}

// VerdictKind enumerates CanMineDomain's possible outcomes.
type VerdictKind int

const (
	Fine VerdictKind = iota
	WrongName
	WrongZone
	NotOwned
	Cooldown
)

// IsDomainAvailable reports whether name is syntactically valid and free
// (or already owned by pubKey): non-empty, passes CheckDomain, identity
// free or self-owned; for second-level names the parent label must
// already be a known zone; third-level names (two dots) are rejected
// (§4.8).
func IsDomainAvailable(chain ChainViewIdentity, name string, pubKey []byte) (bool, error) {
	if name == "" || !CheckDomain(name, true) {
		return false, nil
	}
	if strings.Count(name, ".") > 1 {
		return false, nil
	}
	if parent, ok := parentZone(name); ok {
		known, err := chain.IsZoneInBlockchain(parent)
		if err != nil {
			return false, err
		}
		if !known {
			return false, nil
		}
	}
	identity := cryptoutil.Identity(name, "")
	return chain.IsIDAvailable(identity, pubKey, false)
}

// ChainViewIdentity is the narrow read surface IsDomainAvailable needs.
type ChainViewIdentity interface {
	IsZoneInBlockchain(name string) (bool, error)
	IsIDAvailable(identity []byte, pubKey []byte, isZone bool) (bool, error)
}

func parentZone(name string) (string, bool) {
	idx := strings.IndexByte(name, '.')
	if idx < 0 {
		return "", false
	}
	return name[idx+1:], true
}

// FullChainView is the read surface CanMineDomain needs, including the
// per-key cool-down lookup that CheckDomain/IsDomainAvailable don't.
type FullChainView interface {
	ChainViewIdentity
	IsIDInBlockchain(identity []byte, isZone bool) (bool, error)
	LastFullBlockTimestampFor(pubKey []byte) (int64, bool, error)
}

// CanMineDomain mirrors the validator's transaction checks (§4.3 step 7)
// but reports a friendly reason instead of a bare Bad (§4.8), for the
// front-end to show before submitting a mining job.
func CanMineDomain(chain FullChainView, name string, pubKey []byte, now int64) (Verdict, error) {
	if name == "" || !CheckDomain(name, true) || strings.Count(name, ".") > 1 {
		return Verdict{Kind: WrongName}, nil
	}

	if parent, ok := parentZone(name); ok {
		known, err := chain.IsZoneInBlockchain(parent)
		if err != nil {
			return Verdict{}, err
		}
		if !known {
			return Verdict{Kind: WrongZone}, nil
		}
	}

	identity := cryptoutil.Identity(name, "")
	available, err := chain.IsIDAvailable(identity, pubKey, false)
	if err != nil {
		return Verdict{}, err
	}
	if !available {
		return Verdict{Kind: NotOwned}, nil
	}

	alreadyOnChain, err := chain.IsIDInBlockchain(identity, false)
	if err != nil {
		return Verdict{}, err
	}
	if !alreadyOnChain {
		lastTimestamp, hasPrior, err := chain.LastFullBlockTimestampFor(pubKey)
		if err != nil {
			return Verdict{}, err
		}
		if hasPrior {
			readyAt := lastTimestamp + chainconst.NewDomainsInterval
			if now < readyAt {
				return Verdict{Kind: Cooldown, SecondsRemaining: readyAt - now}, nil
			}
		}
	}

	return Verdict{Kind: Fine}, nil
}
