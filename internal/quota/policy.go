// Package quota decides which credential a generation request may use.
package quota

import "snapkit/internal/entity"

type Decision int

const (
	// UsePool 使用管理员密钥池，消耗免费额度
	UsePool Decision = iota
	// UseOwn 使用用户自己的密钥，不消耗额度
	UseOwn
	// Deny 免费额度已用完且未配置自己的密钥
	Deny
)

func (d Decision) String() string {
	switch d {
	case UsePool:
		return "use_pool"
	case UseOwn:
		return "use_own"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// Snapshot is the part of the ledger the decision depends on.
type Snapshot struct {
	Used             int
	Limit            int
	HasOwnCredential bool
}

func FromUsage(s entity.UsageSnapshot) Snapshot {
	return Snapshot{Used: s.Used, Limit: s.Limit, HasOwnCredential: s.HasOwnCredential()}
}

// Remaining never goes below zero.
func (s Snapshot) Remaining() int {
	if s.Used >= s.Limit {
		return 0
	}
	return s.Limit - s.Used
}

// Decide is pure and total: an own credential always wins, otherwise the pool is
// used while used < limit.
func Decide(s Snapshot) Decision {
	if s.HasOwnCredential {
		return UseOwn
	}
	if s.Used < s.Limit {
		return UsePool
	}
	return Deny
}
