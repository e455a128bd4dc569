// Package consensus provides the Election capability consulted by the
// RPC server's write methods. It
// replaces the original's direct /etc/hostname read plus Kubernetes pod
// discovery with an explicit, injectable interface: this node is never
// itself a Raft/Paxos participant, it only needs to know whether it is
// allowed to mine and where to forward writes when it isn't.
package consensus

import "net/url"

// Election reports this node's role in a single-leader deployment and,
// when it is a follower, where the leader can be reached.
type Election interface {
	IsFollower() bool
	LeaderEndpoint() (*url.URL, bool)
}

// Standalone is the default Election: this node is always the leader,
// matching the original's new_stand_alone fallback used whenever no
// leader name or node identity is configured.
type Standalone struct{}

func (Standalone) IsFollower() bool                    { return false }
func (Standalone) LeaderEndpoint() (*url.URL, bool) { return nil, false }

// Static pins the leader to a fixed, pre-configured endpoint: the
// operator names the leader out of band (same information the original
// read from an environment variable), no discovery happens at runtime.
type Static struct {
	SelfIsLeader bool
	Leader       *url.URL
}

func NewStaticLeader() Static {
	return Static{SelfIsLeader: true}
}

func NewStaticFollower(leader *url.URL) Static {
	return Static{SelfIsLeader: false, Leader: leader}
}

func (s Static) IsFollower() bool { return !s.SelfIsLeader }

func (s Static) LeaderEndpoint() (*url.URL, bool) {
	if s.SelfIsLeader || s.Leader == nil {
		return nil, false
	}
	return s.Leader, true
}

// DiscoverFunc resolves the current leader and peer set out of band. It
// is the integration point for a real cluster client (Kubernetes pod
// listing in the original); this package deliberately does not implement
// one, since no such client is in the node's dependency stack.
type DiscoverFunc func() (leader string, peers []string, err error)

// External defers leader resolution to Discover, re-invoked by callers
// that need a fresh view (it performs no caching or background polling
// itself).
type External struct {
	SelfName string
	Discover DiscoverFunc
}

func (e External) IsFollower() bool {
	leader, _, err := e.Discover()
	if err != nil {
		return true
	}
	return leader != e.SelfName
}

func (e External) LeaderEndpoint() (*url.URL, bool) {
	leader, _, err := e.Discover()
	if err != nil || leader == e.SelfName {
		return nil, false
	}
	u, err := url.Parse(leader)
	if err != nil {
		return nil, false
	}
	return u, true
}
