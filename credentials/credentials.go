package credentials

import (
	"context"
	"os"
	"strings"
)

// Service names used as snapshot keys
const (
	ElevenLabs = "elevenlabs"
	Pexels     = "pexels"
	Unsplash   = "unsplash"
)

// Snapshot is a read-only view of provider secrets taken at run start.
type Snapshot struct {
	keys map[string]string
}

// NewSnapshot copies m; later changes to m are not visible.
func NewSnapshot(m map[string]string) Snapshot {
	keys := make(map[string]string, len(m))
	for k, v := range m {
		if v = strings.TrimSpace(v); v != "" {
			keys[strings.ToLower(k)] = v
		}
	}
	return Snapshot{keys: keys}
}

// Get returns the secret for service and whether it is present.
func (s Snapshot) Get(service string) (string, bool) {
	v, ok := s.keys[strings.ToLower(service)]
	return v, ok
}

// Key returns the secret for service or "".
func (s Snapshot) Key(service string) string {
	v, _ := s.Get(service)
	return v
}

// Services lists the configured service names.
func (s Snapshot) Services() []string {
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	return out
}

// Source produces snapshots.
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// EnvSource reads provider keys from the process environment
type EnvSource struct {
	Vars map[string]string // service -> variable name
}

// DefaultEnvVars are the variables EnvSource reads when Vars is empty.
var DefaultEnvVars = map[string]string{
	ElevenLabs: "ELEVENLABS_API_KEY",
	Pexels:     "PEXELS_API_KEY",
	Unsplash:   "UNSPLASH_ACCESS_KEY",
}

func (e EnvSource) Snapshot(context.Context) (Snapshot, error) {
	vars := e.Vars
	if len(vars) == 0 {
		vars = DefaultEnvVars
	}
	m := make(map[string]string, len(vars))
	for service, name := range vars {
		m[service] = os.Getenv(name)
	}
	return NewSnapshot(m), nil
}

// Layered merges sources in order; later sources win for keys they define.
type Layered []Source

func (l Layered) Snapshot(ctx context.Context) (Snapshot, error) {
	merged := map[string]string{}
	for _, src := range l {
		s, err := src.Snapshot(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		for k, v := range s.keys {
			merged[k] = v
		}
	}
	return NewSnapshot(merged), nil
}
