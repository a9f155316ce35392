// Package meeting derives virtual meeting room names, URLs and expiries for approved sessions.
package meeting

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

const (
	DefaultProvider   = "jitsi"
	DefaultBaseURL    = "https://meet.jit.si"
	DefaultRoomPrefix = "tsession"
	DefaultTTLMinutes = 30
	// MinTTLMinutes is the floor applied to any configured TTL.
	MinTTLMinutes = 5

	slugLen   = 8
	hashLen   = 8
	suffixLen = 6
)

type Options struct {
	Provider   string
	BaseURL    string
	RoomPrefix string
	TTLMinutes int
	Config     map[string]any
}

func DefaultOptions() Options {
	return Options{
		Provider:   DefaultProvider,
		BaseURL:    DefaultBaseURL,
		RoomPrefix: DefaultRoomPrefix,
		TTLMinutes: DefaultTTLMinutes,
	}
}

// Merge returns o with the non-zero fields of override applied.
func (o Options) Merge(override *Options) Options {
	if override == nil {
		return o
	}
	if override.Provider != "" {
		o.Provider = override.Provider
	}
	if override.BaseURL != "" {
		o.BaseURL = override.BaseURL
	}
	if override.RoomPrefix != "" {
		o.RoomPrefix = override.RoomPrefix
	}
	if override.TTLMinutes != 0 {
		o.TTLMinutes = override.TTLMinutes
	}
	if override.Config != nil {
		o.Config = override.Config
	}
	return o
}

type Input struct {
	TherapistID   string
	PatientID     string
	AppointmentID string
	StartsAt      time.Time
	EndsAt        time.Time
}

type Metadata struct {
	Provider  string
	Room      string
	URL       string
	Config    map[string]any
	ExpiresAt time.Time
}

// Generate is the deterministic core: the same input, options, clock reading and suffix always
// yield the same metadata. The reference instant is the session start, else its end, else now.
func Generate(in Input, opts Options, now time.Time, suffix string) Metadata {
	ref := in.StartsAt
	if ref.IsZero() {
		ref = in.EndsAt
	}
	if ref.IsZero() {
		ref = now
	}
	ref = ref.UTC()

	date := ref.Format("20060102")
	room := strings.Join([]string{
		opts.RoomPrefix,
		slug(in.TherapistID),
		slug(in.PatientID),
		date,
		shortHash(in.AppointmentID + date),
		suffix,
	}, "-")

	ttl := opts.TTLMinutes
	if ttl == 0 {
		ttl = DefaultTTLMinutes
	}
	if ttl < MinTTLMinutes {
		ttl = MinTTLMinutes
	}

	var cfg map[string]any
	if len(opts.Config) > 0 {
		cfg = maps.Clone(opts.Config)
	}

	return Metadata{
		Provider:  opts.Provider,
		Room:      room,
		URL:       strings.TrimRight(opts.BaseURL, "/") + "/" + room,
		Config:    cfg,
		ExpiresAt: ref.Add(time.Duration(ttl) * time.Minute),
	}
}

// Generator binds Generate to a clock and a random suffix source.
type Generator struct {
	opts   Options
	now    func() time.Time
	suffix func() string
}

func NewGenerator(opts Options) *Generator {
	return &Generator{
		opts:   DefaultOptions().Merge(&opts),
		now:    time.Now,
		suffix: randomSuffix,
	}
}

// Generate builds metadata for in, applying per-call overrides on top of the generator defaults.
func (g *Generator) Generate(in Input, override *Options) Metadata {
	return Generate(in, g.opts.Merge(override), g.now(), g.suffix())
}

func (g *Generator) Options() Options {
	return g.opts
}

func slug(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == slugLen {
				break
			}
		}
	}
	if b.Len() == 0 {
		return "anon"
	}
	return b.String()
}

func shortHash(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))[:hashLen]
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLen]
}
