// Package id provides centralized ID generation for the messaging core.
//
// Two families of identifiers live here:
//   - Trace identifiers: W3C-compatible lowercase hex (32 chars for a trace,
//     16 chars for a span), so they can be carried verbatim in a traceparent.
//   - Entity identifiers: prefixed ULIDs (msg_*, node_*) that sort by creation
//     time and make logs readable.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// TraceID identifies a trace (32 lowercase hex characters)
type TraceID string

// SpanID identifies a span within a trace (16 lowercase hex characters)
type SpanID string

// MessageID identifies a bridge message
type MessageID string

// NodeID identifies a node participating in the bridge
type NodeID string

const (
	MessagePrefix = "msg"
	NodePrefix    = "node"

	TraceIDLength = 32
	SpanIDLength  = 16
)

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs and random span identifiers
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the shared generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{
		entropy: rand.Reader,
	}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// SpanID reads 8 random bytes and hex encodes them. All-zero values are
// invalid in a traceparent and are redrawn.
func (g *Generator) SpanID() SpanID {
	var buf [8]byte
	for {
		g.entropyMu.Lock()
		_, err := io.ReadFull(g.entropy, buf[:])
		g.entropyMu.Unlock()
		if err != nil {
			// Entropy exhausted; fall back to the UUID pool
			u := uuid.New()
			copy(buf[:], u[8:])
		}
		if buf != [8]byte{} {
			return SpanID(hex.EncodeToString(buf[:]))
		}
	}
}

// ============================================================================
// Typed ID Generators
// ============================================================================

// NewTraceID generates a 128-bit trace identifier from a random UUID
func NewTraceID() TraceID {
	u := uuid.New()
	return TraceID(hex.EncodeToString(u[:]))
}

// NewSpanID generates a 64-bit span identifier
func NewSpanID() SpanID {
	return Default().SpanID()
}

// NewMessageID generates a new message ID
func NewMessageID() MessageID {
	return MessageID(Default().GenerateWithPrefix(MessagePrefix))
}

// NewNodeID generates a new node ID
func NewNodeID() NodeID {
	return NodeID(Default().GenerateWithPrefix(NodePrefix))
}

func (id TraceID) String() string   { return string(id) }
func (id SpanID) String() string    { return string(id) }
func (id MessageID) String() string { return string(id) }
func (id NodeID) String() string    { return string(id) }

// ============================================================================
// Validation
// ============================================================================

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Timestamp extracts the creation time from a ULID or prefixed ULID
func Timestamp(id string) (time.Time, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

// IsHexID reports whether s is a non-zero lowercase hex string of the given length
func IsHexID(s string, length int) bool {
	if len(s) != length {
		return false
	}
	zero := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '0':
		case (c >= '1' && c <= '9') || (c >= 'a' && c <= 'f'):
			zero = false
		default:
			return false
		}
	}
	return !zero
}
