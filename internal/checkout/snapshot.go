package checkout

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/vireofs/vireo/internal/scm"
)

// snapshotMagic starts every SNAPSHOT file.
const snapshotMagic = "vrfs"

// Snapshot is the daemon's record of which commit(s) the working copy is
// based on.
type Snapshot struct {
	// P1 is the raw primary parent hash.
	P1 []byte
	// P2 is the raw second parent hash, nil outside of merges.
	P2 []byte
}

// Hex returns the hex encoding of the primary parent.
func (s *Snapshot) Hex() string {
	return scm.HexHash(s.P1)
}

// Snapshot reads and parses the checkout's SNAPSHOT file.
func (c *Checkout) Snapshot() (*Snapshot, error) {
	data, err := os.ReadFile(c.SnapshotPath())
	if err != nil {
		return nil, err
	}
	return ParseSnapshot(data)
}

// ParseSnapshot decodes a SNAPSHOT file.
//
// Format 1: magic + version(=1) + one or two raw 20-byte parent hashes.
// Format 2: magic + version(=2) + 4-byte big-endian length + that many
// ASCII-hex characters encoding the primary parent.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	if len(data) < 8 || string(data[:4]) != snapshotMagic {
		return nil, fmt.Errorf("invalid snapshot magic")
	}
	version := binary.BigEndian.Uint32(data[4:8])
	body := data[8:]

	switch version {
	case 1:
		switch len(body) {
		case scm.HashLen:
			return &Snapshot{P1: body}, nil
		case 2 * scm.HashLen:
			return &Snapshot{P1: body[:scm.HashLen], P2: body[scm.HashLen:]}, nil
		default:
			return nil, fmt.Errorf("snapshot format 1: unexpected body length %d", len(body))
		}
	case 2:
		if len(body) < 4 {
			return nil, fmt.Errorf("snapshot format 2: truncated length field")
		}
		n := binary.BigEndian.Uint32(body[:4])
		hexPart := body[4:]
		if uint32(len(hexPart)) != n {
			return nil, fmt.Errorf("snapshot format 2: expected %d hex characters, found %d", n, len(hexPart))
		}
		raw, err := hex.DecodeString(string(hexPart))
		if err != nil {
			return nil, fmt.Errorf("snapshot format 2: %w", err)
		}
		if len(raw) != scm.HashLen {
			return nil, fmt.Errorf("snapshot format 2: parent hash is %d bytes, want %d", len(raw), scm.HashLen)
		}
		return &Snapshot{P1: raw}, nil
	default:
		return nil, fmt.Errorf("unsupported snapshot version %d", version)
	}
}
