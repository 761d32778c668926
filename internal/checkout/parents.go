package checkout

import (
	"fmt"
	"os"

	"github.com/vireofs/vireo/internal/scm"
)

// ParseError reports a dirstate file whose contents could not be decoded,
// as opposed to a file that could not be read at all.
type ParseError struct {
	Path string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("error parsing %s: %s", e.Path, e.Msg)
}

// Parents holds the working copy parent commits recorded in the dirstate.
type Parents struct {
	P1 []byte
	P2 []byte
}

// DirstateParents reads the parent hashes from the checkout's dirstate.
func (c *Checkout) DirstateParents() (*Parents, error) {
	path := c.MetadataPath(DirstateFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 2*scm.HashLen {
		return nil, &ParseError{Path: path, Msg: fmt.Sprintf("file is %d bytes, want at least %d", len(data), 2*scm.HashLen)}
	}
	return &Parents{
		P1: data[:scm.HashLen],
		P2: data[scm.HashLen : 2*scm.HashLen],
	}, nil
}

// WriteDirstateParents rewrites the dirstate with the given parents,
// discarding any tracked-file state.
func (c *Checkout) WriteDirstateParents(p1, p2 []byte) error {
	if len(p1) != scm.HashLen {
		return fmt.Errorf("p1 hash is %d bytes, want %d", len(p1), scm.HashLen)
	}
	if p2 == nil {
		p2 = scm.NullHash
	}
	if len(p2) != scm.HashLen {
		return fmt.Errorf("p2 hash is %d bytes, want %d", len(p2), scm.HashLen)
	}
	data := make([]byte, 0, 2*scm.HashLen)
	data = append(data, p1...)
	data = append(data, p2...)
	return os.WriteFile(c.MetadataPath(DirstateFile), data, 0o644)
}
