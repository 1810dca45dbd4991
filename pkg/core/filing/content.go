// Package filing scans raw SGML-wrapped submission bundles into typed sections
// and parses the submission header.
package filing

import (
	"sync/atomic"

	"github.com/rotisserie/eris"
)

var (
	// ErrForeignSection is returned when a section is read through a buffer other
	// than the one it was scanned from.
	ErrForeignSection = eris.New("filing: section belongs to another buffer")
	// ErrReleased is returned when a released buffer is read.
	ErrReleased = eris.New("filing: content released")
	// ErrBadRange is returned for a body range outside the section.
	ErrBadRange = eris.New("filing: section range out of bounds")
)

var contentSeq atomic.Uint64

// FileContent is the immutable byte buffer of one filing. It is owned by the
// worker that loaded it and released once the filing reaches a terminal state.
type FileContent struct {
	name     string
	data     []byte
	token    uint64
	released atomic.Bool
}

// NewFileContent takes ownership of data. The slice must not be modified afterwards.
func NewFileContent(name string, data []byte) *FileContent {
	return &FileContent{
		name:  name,
		data:  data,
		token: contentSeq.Add(1),
	}
}

// Name returns the identifier the content was loaded under.
func (c *FileContent) Name() string { return c.name }

// Len returns the buffer size in bytes.
func (c *FileContent) Len() int { return len(c.data) }

// Release drops the buffer. Sections scanned from it can no longer be read.
func (c *FileContent) Release() {
	if c.released.Swap(true) {
		return
	}
	c.data = nil
}

// Released reports whether Release was called.
func (c *FileContent) Released() bool { return c.released.Load() }

// Bytes returns the full byte range of sec.
func (c *FileContent) Bytes(sec DocumentSection) ([]byte, error) {
	if err := c.check(sec); err != nil {
		return nil, err
	}
	return c.data[sec.Start:sec.End:sec.End], nil
}

// Body returns the payload of sec: the text between <TEXT> and </TEXT> for a
// document, the tagged lines for a header, the whole range for Other sections.
func (c *FileContent) Body(sec DocumentSection) ([]byte, error) {
	if err := c.check(sec); err != nil {
		return nil, err
	}
	if sec.BodyStart < sec.Start || sec.BodyEnd > sec.End || sec.BodyStart > sec.BodyEnd {
		return nil, ErrBadRange
	}
	return c.data[sec.BodyStart:sec.BodyEnd:sec.BodyEnd], nil
}

func (c *FileContent) check(sec DocumentSection) error {
	if c.released.Load() {
		return ErrReleased
	}
	if sec.owner != c.token {
		return ErrForeignSection
	}
	if sec.Start < 0 || sec.End > len(c.data) || sec.Start > sec.End {
		return ErrBadRange
	}
	return nil
}
