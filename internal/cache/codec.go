// Package cache persists the voicing document set as a version-gated
// binary file. The cache is pure: any corrupt, truncated, or
// version-mismatched file fails the load explicitly and the caller
// rebuilds from the source documents. There is no migration path.
package cache

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	cherr "github.com/chordex/chordex/internal/errors"
	"github.com/chordex/chordex/internal/voicing"
)

// Format constants. The version gates compatibility: any mismatch is a
// hard error, never a silent reinterpretation.
const (
	// FormatVersion is bumped on every layout change.
	FormatVersion uint32 = 3
)

// magic identifies a chordex cache file.
var magic = [4]byte{'C', 'H', 'D', 'X'}

// Decode sanity limits. A corrupt length prefix fails fast instead of
// attempting a multi-gigabyte allocation.
const (
	maxDocuments = 16 << 20
	maxBlobLen   = 64 << 20
	maxSliceLen  = 16 << 20
)

// encoder wraps a writer with a sticky error so field writes chain
// without per-call error plumbing.
type encoder struct {
	w   *bufio.Writer
	err error
}

func (e *encoder) bytes(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.bytes(b[:])
}

func (e *encoder) i32(v int) {
	e.u32(uint32(int32(v)))
}

func (e *encoder) f64(v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	e.bytes(b[:])
}

func (e *encoder) bool(v bool) {
	if v {
		e.bytes([]byte{1})
		return
	}
	e.bytes([]byte{0})
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.bytes([]byte(s))
}

// optStr writes a presence byte before the string; empty means absent.
func (e *encoder) optStr(s string) {
	if s == "" {
		e.bytes([]byte{0})
		return
	}
	e.bytes([]byte{1})
	e.str(s)
}

func (e *encoder) f64Slice(v []float64) {
	e.u32(uint32(len(v)))
	for _, x := range v {
		e.f64(x)
	}
}

func (e *encoder) strSlice(v []string) {
	e.u32(uint32(len(v)))
	for _, s := range v {
		e.str(s)
	}
}

func (e *encoder) intSlice(v []int) {
	e.u32(uint32(len(v)))
	for _, x := range v {
		e.i32(x)
	}
}

func (e *encoder) document(d *voicing.Document) {
	e.str(d.ID)
	e.f64Slice(d.Vector)
	e.f64Slice(d.TextVector)

	e.str(d.ChordName)
	e.str(d.DifficultyTier)
	e.str(d.Position)
	e.i32(d.MinFret)
	e.i32(d.MaxFret)
	e.i32(d.FingerCount)

	e.i32(d.HandStretch)
	e.bool(d.RequiresBarre)

	e.str(d.StackingType)
	e.i32(d.RootPitchClass)
	e.i32(d.BassPitchClass)
	e.i32(d.Inversion)
	e.f64(d.Consonance)
	e.f64(d.Brightness)
	e.bool(d.IsRootless)
	e.bool(d.IsGuideTone)
	e.bool(d.IsDropVoicing)
	e.bool(d.UsesOpenString)
	e.optStr(d.CAGEDShape)
	e.optStr(d.SetClassID)

	e.strSlice(d.SemanticTags)
	e.strSlice(d.PossibleKeys)
	e.strSlice(d.OmittedTones)
	e.strSlice(d.DoubledTones)
	e.strSlice(d.AlternateNames)

	e.optStr(d.Description)
	e.optStr(d.YAML)
	e.intSlice(d.MIDINotes)
}

// Encode writes the documents to w in the current format.
func Encode(w io.Writer, docs []voicing.Document) error {
	bw := bufio.NewWriter(w)
	e := &encoder{w: bw}

	e.bytes(magic[:])
	e.u32(FormatVersion)
	e.u32(uint32(len(docs)))
	for i := range docs {
		e.document(&docs[i])
	}
	if e.err != nil {
		return cherr.Wrap(cherr.ErrCodeIndexWriteFailed, e.err)
	}
	if err := bw.Flush(); err != nil {
		return cherr.Wrap(cherr.ErrCodeIndexWriteFailed, err)
	}
	return nil
}

// decoder wraps a reader with a sticky error.
type decoder struct {
	r   *bufio.Reader
	err error
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *decoder) bytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		d.fail(err)
		return nil
	}
	return b
}

func (d *decoder) u32() uint32 {
	b := d.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) i32() int {
	return int(int32(d.u32()))
}

func (d *decoder) f64() float64 {
	b := d.bytes(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func (d *decoder) bool() bool {
	b := d.bytes(1)
	return b != nil && b[0] != 0
}

func (d *decoder) str() string {
	n := d.u32()
	if n > maxBlobLen {
		d.fail(io.ErrUnexpectedEOF)
		return ""
	}
	b := d.bytes(int(n))
	if b == nil {
		return ""
	}
	return string(b)
}

func (d *decoder) optStr() string {
	b := d.bytes(1)
	if b == nil || b[0] == 0 {
		return ""
	}
	return d.str()
}

func (d *decoder) f64Slice() []float64 {
	n := d.u32()
	if n == 0 || d.err != nil {
		return nil
	}
	if n > maxSliceLen {
		d.fail(io.ErrUnexpectedEOF)
		return nil
	}
	v := make([]float64, n)
	for i := range v {
		v[i] = d.f64()
	}
	return v
}

func (d *decoder) strSlice() []string {
	n := d.u32()
	if n == 0 || d.err != nil {
		return nil
	}
	if n > maxSliceLen {
		d.fail(io.ErrUnexpectedEOF)
		return nil
	}
	v := make([]string, n)
	for i := range v {
		v[i] = d.str()
	}
	return v
}

func (d *decoder) intSlice() []int {
	n := d.u32()
	if n == 0 || d.err != nil {
		return nil
	}
	if n > maxSliceLen {
		d.fail(io.ErrUnexpectedEOF)
		return nil
	}
	v := make([]int, n)
	for i := range v {
		v[i] = d.i32()
	}
	return v
}

func (d *decoder) document() voicing.Document {
	var doc voicing.Document

	doc.ID = d.str()
	doc.Vector = d.f64Slice()
	doc.TextVector = d.f64Slice()

	doc.ChordName = d.str()
	doc.DifficultyTier = d.str()
	doc.Position = d.str()
	doc.MinFret = d.i32()
	doc.MaxFret = d.i32()
	doc.FingerCount = d.i32()

	doc.HandStretch = d.i32()
	doc.RequiresBarre = d.bool()

	doc.StackingType = d.str()
	doc.RootPitchClass = d.i32()
	doc.BassPitchClass = d.i32()
	doc.Inversion = d.i32()
	doc.Consonance = d.f64()
	doc.Brightness = d.f64()
	doc.IsRootless = d.bool()
	doc.IsGuideTone = d.bool()
	doc.IsDropVoicing = d.bool()
	doc.UsesOpenString = d.bool()
	doc.CAGEDShape = d.optStr()
	doc.SetClassID = d.optStr()

	doc.SemanticTags = d.strSlice()
	doc.PossibleKeys = d.strSlice()
	doc.OmittedTones = d.strSlice()
	doc.DoubledTones = d.strSlice()
	doc.AlternateNames = d.strSlice()

	doc.Description = d.optStr()
	doc.YAML = d.optStr()
	doc.MIDINotes = d.intSlice()

	return doc
}

// Decode reads a document set, rejecting unknown magic and any version
// other than FormatVersion.
//
// Slices are count-prefixed on the wire, so a zero count decodes as nil:
// an empty slice written by Encode comes back as a nil one. Callers must
// not rely on the nil/empty distinction surviving a round trip.
func Decode(r io.Reader) ([]voicing.Document, error) {
	d := &decoder{r: bufio.NewReader(r)}

	header := d.bytes(4)
	if d.err != nil {
		return nil, cherr.Wrap(cherr.ErrCodeCacheCorrupt, d.err)
	}
	if [4]byte(header) != magic {
		return nil, cherr.New(cherr.ErrCodeCacheCorrupt, "not a chordex cache file", nil)
	}

	version := d.u32()
	if d.err != nil {
		return nil, cherr.Wrap(cherr.ErrCodeCacheCorrupt, d.err)
	}
	if version != FormatVersion {
		return nil, cherr.CacheVersion(FormatVersion, version)
	}

	count := d.u32()
	if d.err != nil {
		return nil, cherr.Wrap(cherr.ErrCodeCacheCorrupt, d.err)
	}
	if count > maxDocuments {
		return nil, cherr.New(cherr.ErrCodeCacheCorrupt, "implausible document count", nil)
	}

	docs := make([]voicing.Document, 0, count)
	for i := uint32(0); i < count; i++ {
		doc := d.document()
		if d.err != nil {
			return nil, cherr.Wrap(cherr.ErrCodeCacheCorrupt, d.err)
		}
		docs = append(docs, doc)
	}

	// Trailing garbage means the writer and reader disagree on layout.
	if _, err := d.r.ReadByte(); err != io.EOF {
		return nil, cherr.New(cherr.ErrCodeCacheCorrupt, "trailing bytes after document set", nil)
	}
	return docs, nil
}
