package vm

import (
	"encoding/binary"
	"math"
)

const (
	sizeI32   = 4
	sizeUsize = 8
	sizeF64   = 8
)

// Writer is the append/overwrite byte buffer from spec.md §4.2. In
// append mode (the default) every write grows the buffer; once seek is
// called, writes patch in place starting at that offset, which is how
// the assembler back-patches label placeholders.
type Writer struct {
	buf       []byte
	overwrite *int
}

func NewWriter() *Writer {
	return &Writer{}
}

// Seek switches the writer into overwrite mode starting at offset.
func (w *Writer) Seek(offset int) {
	o := offset
	w.overwrite = &o
}

// SeekEnd switches the writer back to append mode.
func (w *Writer) SeekEnd() {
	w.overwrite = nil
}

func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) writeBytes(b []byte) {
	if w.overwrite == nil {
		w.buf = append(w.buf, b...)
		return
	}
	copy(w.buf[*w.overwrite:], b)
	*w.overwrite += len(b)
}

func (w *Writer) WriteInstruction(op Opcode) {
	w.writeBytes([]byte{byte(op)})
}

func (w *Writer) WriteI32(v int32) {
	var b [sizeI32]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.writeBytes(b[:])
}

func (w *Writer) WriteUsize(v uint64) {
	var b [sizeUsize]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.writeBytes(b[:])
}

func (w *Writer) WriteF64(v float64) {
	var b [sizeF64]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	w.writeBytes(b[:])
}

func (w *Writer) WriteString(s []byte) {
	w.WriteUsize(uint64(len(s)))
	w.writeBytes(s)
}

// IntoReader hands ownership of the buffer to a new Reader; per
// spec.md §4.2 the writer is consumed by this call and must not be
// reused afterwards.
func (w *Writer) IntoReader() *Reader {
	r := &Reader{buf: w.buf}
	w.buf = nil
	return r
}

// Reader is an immutable byte slice plus a cursor (spec.md §4.2).
type Reader struct {
	buf    []byte
	cursor int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Cursor() uint64 {
	return uint64(r.cursor)
}

// SetCursor is used by jump/call/return to redirect the code pointer.
func (r *Reader) SetCursor(c uint64) {
	r.cursor = int(c)
}

func (r *Reader) Len() int {
	return len(r.buf)
}

func (r *Reader) EndOfFile() bool {
	return r.cursor >= len(r.buf)
}

func (r *Reader) require(n int) error {
	if r.cursor+n > len(r.buf) {
		return wrapf(ErrOutOfBounds, "need %d bytes at offset %d, have %d", n, r.cursor, len(r.buf)-r.cursor)
	}
	return nil
}

func (r *Reader) ReadInstruction() (Opcode, error) {
	if err := r.require(1); err != nil {
		return 0, err
	}
	op := Opcode(r.buf[r.cursor])
	r.cursor++
	return op, nil
}

func (r *Reader) ReadI32() (int32, error) {
	if err := r.require(sizeI32); err != nil {
		return 0, err
	}
	v := int32(binary.BigEndian.Uint32(r.buf[r.cursor:]))
	r.cursor += sizeI32
	return v, nil
}

func (r *Reader) ReadUsize() (uint64, error) {
	if err := r.require(sizeUsize); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.cursor:])
	r.cursor += sizeUsize
	return v, nil
}

func (r *Reader) ReadF64() (float64, error) {
	if err := r.require(sizeF64); err != nil {
		return 0, err
	}
	v := math.Float64frombits(binary.BigEndian.Uint64(r.buf[r.cursor:]))
	r.cursor += sizeF64
	return v, nil
}

func (r *Reader) ReadString() ([]byte, error) {
	n, err := r.ReadUsize()
	if err != nil {
		return nil, err
	}
	if err := r.require(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.cursor:r.cursor+int(n)])
	r.cursor += int(n)
	return out, nil
}
