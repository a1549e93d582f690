package resp

import (
	"bufio"
	"io"
	"strconv"
)

const (
	crlf     = "\r\n"
	nilBulk  = "$-1\r\n"
	nilArray = "*-1\r\n"
)

// Writer encodes frames onto a buffered stream. Commands are always
// encoded as an array of bulk strings; WriteValue exists for servers
// (and test fixtures) that need to speak the reply side.
type Writer struct {
	writer *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{
		writer: bufio.NewWriterSize(w, DefaultBufferSize),
	}
}

// WriteCommand writes one command as a pipe of byte-string arguments.
func (w *Writer) WriteCommand(args ...[]byte) error {
	if err := w.writer.WriteByte(markerArray); err != nil {
		return err
	}
	if _, err := w.writer.WriteString(strconv.Itoa(len(args))); err != nil {
		return err
	}
	if err := w.writeCRLF(); err != nil {
		return err
	}
	for _, arg := range args {
		if err := w.writeBulk(arg); err != nil {
			return err
		}
	}
	return nil
}

// WriteValue writes a reply-side frame.
func (w *Writer) WriteValue(v Value) error {
	switch v.Kind {
	case Nil:
		_, err := w.writer.WriteString(nilBulk)
		return err
	case Int:
		if err := w.writer.WriteByte(markerInt); err != nil {
			return err
		}
		if _, err := w.writer.WriteString(strconv.FormatInt(v.Int, 10)); err != nil {
			return err
		}
		return w.writeCRLF()
	case Data:
		return w.writeBulk(v.Data)
	case Status:
		return w.writeStatus(v.Status)
	case Okay:
		return w.writeStatus("OK")
	case Bulk:
		if v.Bulk == nil {
			_, err := w.writer.WriteString(nilArray)
			return err
		}
		if err := w.writer.WriteByte(markerArray); err != nil {
			return err
		}
		if _, err := w.writer.WriteString(strconv.Itoa(len(v.Bulk))); err != nil {
			return err
		}
		if err := w.writeCRLF(); err != nil {
			return err
		}
		for _, elem := range v.Bulk {
			if err := w.WriteValue(elem); err != nil {
				return err
			}
		}
		return nil
	default:
		return protocolError("unknown value kind")
	}
}

// WriteError writes a reply-side error frame.
func (w *Writer) WriteError(text string) error {
	if err := w.writer.WriteByte(markerError); err != nil {
		return err
	}
	if _, err := w.writer.WriteString(text); err != nil {
		return err
	}
	return w.writeCRLF()
}

func (w *Writer) writeStatus(status string) error {
	if err := w.writer.WriteByte(markerStatus); err != nil {
		return err
	}
	if _, err := w.writer.WriteString(status); err != nil {
		return err
	}
	return w.writeCRLF()
}

func (w *Writer) writeBulk(b []byte) error {
	if b == nil {
		_, err := w.writer.WriteString(nilBulk)
		return err
	}
	if err := w.writer.WriteByte(markerBulk); err != nil {
		return err
	}
	if _, err := w.writer.WriteString(strconv.Itoa(len(b))); err != nil {
		return err
	}
	if err := w.writeCRLF(); err != nil {
		return err
	}
	if _, err := w.writer.Write(b); err != nil {
		return err
	}
	return w.writeCRLF()
}

func (w *Writer) writeCRLF() error {
	_, err := w.writer.WriteString(crlf)
	return err
}

// Flush writes any buffered data to the underlying io.Writer.
func (w *Writer) Flush() error {
	return w.writer.Flush()
}

// PackCommand encodes one command into a standalone byte slice.
func PackCommand(args ...[]byte) []byte {
	size := 1 + intLen(int64(len(args))) + 2
	for _, arg := range args {
		size += 1 + intLen(int64(len(arg))) + 2 + len(arg) + 2
	}
	buf := make([]byte, 0, size)
	buf = append(buf, markerArray)
	buf = strconv.AppendInt(buf, int64(len(args)), 10)
	buf = append(buf, crlf...)
	for _, arg := range args {
		buf = append(buf, markerBulk)
		buf = strconv.AppendInt(buf, int64(len(arg)), 10)
		buf = append(buf, crlf...)
		buf = append(buf, arg...)
		buf = append(buf, crlf...)
	}
	return buf
}

// EncodeValue encodes a reply-side frame into a standalone byte slice.
// Used by tests to drive the reader and by fake servers.
func EncodeValue(v Value) []byte {
	var out []byte
	switch v.Kind {
	case Nil:
		out = append(out, nilBulk...)
	case Int:
		out = append(out, markerInt)
		out = strconv.AppendInt(out, v.Int, 10)
		out = append(out, crlf...)
	case Data:
		out = append(out, markerBulk)
		out = strconv.AppendInt(out, int64(len(v.Data)), 10)
		out = append(out, crlf...)
		out = append(out, v.Data...)
		out = append(out, crlf...)
	case Status:
		out = append(out, markerStatus)
		out = append(out, v.Status...)
		out = append(out, crlf...)
	case Okay:
		out = append(out, markerStatus)
		out = append(out, "OK"...)
		out = append(out, crlf...)
	case Bulk:
		out = append(out, markerArray)
		out = strconv.AppendInt(out, int64(len(v.Bulk)), 10)
		out = append(out, crlf...)
		for _, elem := range v.Bulk {
			out = append(out, EncodeValue(elem)...)
		}
	}
	return out
}

func intLen(n int64) int {
	return len(strconv.FormatInt(n, 10))
}
