package resp

import (
	"bufio"
	"bytes"
	"io"
	"strconv"

	"github.com/nverba/redwire/pkg/common"
)

const (
	DefaultBufferSize = 8 * common.KB
	MaxBufferSize     = 512 * common.MB
)

const (
	markerStatus = byte('+') // +<string>\r\n
	markerError  = byte('-') // -<string>\r\n
	markerInt    = byte(':') // :<number>\r\n
	markerBulk   = byte('$') // $<length>\r\n<bytes>\r\n
	markerArray  = byte('*') // *<len>\r\n...
)

// Reader is the streaming frame decoder. It buffers fragmented
// transport bytes internally, so a frame split across arbitrarily many
// partial reads decodes the same as a contiguous one. Error frames are
// translated straight into the error channel and never become a Value.
type Reader struct {
	reader *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{
		reader: bufio.NewReaderSize(r, DefaultBufferSize),
	}
}

func NewReaderFromBytes(data []byte) *Reader {
	return &Reader{
		reader: bufio.NewReader(bytes.NewReader(data)),
	}
}

func (r *Reader) Buffered() int {
	return r.reader.Buffered()
}

// Read decodes one complete frame. An EOF before the first byte of a
// frame is reported as a closed connection; an EOF anywhere inside a
// frame is an unexpected-EOF transport failure.
func (r *Reader) Read() (Value, error) {
	b, err := r.reader.ReadByte()
	if err != nil {
		return Value{}, common.WrapIOError(err)
	}
	return r.readFrame(b)
}

// readNested decodes an element inside an enclosing frame. An EOF at
// its first byte is already mid-frame for the outer value, so it is an
// unexpected EOF rather than a clean close.
func (r *Reader) readNested() (Value, error) {
	b, err := r.reader.ReadByte()
	if err != nil {
		return Value{}, midFrame(err)
	}
	return r.readFrame(b)
}

func (r *Reader) readFrame(b byte) (Value, error) {
	switch b {
	case markerStatus:
		line, err := r.readLine()
		if err != nil {
			return Value{}, err
		}
		return StatusValue(string(line)), nil

	case markerError:
		line, err := r.readLine()
		if err != nil {
			return Value{}, err
		}
		return Value{}, common.ServerError(string(line))

	case markerInt:
		n, err := r.readInt()
		if err != nil {
			return Value{}, err
		}
		return IntValue(n), nil

	case markerBulk:
		length, err := r.readInt()
		if err != nil {
			return Value{}, err
		}
		if length == -1 {
			return NilValue, nil
		}
		if length < 0 || length > MaxBufferSize {
			return Value{}, protocolError("invalid bulk length " + strconv.FormatInt(length, 10))
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(r.reader, buf); err != nil {
			return Value{}, midFrame(err)
		}
		if err := r.skipCRLF(); err != nil {
			return Value{}, err
		}
		return DataValue(buf), nil

	case markerArray:
		length, err := r.readInt()
		if err != nil {
			return Value{}, err
		}
		if length == -1 {
			return NilValue, nil
		}
		if length < 0 {
			return Value{}, protocolError("invalid array length " + strconv.FormatInt(length, 10))
		}
		items := make([]Value, int(length))
		for i := range items {
			elem, err := r.readNested()
			if err != nil {
				return Value{}, err
			}
			items[i] = elem
		}
		return Value{Kind: Bulk, Bulk: items}, nil

	default:
		logger.Info("Reader invalid frame marker", "marker", string(b))
		return Value{}, protocolError("invalid response type marker")
	}
}

func protocolError(desc string) *common.RedisError {
	return common.NewError(common.ResponseError, desc)
}

// midFrame rewrites a bare EOF inside a frame into the unexpected-EOF
// transport failure the caller uses to shut the connection down.
func midFrame(err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return common.WrapIOError(err)
}

func (r *Reader) readLine() ([]byte, error) {
	line, err := r.reader.ReadSlice('\n')
	if err != nil {
		if err == bufio.ErrBufferFull {
			return nil, protocolError("line exceeds read buffer")
		}
		return nil, midFrame(err)
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, protocolError("bad CRLF end")
	}
	return line[:len(line)-2], nil
}

func (r *Reader) readInt() (int64, error) {
	line, err := r.readLine()
	if err != nil {
		return 0, err
	}
	n, convErr := decodeInt64(line)
	if convErr != nil {
		return 0, protocolError("invalid numeric line")
	}
	return n, nil
}

func (r *Reader) skipCRLF() error {
	b, err := r.reader.ReadByte()
	if err != nil {
		return midFrame(err)
	}
	if b != '\r' {
		return protocolError("bad CRLF end")
	}
	b, err = r.reader.ReadByte()
	if err != nil {
		return midFrame(err)
	}
	if b != '\n' {
		return protocolError("bad CRLF end")
	}
	return nil
}

func decodeInt64(b []byte) (int64, error) {
	if len(b) < 10 { // fast path for small numbers
		var neg, i = false, 0
		switch {
		case len(b) == 0:
			return 0, strconv.ErrSyntax
		case b[0] == '-':
			neg = true
			i++
		case b[0] == '+':
			i++
		}
		if len(b) != i {
			var n int64
			for ; i < len(b) && b[i] >= '0' && b[i] <= '9'; i++ {
				n = int64(b[i]-'0') + n*10
			}
			if len(b) == i {
				if neg {
					n = -n
				}
				return n, nil
			}
		}
	}
	return strconv.ParseInt(string(b), 10, 64)
}
