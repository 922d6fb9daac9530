// Package scanner tokenizes PDF syntax from an io.ReaderAt, buffering
// the input in fixed-size windows so large documents are not copied up
// front.
package scanner

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"unicode"

	"github.com/TimoteoRJanzen/Tradutor-PDF/recovery"
)

type TokenType int

const (
	TokenDict        TokenType = iota // '<<'
	TokenArray                        // '['
	TokenName                         // '/Name'
	TokenString                       // literal or hex string
	TokenNumber                       // numeric value
	TokenBoolean                      // true/false
	TokenNull                         // null
	TokenRef                          // indirect ref '5 0 R'
	TokenStream                       // payload following the 'stream' keyword
	TokenInlineImage                  // inline image data between ID and EI
	TokenKeyword                      // other keywords (obj, endobj, >>, ], ...)
)

// Token is a single lexical unit. Which fields are meaningful depends on
// Type: Str for names and keywords, Bytes for strings/streams/inline
// images, Int or Float (per IsInt) for numbers, Bool for booleans, and
// Num/Gen for indirect references.
type Token struct {
	Type  TokenType
	Pos   int64
	Str   string
	Bytes []byte
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Num   int
	Gen   int
}

type Scanner interface {
	Next() (Token, error)
	Position() int64
	SeekTo(offset int64) error
	// SetNextStreamLength tells the scanner the declared /Length of the
	// stream that follows the next 'stream' keyword, avoiding a forward
	// search for 'endstream'.
	SetNextStreamLength(n int64)
	SetRecoveryLocation(loc recovery.Location)
}

type Config struct {
	MaxNameLength   int64
	MaxStringLength int64
	MaxArrayDepth   int
	MaxDictDepth    int
	MaxStreamLength int64
	MaxStreamScan   int64
	MaxInlineImage  int64
	WindowSize      int64
	Recovery        recovery.Strategy
}

type pdfScanner struct {
	reader        io.ReaderAt
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
	chunkSize     int64
	eof           bool
	arrayDepth    int
	dictDepth     int
	recLoc        recovery.Location
	lastAction    recovery.Action
}

func New(r io.ReaderAt, cfg Config) Scanner {
	chunk := cfg.WindowSize
	if chunk <= 0 {
		chunk = 64 * 1024
	}
	return &pdfScanner{reader: r, cfg: cfg, nextStreamLen: -1, chunkSize: chunk}
}

func (s *pdfScanner) Position() int64 { return s.pos }

func (s *pdfScanner) SeekTo(offset int64) error {
	if offset < 0 {
		return errors.New("seek out of range")
	}
	if err := s.ensure(offset); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if offset > int64(len(s.data)) {
		return errors.New("seek out of range")
	}
	s.pos = offset
	// A seek abandons whatever structure was in flight.
	s.arrayDepth = 0
	s.dictDepth = 0
	return nil
}

func (s *pdfScanner) SetNextStreamLength(n int64)               { s.nextStreamLen = n }
func (s *pdfScanner) SetRecoveryLocation(loc recovery.Location) { s.recLoc = loc }

func (s *pdfScanner) Next() (Token, error) {
	if err := s.skipWSAndComments(); err != nil {
		if errors.Is(err, io.EOF) {
			return s.atEOF()
		}
		return Token{}, err
	}
	if s.pos >= int64(len(s.data)) {
		return s.atEOF()
	}
	if err := s.ensure(s.pos); err != nil {
		if errors.Is(err, io.EOF) {
			return s.atEOF()
		}
		return Token{}, err
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peekAhead(1) == '<' {
			s.pos += 2
			return s.emit(Token{Type: TokenDict, Str: "<<", Pos: start})
		}
		return s.scanHexString()
	case '>':
		if s.peekAhead(1) == '>' {
			s.pos += 2
			return s.emit(Token{Type: TokenKeyword, Str: ">>", Pos: start})
		}
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: string(c), Pos: start})
	case '[':
		s.pos++
		return s.emit(Token{Type: TokenArray, Str: "[", Pos: start})
	case ']':
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: "]", Pos: start})
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	if isAlpha(c) {
		return s.scanKeyword()
	}
	s.pos++
	return s.emit(Token{Type: TokenKeyword, Str: string(c), Pos: start})
}

// atEOF synthesizes closing tokens for unclosed containers when the
// recovery strategy allows fixing, otherwise reports io.EOF.
func (s *pdfScanner) atEOF() (Token, error) {
	if s.arrayDepth > 0 {
		if err := s.recover(errors.New("unclosed array at EOF"), "array"); err == nil {
			s.arrayDepth--
			return Token{Type: TokenKeyword, Str: "]", Pos: s.pos}, nil
		}
	}
	if s.dictDepth > 0 {
		if err := s.recover(errors.New("unclosed dict at EOF"), "dict"); err == nil {
			s.dictDepth--
			return Token{Type: TokenKeyword, Str: ">>", Pos: s.pos}, nil
		}
	}
	return Token{}, io.EOF
}

func (s *pdfScanner) skipWSAndComments() error {
	for {
		if s.pos >= int64(len(s.data)) {
			if err := s.ensure(s.pos); err != nil {
				return err
			}
		}
		if s.pos >= int64(len(s.data)) {
			return io.EOF
		}
		c := s.data[s.pos]
		// whitespace per PDF spec (space, tab, CR, LF, FF, null)
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for {
				s.pos++
				if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				if s.pos >= int64(len(s.data)) {
					return io.EOF
				}
				if s.data[s.pos] == '\n' || s.data[s.pos] == '\r' {
					break
				}
			}
			continue
		}
		return nil
	}
}

func (s *pdfScanner) ensure(n int64) error {
	for int64(len(s.data)) <= n {
		if s.eof {
			return io.EOF
		}
		if err := s.loadMore(); err != nil {
			return err
		}
	}
	return nil
}

func (s *pdfScanner) loadMore() error {
	buf := make([]byte, s.chunkSize)
	off := int64(len(s.data))
	n, err := s.reader.ReadAt(buf, off)
	if n > 0 {
		s.data = append(s.data, buf[:n]...)
	}
	if err == io.EOF {
		s.eof = true
		return nil
	}
	if err != nil {
		return err
	}
	if n == 0 {
		s.eof = true
	}
	return nil
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }
func isAlpha(c byte) bool      { return unicode.IsLetter(rune(c)) }

func (s *pdfScanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // skip '/'
	var out bytes.Buffer
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' { // hex escape in name
			s.pos++
			a := s.hexNibble()
			b := s.hexNibble()
			out.WriteByte((a << 4) | b)
		} else {
			out.WriteByte(c)
			s.pos++
		}
		if s.cfg.MaxNameLength > 0 && int64(out.Len()) > s.cfg.MaxNameLength {
			return Token{}, s.recover(errors.New("name too long"), "name")
		}
	}
	return s.emit(Token{Type: TokenName, Str: out.String(), Pos: start})
}

func (s *pdfScanner) hexNibble() byte {
	if s.pos >= int64(len(s.data)) {
		return 0
	}
	c := s.data[s.pos]
	s.pos++
	return fromHex(c)
}

// scanLiteralString handles the escapes of PDF 7.3.4.2, including octal
// escapes, nested parentheses, and line continuations.
func (s *pdfScanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if c == '\\' {
			s.pos++
			if err := s.ensure(s.pos); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return Token{}, err
			}
			if s.pos >= int64(len(s.data)) {
				break
			}
			esc := s.data[s.pos]
			// backslash followed by EOL is a line continuation
			if esc == '\r' {
				s.pos++
				if err := s.ensure(s.pos); err == nil && s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
				continue
			}
			if esc == '\n' {
				s.pos++
				continue
			}
			if esc >= '0' && esc <= '7' {
				val := int(esc - '0')
				s.pos++
				for k := 0; k < 2 && s.pos < int64(len(s.data)); k++ {
					if err := s.ensure(s.pos); err != nil {
						if errors.Is(err, io.EOF) {
							break
						}
						return Token{}, err
					}
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = (val << 3) + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
				continue
			}
			buf.WriteByte(translateEscape(esc))
			s.pos++
			continue
		}
		if c == '(' {
			depth++
			buf.WriteByte(c)
			s.pos++
			continue
		}
		if c == ')' {
			depth--
			if depth == 0 {
				s.pos++
				break
			}
			buf.WriteByte(c)
			s.pos++
			continue
		}
		buf.WriteByte(c)
		s.pos++
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, s.recover(errors.New("literal string too long"), "literal")
		}
	}
	if depth != 0 {
		if err := s.recover(errors.New("unterminated literal string"), "literal"); err != nil {
			if s.lastAction != recovery.ActionFix {
				return Token{}, err
			}
		}
	}
	return s.emit(Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start})
}

func (s *pdfScanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // skip '<'
	var hexbuf []byte
	closed := false
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if c == '>' {
			s.pos++
			closed = true
			break
		}
		if isWhitespace(c) {
			s.pos++
			continue
		}
		hexbuf = append(hexbuf, c)
		s.pos++
	}
	if !closed {
		if err := s.recover(errors.New("unterminated hex string"), "hex"); err != nil {
			if s.lastAction != recovery.ActionFix {
				return Token{}, err
			}
		}
	}
	// odd nibble count is padded with 0
	if len(hexbuf)%2 == 1 {
		hexbuf = append(hexbuf, '0')
	}
	if s.cfg.MaxStringLength > 0 && int64(len(hexbuf)/2) > s.cfg.MaxStringLength {
		return Token{}, s.recover(errors.New("hex string too long"), "hex")
	}
	out := make([]byte, 0, len(hexbuf)/2)
	for i := 0; i < len(hexbuf); i += 2 {
		out = append(out, (fromHex(hexbuf[i])<<4)|fromHex(hexbuf[i+1]))
	}
	return s.emit(Token{Type: TokenString, Bytes: out, Pos: start})
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

// scanStream consumes the payload after a 'stream' keyword, using the
// declared length when one was provided and searching for 'endstream'
// otherwise.
func (s *pdfScanner) scanStream(start int64) (Token, error) {
	if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
		return Token{}, err
	}
	// PDF 7.3.8: the stream keyword must be followed by an EOL
	if s.pos >= int64(len(s.data)) {
		return Token{}, s.recover(errors.New("stream missing EOL before data"), "stream")
	}
	if s.data[s.pos] == '\r' {
		s.pos++
		if err := s.ensure(s.pos); err == nil && s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
			s.pos++
		}
	} else if s.data[s.pos] == '\n' {
		s.pos++
	} else {
		return Token{}, s.recover(errors.New("stream missing EOL before data"), "stream")
	}
	dataStart := s.pos
	if s.nextStreamLen >= 0 {
		l := s.nextStreamLen
		if s.cfg.MaxStreamLength > 0 && l > s.cfg.MaxStreamLength {
			return Token{}, errors.New("stream too long")
		}
		if err := s.ensure(dataStart + l - 1); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		} else if errors.Is(err, io.EOF) {
			if recErr := s.recover(errors.New("stream ended before declared length"), "stream"); recErr != nil {
				if s.lastAction != recovery.ActionFix {
					return Token{}, recErr
				}
			}
		}
		if dataStart+l > int64(len(s.data)) {
			l = int64(len(s.data)) - dataStart
		}
		end := dataStart + l
		payload := append([]byte(nil), s.data[dataStart:end]...)
		s.pos = end
		if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if s.pos < int64(len(s.data)) {
			if s.data[s.pos] == '\r' {
				s.pos++
				if err := s.ensure(s.pos); err == nil && s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
			} else if s.data[s.pos] == '\n' {
				s.pos++
			}
		}
		needle := []byte("endstream")
		if s.pos+int64(len(needle)) <= int64(len(s.data)) && bytes.Equal(s.data[s.pos:s.pos+int64(len(needle))], needle) {
			s.pos += int64(len(needle))
		} else {
			// declared length was wrong; search forward
			idx := bytes.Index(s.data[s.pos:], needle)
			if idx >= 0 {
				s.pos += int64(idx + len(needle))
			}
		}
		s.nextStreamLen = -1
		return s.emit(Token{Type: TokenStream, Bytes: payload, Pos: start})
	}
	needle := []byte("endstream")
	idx := -1
	for i := dataStart; ; i++ {
		if err := s.ensure(i + int64(len(needle)) - 1); err != nil {
			if errors.Is(err, io.EOF) {
				if i+int64(len(needle)) > int64(len(s.data)) {
					break
				}
			} else {
				return Token{}, err
			}
		}
		if s.cfg.MaxStreamScan > 0 && i-dataStart > s.cfg.MaxStreamScan {
			if recErr := s.recover(errors.New("endstream not found within scan limit"), "stream"); recErr != nil && s.lastAction != recovery.ActionFix {
				return Token{}, recErr
			}
			break
		}
		if i+int64(len(needle)) > int64(len(s.data)) {
			break
		}
		if s.data[i] != 'e' {
			continue
		}
		prevOK := hasStreamBreakBefore(s.data, i, int(dataStart))
		match := true
		for j := int64(0); j < int64(len(needle)); j++ {
			if s.data[i+j] != needle[j] {
				match = false
				break
			}
		}
		followOK := i+int64(len(needle)) >= int64(len(s.data)) || isDelimiter(s.data[i+int64(len(needle))])
		if match && prevOK && followOK {
			idx = int(i)
			break
		}
		if s.cfg.MaxStreamLength > 0 && i-dataStart > s.cfg.MaxStreamLength {
			return Token{}, s.recover(errors.New("stream too long"), "stream")
		}
	}
	if idx == -1 {
		payload := append([]byte(nil), s.data[dataStart:]...)
		if s.cfg.MaxStreamLength > 0 && int64(len(payload)) > s.cfg.MaxStreamLength {
			return Token{}, s.recover(errors.New("stream too long"), "stream")
		}
		if s.cfg.MaxStreamScan > 0 && int64(len(payload)) > s.cfg.MaxStreamScan {
			if recErr := s.recover(errors.New("endstream not found within scan limit"), "stream"); recErr != nil && s.lastAction != recovery.ActionFix {
				return Token{}, recErr
			}
		}
		s.pos = int64(len(s.data))
		return s.emit(Token{Type: TokenStream, Bytes: payload, Pos: start})
	}
	// trim the EOL that precedes the marker
	end := idx
	if end > int(dataStart) {
		if s.data[end-1] == '\n' {
			end--
			if end > int(dataStart) && s.data[end-1] == '\r' {
				end--
			}
		} else if s.data[end-1] == '\r' {
			end--
		}
	}
	payload := append([]byte(nil), s.data[dataStart:end]...)
	if s.cfg.MaxStreamLength > 0 && int64(len(payload)) > s.cfg.MaxStreamLength {
		return Token{}, s.recover(errors.New("stream too long"), "stream")
	}
	s.pos = int64(idx + len(needle))
	return s.emit(Token{Type: TokenStream, Bytes: payload, Pos: start})
}

// scanInlineImage consumes bytes after the ID keyword up to an EI
// delimiter preceded by a line break. The scanner does not interpret
// the image parameters.
func (s *pdfScanner) scanInlineImage(start int64) (Token, error) {
	if err := s.ensure(s.pos); err != nil {
		if errors.Is(err, io.EOF) {
			return Token{}, s.recover(errors.New("unterminated inline image"), "inline_image")
		}
		return Token{}, err
	}
	if s.pos >= int64(len(s.data)) || !isWhitespace(s.data[s.pos]) {
		return Token{}, s.recover(errors.New("inline image missing required whitespace after ID"), "inline_image")
	}
	s.pos++
	if err := s.ensure(s.pos); err == nil && s.pos < int64(len(s.data)) {
		if s.data[s.pos] == '\r' {
			s.pos++
			if err := s.ensure(s.pos); err == nil && s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
				s.pos++
			}
		} else if s.data[s.pos] == '\n' {
			s.pos++
		}
	}
	dataStart := s.pos
	for {
		if err := s.ensure(s.pos + 1); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if s.pos+1 >= int64(len(s.data)) {
			return Token{}, errors.New("unterminated inline image")
		}
		if s.data[s.pos] == 'E' && s.data[s.pos+1] == 'I' {
			// require a line break before EI to avoid matches inside binary data
			prevOK := s.pos > dataStart && isEOL(s.data[s.pos-1])
			var nextOK bool
			if err := s.ensure(s.pos + 2); err != nil && !errors.Is(err, io.EOF) {
				return Token{}, err
			}
			if s.pos+2 >= int64(len(s.data)) {
				nextOK = true
			} else {
				nextOK = isDelimiter(s.data[s.pos+2])
			}
			if prevOK && nextOK {
				payload := append([]byte(nil), s.data[dataStart:s.pos]...)
				if s.cfg.MaxInlineImage > 0 && int64(len(payload)) > s.cfg.MaxInlineImage {
					return Token{}, s.recover(errors.New("inline image too long"), "inline_image")
				}
				s.pos += 2
				return s.emit(Token{Type: TokenInlineImage, Bytes: payload, Pos: start})
			}
		}
		s.pos++
		if s.cfg.MaxInlineImage > 0 && s.pos-dataStart > s.cfg.MaxInlineImage {
			return Token{}, s.recover(errors.New("inline image too long"), "inline_image")
		}
		if s.pos >= int64(len(s.data)) && s.eof {
			return Token{}, s.recover(errors.New("unterminated inline image"), "inline_image")
		}
	}
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isEOL(c byte) bool { return c == '\r' || c == '\n' }

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}

func (s *pdfScanner) peekAhead(n int64) byte {
	if err := s.ensure(s.pos + n); err != nil {
		return 0
	}
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *pdfScanner) scanKeyword() (Token, error) {
	start := s.pos
	var buf bytes.Buffer
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		buf.WriteByte(c)
		s.pos++
	}
	kw := buf.String()
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	case "ID": // caller has already consumed the inline image dict
		return s.scanInlineImage(start)
	default:
		return Token{Type: TokenKeyword, Str: kw, Pos: start}, nil
	}
}

func (s *pdfScanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	num1Str := s.scanNumberString()
	if num1Str == "" {
		return Token{}, errors.New("invalid number")
	}

	s.skipWSAndComments()
	secondStart := s.pos
	num2Str := s.scanNumberString()
	if num2Str != "" {
		s.skipWSAndComments()
		if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
			(s.pos+1 >= int64(len(s.data)) || isDelimiter(s.data[s.pos+1])) {
			s.pos++
			n1, _ := strconv.Atoi(num1Str)
			n2, _ := strconv.Atoi(num2Str)
			return Token{Type: TokenRef, Num: n1, Gen: n2, Int: int64(n1), IsInt: true, Pos: start}, nil
		}
	}
	// not a ref; put the second number back for the caller
	if num2Str != "" {
		s.pos = secondStart
	}
	if i, err := strconv.ParseInt(num1Str, 10, 64); err == nil {
		return s.emit(Token{Type: TokenNumber, Int: i, Float: float64(i), IsInt: true, Pos: start})
	}
	f, _ := strconv.ParseFloat(num1Str, 64)
	return s.emit(Token{Type: TokenNumber, Float: f, Pos: start})
}

func (s *pdfScanner) scanNumberString() string {
	start := s.pos
	var buf bytes.Buffer
	seenDigit := false
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return ""
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
			buf.WriteByte(c)
			if c >= '0' && c <= '9' {
				seenDigit = true
			}
			s.pos++
			continue
		}
		break
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return buf.String()
}

func (s *pdfScanner) recover(err error, loc string) error {
	if s.cfg.Recovery == nil {
		return err
	}
	location := s.recLoc
	location.ByteOffset = s.pos
	if location.Component != "" {
		location.Component += "->"
	}
	location.Component += "scanner:" + loc
	action := s.cfg.Recovery.OnError(nil, err, location)
	s.lastAction = action
	switch action {
	case recovery.ActionSkip, recovery.ActionFix:
		return nil
	default:
		return err
	}
}

func (s *pdfScanner) emit(tok Token) (Token, error) {
	switch tok.Type {
	case TokenArray:
		s.arrayDepth++
		if s.cfg.MaxArrayDepth > 0 && s.arrayDepth > s.cfg.MaxArrayDepth {
			if err := s.recover(errors.New("array depth exceeded"), "array"); err != nil {
				return Token{}, err
			}
		}
	case TokenDict:
		s.dictDepth++
		if s.cfg.MaxDictDepth > 0 && s.dictDepth > s.cfg.MaxDictDepth {
			if err := s.recover(errors.New("dict depth exceeded"), "dict"); err != nil {
				return Token{}, err
			}
		}
	case TokenKeyword:
		if tok.Str == "]" {
			if s.arrayDepth == 0 {
				if err := s.recover(errors.New("array depth underflow"), "array"); err != nil {
					return Token{}, err
				}
				return s.Next()
			}
			s.arrayDepth--
		}
		if tok.Str == ">>" {
			if s.dictDepth == 0 {
				if err := s.recover(errors.New("dict depth underflow"), "dict"); err != nil {
					return Token{}, err
				}
				return s.Next()
			}
			s.dictDepth--
		}
	}
	return tok, nil
}

// hasStreamBreakBefore reports whether position i is preceded by a line
// break or whitespace, making it a plausible endstream boundary.
func hasStreamBreakBefore(data []byte, i int64, dataStart int) bool {
	if i == int64(dataStart) {
		return true
	}
	if isEOL(data[i-1]) {
		return true
	}
	return isWhitespace(data[i-1])
}
