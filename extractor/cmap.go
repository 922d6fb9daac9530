package extractor

import (
	"bufio"
	"bytes"
	"sort"
	"strings"
	"unicode/utf16"
)

// toUnicodeMap maps character codes (as raw byte strings) to their
// Unicode expansion, built from a ToUnicode CMap stream.
type toUnicodeMap struct {
	entries map[string]string
	lengths []int
}

func parseToUnicodeCMap(data []byte) *toUnicodeMap {
	lineScanner := bufio.NewScanner(bytes.NewReader(data))
	result := &toUnicodeMap{entries: make(map[string]string)}
	lengthSet := make(map[int]struct{})
	state := ""
	for lineScanner.Scan() {
		line := strings.TrimSpace(lineScanner.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		switch {
		case strings.HasSuffix(line, "begincodespacerange"):
			state = "codespace"
			continue
		case strings.HasSuffix(line, "endcodespacerange"):
			state = ""
			continue
		case strings.HasSuffix(line, "beginbfchar"):
			state = "bfchar"
			continue
		case strings.HasSuffix(line, "endbfchar"):
			state = ""
			continue
		case strings.HasSuffix(line, "beginbfrange"):
			state = "bfrange"
			continue
		case strings.HasSuffix(line, "endbfrange"):
			state = ""
			continue
		}
		switch state {
		case "codespace":
			hexes := extractHexTokens(line)
			if len(hexes) >= 1 {
				if b := hexToBytes(hexes[0]); len(b) > 0 {
					lengthSet[len(b)] = struct{}{}
				}
			}
		case "bfchar":
			hexes := extractHexTokens(line)
			if len(hexes) >= 2 {
				src := hexToBytes(hexes[0])
				dst := decodeUTF16BE(hexToBytes(hexes[1]))
				if len(src) > 0 {
					result.entries[string(src)] = dst
					lengthSet[len(src)] = struct{}{}
				}
			}
		case "bfrange":
			line = accumulateUntil(line, lineScanner)
			hexes := extractHexTokens(line)
			if len(hexes) < 3 {
				continue
			}
			srcStart := hexToBytes(hexes[0])
			srcEnd := hexToBytes(hexes[1])
			length := len(srcStart)
			lengthSet[length] = struct{}{}
			startVal := bytesToInt(srcStart)
			endVal := bytesToInt(srcEnd)
			if strings.Contains(line, "[") {
				for i := 0; i <= endVal-startVal && 2+i < len(hexes); i++ {
					src := intToBytes(startVal+i, length)
					dst := decodeUTF16BE(hexToBytes(hexes[2+i]))
					result.entries[string(src)] = dst
				}
			} else {
				dstStart := hexToBytes(hexes[2])
				dstVal := bytesToInt(dstStart)
				dstLen := len(dstStart)
				for i := 0; i <= endVal-startVal; i++ {
					src := intToBytes(startVal+i, length)
					dst := intToBytes(dstVal+i, dstLen)
					result.entries[string(src)] = decodeUTF16BE(dst)
				}
			}
		}
	}
	if len(lengthSet) == 0 {
		for k := range result.entries {
			lengthSet[len(k)] = struct{}{}
		}
	}
	for l := range lengthSet {
		result.lengths = append(result.lengths, l)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(result.lengths)))
	return result
}

func accumulateUntil(line string, lineScanner *bufio.Scanner) string {
	if strings.Contains(line, "]") {
		return line
	}
	for lineScanner.Scan() {
		next := strings.TrimSpace(lineScanner.Text())
		line += " " + next
		if strings.Contains(next, "]") {
			break
		}
	}
	return line
}

func extractHexTokens(line string) []string {
	var tokens []string
	for {
		start := strings.Index(line, "<")
		if start == -1 {
			break
		}
		end := strings.Index(line[start+1:], ">")
		if end == -1 {
			break
		}
		segment := line[start+1 : start+1+end]
		tokens = append(tokens, strings.ReplaceAll(segment, " ", ""))
		line = line[start+1+end+1:]
	}
	return tokens
}

func hexToBytes(hex string) []byte {
	if len(hex)%2 == 1 {
		hex += "0"
	}
	out := make([]byte, len(hex)/2)
	for i := 0; i < len(hex); i += 2 {
		out[i/2] = (fromHexChar(hex[i]) << 4) | fromHexChar(hex[i+1])
	}
	return out
}

func fromHexChar(c byte) byte {
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

func bytesToInt(b []byte) int {
	val := 0
	for _, by := range b {
		val = (val << 8) | int(by)
	}
	return val
}

func intToBytes(value int, length int) []byte {
	buf := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		buf[i] = byte(value & 0xFF)
		value >>= 8
	}
	return buf
}

// decode maps a show-string to Unicode, longest code length first.
// Unmapped bytes pass through as Latin-1 so text is never lost.
func (m *toUnicodeMap) decode(data []byte) string {
	if len(m.lengths) == 0 {
		return latin1String(data)
	}
	var out strings.Builder
	for len(data) > 0 {
		matched := false
		for _, l := range m.lengths {
			if len(data) < l {
				continue
			}
			key := string(data[:l])
			if val, ok := m.entries[key]; ok {
				out.WriteString(val)
				data = data[l:]
				matched = true
				break
			}
		}
		if !matched {
			out.WriteRune(rune(data[0]))
			data = data[1:]
		}
	}
	return out.String()
}

func decodeUTF16BE(data []byte) string {
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	if len(data) == 0 {
		return ""
	}
	buf := make([]uint16, len(data)/2)
	for i := 0; i < len(buf); i++ {
		buf[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return string(utf16.Decode(buf))
}

func latin1String(data []byte) string {
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}
