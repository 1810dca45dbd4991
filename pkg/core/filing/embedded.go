package filing

import (
	"bytes"
	"encoding/base64"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNotEmbedded is returned when a body holds neither a uuencoded nor a base64 block.
var ErrNotEmbedded = eris.New("filing: no embedded binary block")

// DecodeEmbedded decodes the binary payload of a document body. The archive
// stores binaries uuencoded ("begin 644 name" ... "end"); base64 blocks are
// accepted as well. name is empty for base64 blocks.
func DecodeEmbedded(body []byte) (string, []byte, error) {
	block := bytes.TrimLeft(body, " \t\r\n")
	switch {
	case bytes.HasPrefix(block, []byte("begin ")):
		name, data, err := decodeUU(block, -1)
		if err != nil {
			return "", nil, eris.Wrap(err, "filing: uudecode")
		}
		return name, data, nil
	case isBase64Line(firstLine(block)):
		data, err := decodeBase64(block, -1)
		if err != nil {
			return "", nil, eris.Wrap(err, "filing: base64 decode")
		}
		return "", data, nil
	}
	return "", nil, ErrNotEmbedded
}

// decodeHead decodes at most limit bytes of an embedded block, or returns nil.
func decodeHead(body []byte, limit int) []byte {
	block := bytes.TrimLeft(body, " \t\r\n")
	switch {
	case bytes.HasPrefix(block, []byte("begin ")):
		_, data, _ := decodeUU(block, limit)
		return data
	case isBase64Line(firstLine(block)):
		data, _ := decodeBase64(block, limit)
		return data
	}
	return nil
}

func firstLine(b []byte) []byte {
	if nl := bytes.IndexByte(b, '\n'); nl >= 0 {
		return bytes.TrimRight(b[:nl], "\r")
	}
	return b
}

func decodeUU(block []byte, limit int) (string, []byte, error) {
	lines := bytes.Split(block, []byte("\n"))
	fields := strings.Fields(string(bytes.TrimSpace(lines[0])))
	if len(fields) < 2 || fields[0] != "begin" {
		return "", nil, eris.New("missing begin line")
	}
	name := ""
	if len(fields) >= 3 {
		name = strings.Join(fields[2:], " ")
	}

	var out []byte
	sawEnd := false
	for _, line := range lines[1:] {
		line = bytes.TrimRight(line, "\r")
		if bytes.Equal(bytes.TrimSpace(line), []byte("end")) {
			sawEnd = true
			break
		}
		if len(line) == 0 {
			continue
		}
		n := int(line[0]-' ') & 0x3f
		if n == 0 {
			continue
		}
		out = append(out, uuLine(line[1:], n)...)
		if limit > 0 && len(out) >= limit {
			return name, out[:limit], nil
		}
	}
	if !sawEnd && limit < 0 {
		return name, out, eris.New("missing end line")
	}
	return name, out, nil
}

func uuLine(enc []byte, n int) []byte {
	out := make([]byte, 0, n+2)
	char := func(i int) byte {
		if i >= len(enc) {
			return 0
		}
		return (enc[i] - ' ') & 0x3f
	}
	for i := 0; len(out) < n; i += 4 {
		a, b, c, d := char(i), char(i+1), char(i+2), char(i+3)
		out = append(out, a<<2|b>>4, b<<4|c>>2, c<<6|d)
	}
	return out[:n]
}

func isBase64Line(line []byte) bool {
	line = bytes.TrimSpace(line)
	return len(line) >= 16 && isBase64Chars(line)
}

func isBase64Chars(line []byte) bool {
	for _, c := range line {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '+', c == '/', c == '=':
		default:
			return false
		}
	}
	return true
}

func decodeBase64(block []byte, limit int) ([]byte, error) {
	var sb strings.Builder
	for _, line := range bytes.Split(block, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if !isBase64Chars(line) {
			break
		}
		sb.Write(line)
		if limit > 0 && sb.Len() >= limit/3*4+4 {
			break
		}
	}
	enc := sb.String()
	if limit > 0 {
		enc = enc[:len(enc)/4*4]
		data, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, err
		}
		if len(data) > limit {
			data = data[:limit]
		}
		return data, nil
	}
	data, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return base64.RawStdEncoding.DecodeString(strings.TrimRight(enc, "="))
	}
	return data, nil
}
