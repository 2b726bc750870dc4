package srt

import (
	"encoding/binary"
	"strings"
)

// maxStreamIDLen is the wire limit on the serialized "#!::..." form.
const maxStreamIDLen = 728

// StreamID is the decoded form of the SID handshake extension: a resource
// path (vhost/app/stream) plus publish/request direction and an arbitrary
// set of query key/value pairs.
type StreamID struct {
	Vhost     string
	App       string
	Stream    string
	IsPublish bool
	Query     map[string]string
}

// ParseStreamID parses the "#!::key=value,..." textual form used by the SID
// extension. The h key carries vhost/app/stream separated by '/', r carries
// app/stream, m carries the publish/request direction, and any other
// single-or-multi-character key is stored verbatim in Query.
func ParseStreamID(s string) (*StreamID, error) {
	const prefix = "#!::"
	if !strings.HasPrefix(s, prefix) {
		return nil, newErr(ErrKindPacketFormat, "missing #!:: prefix")
	}
	s = s[len(prefix):]
	parts := strings.Split(s, ",")
	id := &StreamID{Query: map[string]string{}}
	for _, item := range parts {
		if item == "" {
			continue
		}
		kv := strings.SplitN(item, "=", 2)
		if len(kv) != 2 {
			return nil, newErr(ErrKindPacketFormat, "missing '=' in key/value pair")
		}
		key, value := kv[0], kv[1]
		if len(key) > 1 {
			id.Query[key] = value
			continue
		}
		switch key {
		case "h":
			segs := strings.SplitN(value, "/", 3)
			if len(segs) > 3 {
				return nil, newErr(ErrKindPacketFormat, "h= has too many path segments")
			}
			switch len(segs) {
			case 3:
				id.Vhost = segs[0]
				id.App = segs[1]
				id.Stream = segs[2]
			case 2:
				id.App = segs[0]
				id.Stream = segs[1]
			default:
				id.Vhost = segs[0]
			}
		case "r":
			segs := strings.SplitN(value, "/", 2)
			if len(segs) != 2 {
				return nil, newErr(ErrKindPacketFormat, "r= requires app/stream")
			}
			id.App, id.Stream = segs[0], segs[1]
		case "m":
			id.IsPublish = value == "publish"
		default:
			id.Query[key] = value
		}
	}
	return id, nil
}

// String serializes id back into the "#!::h=vhost/app/stream,m=publish,..."
// textual form.
func (id *StreamID) String() string {
	var b strings.Builder
	b.WriteString("#!::h=")
	if id.Vhost != "" {
		b.WriteString(id.Vhost)
		b.WriteByte('/')
	}
	if id.App == "" || id.Stream == "" {
		b.WriteString("live/stream")
	} else {
		b.WriteString(id.App)
		b.WriteByte('/')
		b.WriteString(id.Stream)
	}
	b.WriteString(",m=")
	if id.IsPublish {
		b.WriteString("publish")
	} else {
		b.WriteString("request")
	}
	for k, v := range id.Query {
		b.WriteByte(',')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	return b.String()
}

// decodeStreamIDWords decodes the SID extension value: UTF-8 text with every
// 4-byte word byte-swapped relative to native order, NUL-padded to a 4-byte
// boundary.
func decodeStreamIDWords(v []byte) (string, error) {
	if len(v)%4 != 0 {
		return "", newErr(ErrKindPacketFormat, "SID value not word-aligned")
	}
	out := make([]byte, len(v))
	for i := 0; i+4 <= len(v); i += 4 {
		binary.LittleEndian.PutUint32(out[i:i+4], binary.BigEndian.Uint32(v[i:i+4]))
	}
	return strings.TrimRight(string(out), "\x00"), nil
}

// encodeStreamIDWords is the inverse of decodeStreamIDWords.
func encodeStreamIDWords(s string) []byte {
	padded := len(s)
	if rem := padded % 4; rem != 0 {
		padded += 4 - rem
	}
	buf := make([]byte, padded)
	copy(buf, s)
	out := make([]byte, padded)
	for i := 0; i+4 <= padded; i += 4 {
		binary.BigEndian.PutUint32(out[i:i+4], binary.LittleEndian.Uint32(buf[i:i+4]))
	}
	return out
}

func appendSIDExt(dst []byte, sid string) []byte {
	if len(sid) > maxStreamIDLen {
		return dst // caller validates length before calling; defensive no-op
	}
	words := encodeStreamIDWords(sid)
	var hdr [4]byte
	binary.BigEndian.PutUint16(hdr[0:2], uint16(extSID))
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(words)/4))
	dst = append(dst, hdr[:]...)
	dst = append(dst, words...)
	return dst
}
