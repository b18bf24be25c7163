// Package gitmsg implements the GitMsg protocol codec: parsing and
// formatting the header line and reference sections embedded in
// commit messages, plus the validation and content-cleaning rules that
// make the codec total over arbitrary, possibly-foreign commit text.
package gitmsg

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

const (
	headerPrefix = "--- GitMsg: "
	headerSuffix = " ---"
	refPrefix    = "--- GitMsg-Ref: "
	refSuffix    = " ---"
)

var (
	extPattern     = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
	fieldPattern   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_:-]*$`)
	versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	refValuePattern = regexp.MustCompile(
		`^((https?://[^#\s]+|[^#\s]+)#(commit:[a-f0-9]{12}|branch:[A-Za-z0-9/_-]+)|#(commit:[a-f0-9]{12}|branch:[A-Za-z0-9/_-]+))$`,
	)

	tokenPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_:-]*)="([^"]*)"`)
)

// Header is the parsed `--- GitMsg: ... ---` line.
type Header struct {
	Ext    string
	V      string
	ExtV   string
	Fields map[string]string // extension fields, insertion order tracked separately
	order  []string
}

// Ref is a parsed `--- GitMsg-Ref: ... ---` section.
type Ref struct {
	Ext      string
	Ref      string
	V        string
	ExtV     string
	Author   string
	Email    string
	Time     string
	Fields   map[string]string
	Metadata string // empty string means absent
	order    []string
}

// Message is a fully parsed GitMsg envelope.
type Message struct {
	Content string
	Header  *Header
	Refs    []Ref
}

// PostType enumerates the four protocol-level kinds a message can
// represent.
type PostType string

const (
	PostTypePost    PostType = "post"
	PostTypeComment PostType = "comment"
	PostTypeRepost  PostType = "repost"
	PostTypeQuote   PostType = "quote"
)

// ParseHeader parses a single header line. It returns (nil, false) on
// any malformed input; the codec never errors, only signals absence.
func ParseHeader(line string) (*Header, bool) {
	line = strings.TrimRight(line, "\n")
	if !strings.HasPrefix(line, headerPrefix) || !strings.HasSuffix(line, headerSuffix) {
		return nil, false
	}
	body := line[len(headerPrefix) : len(line)-len(headerSuffix)]

	h := &Header{Fields: map[string]string{}}
	for _, kv := range parseTokens(body) {
		key, val := kv[0], kv[1]
		switch key {
		case "ext":
			h.Ext = val
		case "v":
			h.V = val
		case "ext-v":
			h.ExtV = val
		default:
			h.Fields[key] = val
			h.order = append(h.order, key)
		}
	}
	if h.Ext == "" || h.V == "" || h.ExtV == "" {
		return nil, false
	}
	return h, true
}

// NewHeader builds a Header with fields set in the given order,
// matching the writer order FormatHeader emits (ext, then extension
// fields in insertion order, then v, then ext-v). Callers outside this
// package have no other way to populate the unexported order slice.
func NewHeader(ext, v, extV string, fields ...[2]string) *Header {
	h := &Header{Ext: ext, V: v, ExtV: extV, Fields: map[string]string{}}
	for _, kv := range fields {
		h.Fields[kv[0]] = kv[1]
		h.order = append(h.order, kv[0])
	}
	return h
}

// FormatHeader renders h back to its canonical header line: ext first,
// then extension fields in insertion order, then v, then ext-v.
func FormatHeader(h *Header) string {
	var b strings.Builder
	b.WriteString(headerPrefix)
	tokens := []string{quoteField("ext", h.Ext)}
	for _, k := range h.order {
		tokens = append(tokens, quoteField(k, h.Fields[k]))
	}
	tokens = append(tokens, quoteField("v", h.V), quoteField("ext-v", h.ExtV))
	b.WriteString(strings.Join(tokens, "; "))
	b.WriteString(headerSuffix)
	return b.String()
}

// ParseRef parses a single GitMsg-Ref section (its header line plus any
// following metadata lines up to the next section or end of input).
func ParseRef(section string) (*Ref, bool) {
	lines := strings.Split(section, "\n")
	if len(lines) == 0 {
		return nil, false
	}
	first := strings.TrimRight(lines[0], "\r")
	if !strings.HasPrefix(first, refPrefix) || !strings.HasSuffix(first, refSuffix) {
		return nil, false
	}
	body := first[len(refPrefix) : len(first)-len(refSuffix)]

	r := &Ref{Fields: map[string]string{}}
	for _, kv := range parseTokens(body) {
		key, val := kv[0], kv[1]
		switch key {
		case "ext":
			r.Ext = val
		case "ref":
			r.Ref = val
		case "v":
			r.V = val
		case "ext-v":
			r.ExtV = val
		case "author":
			r.Author = val
		case "email":
			r.Email = val
		case "time":
			r.Time = val
		default:
			r.Fields[key] = val
			r.order = append(r.order, key)
		}
	}
	if r.Ext == "" || r.Ref == "" || r.V == "" || r.ExtV == "" || r.Author == "" || r.Email == "" || r.Time == "" {
		return nil, false
	}
	if len(lines) > 1 {
		r.Metadata = strings.TrimSpace(strings.Join(lines[1:], "\n"))
	}
	return r, true
}

// NewRef builds a Ref with extension fields set in writer order, the
// exported counterpart to NewHeader for the Reference grammar.
func NewRef(ext, ref, v, extV, author, email, t string, fields ...[2]string) *Ref {
	r := &Ref{Ext: ext, Ref: ref, V: v, ExtV: extV, Author: author, Email: email, Time: t, Fields: map[string]string{}}
	for _, kv := range fields {
		r.Fields[kv[0]] = kv[1]
		r.order = append(r.order, kv[0])
	}
	return r
}

// FormatRef renders r back to its canonical section: header line with
// writer order ext, author, email, time, extension fields, ref, v,
// ext-v, followed by the metadata body when present.
func FormatRef(r *Ref) string {
	tokens := []string{
		quoteField("ext", r.Ext),
		quoteField("author", r.Author),
		quoteField("email", r.Email),
		quoteField("time", r.Time),
	}
	for _, k := range r.order {
		tokens = append(tokens, quoteField(k, r.Fields[k]))
	}
	tokens = append(tokens, quoteField("ref", r.Ref), quoteField("v", r.V), quoteField("ext-v", r.ExtV))

	line := refPrefix + strings.Join(tokens, "; ") + refSuffix
	if r.Metadata == "" {
		return line
	}
	return line + "\n\n" + r.Metadata
}

// ParseMessage parses a full commit message into content, header and
// references. It returns (nil, false) when no header line is found.
func ParseMessage(s string) (*Message, bool) {
	idx := strings.Index(s, headerPrefix)
	if idx < 0 {
		return nil, false
	}
	headerEnd := strings.Index(s[idx:], "\n")
	var headerLine, tail string
	if headerEnd < 0 {
		headerLine = s[idx:]
		tail = ""
	} else {
		headerLine = s[idx : idx+headerEnd]
		tail = s[idx+headerEnd+1:]
	}

	header, ok := ParseHeader(headerLine)
	if !ok {
		return nil, false
	}

	content := strings.TrimSpace(s[:idx])

	var refs []Ref
	for _, section := range splitRefSections(tail) {
		if ref, ok := ParseRef(section); ok {
			refs = append(refs, *ref)
		}
	}

	return &Message{Content: content, Header: header, Refs: refs}, true
}

// FormatMessage renders m to its canonical wire form.
func FormatMessage(m *Message) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(m.Content))
	b.WriteString("\n\n")
	b.WriteString(FormatHeader(m.Header))
	for _, r := range m.Refs {
		b.WriteString("\n\n")
		b.WriteString(FormatRef(&r))
	}
	return b.String()
}

// Validate checks grammar-level validity: header ext/version patterns
// and, for every reference, its ext/ref/version patterns.
func Validate(m *Message) bool {
	if m == nil || m.Header == nil {
		return false
	}
	if !extPattern.MatchString(m.Header.Ext) {
		return false
	}
	if !validVersion(m.Header.V) || !validVersion(m.Header.ExtV) {
		return false
	}
	for k := range m.Header.Fields {
		if !fieldPattern.MatchString(k) {
			return false
		}
	}
	for _, r := range m.Refs {
		if !extPattern.MatchString(r.Ext) {
			return false
		}
		if !refValuePattern.MatchString(r.Ref) {
			return false
		}
		if !validVersion(r.V) || !validVersion(r.ExtV) {
			return false
		}
	}
	return true
}

// validVersion applies the protocol's N.N.N regex, then a secondary
// golang.org/x/mod/semver check. semver.IsValid only ever runs on
// strings that already passed the regex, so it can never reject
// something the regex accepted; x/mod/semver requires a "v" prefix, so
// it is fed "v"+s.
func validVersion(s string) bool {
	if !versionPattern.MatchString(s) {
		return false
	}
	return semver.IsValid("v" + s)
}

// CleanContent strips the header line and every reference section from
// a raw commit message, returning the trimmed remainder.
func CleanContent(raw string) string {
	idx := strings.Index(raw, headerPrefix)
	if idx < 0 {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(raw[:idx])
}

// DetectPostType derives the post type from an optionally-parsed
// message: absent, non-social, or unknown type fields all mean "post".
func DetectPostType(m *Message) PostType {
	if m == nil || m.Header == nil || m.Header.Ext != "social" {
		return PostTypePost
	}
	switch PostType(m.Header.Fields["type"]) {
	case PostTypeComment:
		return PostTypeComment
	case PostTypeRepost:
		return PostTypeRepost
	case PostTypeQuote:
		return PostTypeQuote
	default:
		return PostTypePost
	}
}

// IsEmptyRepost reports whether m is a bare repost: type is repost and
// content is a single line starting with "#".
func IsEmptyRepost(m *Message) bool {
	if m == nil || m.Header == nil {
		return false
	}
	if PostType(m.Header.Fields["type"]) != PostTypeRepost {
		return false
	}
	if strings.Contains(m.Content, "\n") {
		return false
	}
	return strings.HasPrefix(m.Content, "#")
}

func quoteField(key, value string) string {
	return key + `="` + value + `"`
}

// parseTokens extracts every key="value" token from a header or ref
// body, returning key/value pairs in order. Values may legally contain
// "; ", so the body cannot be split on the separator; the token
// pattern itself is the only reliable boundary (values never contain
// '"', so a quoted match is unambiguous).
func parseTokens(body string) [][2]string {
	var out [][2]string
	for _, m := range tokenPattern.FindAllStringSubmatch(body, -1) {
		out = append(out, [2]string{m[1], m[2]})
	}
	return out
}

// splitRefSections splits the tail of a message into individual
// GitMsg-Ref sections, each starting at a "--- GitMsg-Ref: " line and
// running until the next one or end of input.
func splitRefSections(tail string) []string {
	tail = strings.TrimSpace(tail)
	if tail == "" {
		return nil
	}
	var starts []int
	search := tail
	offset := 0
	for {
		idx := strings.Index(search, refPrefix)
		if idx < 0 {
			break
		}
		starts = append(starts, offset+idx)
		offset += idx + len(refPrefix)
		search = search[idx+len(refPrefix):]
	}
	if len(starts) == 0 {
		return nil
	}
	sort.Ints(starts)
	var sections []string
	for i, s := range starts {
		end := len(tail)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		sections = append(sections, strings.TrimSpace(tail[s:end]))
	}
	return sections
}
