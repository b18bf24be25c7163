package gitmsg

import "testing"

func TestParseHeaderRoundTrip(t *testing.T) {
	line := `--- GitMsg: ext="social"; type="post"; v="0.1.0"; ext-v="0.1.0" ---`

	h, ok := ParseHeader(line)
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if h.Ext != "social" || h.V != "0.1.0" || h.ExtV != "0.1.0" {
		t.Fatalf("unexpected header fields: %+v", h)
	}
	if h.Fields["type"] != "post" {
		t.Fatalf("expected type=post, got %q", h.Fields["type"])
	}

	if got := FormatHeader(h); got != line {
		t.Fatalf("round trip mismatch:\n got: %s\nwant: %s", got, line)
	}
}

func TestParseHeaderValueContainingSeparator(t *testing.T) {
	// The value pattern permits anything but '"', including the "; "
	// token separator itself.
	line := `--- GitMsg: ext="social"; note="one; two; three"; v="0.1.0"; ext-v="0.1.0" ---`

	h, ok := ParseHeader(line)
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if h.Fields["note"] != "one; two; three" {
		t.Fatalf("separator inside value mangled: %q", h.Fields["note"])
	}
	if got := FormatHeader(h); got != line {
		t.Fatalf("round trip mismatch:\n got: %s\nwant: %s", got, line)
	}
}

func TestParseRefValueContainingSeparator(t *testing.T) {
	section := `--- GitMsg-Ref: ext="social"; author="Smith; Alice"; email="a@x"; time="2025-10-21T12:00:00Z"; ref="#commit:abc123def456"; v="0.1.0"; ext-v="0.1.0" ---`

	r, ok := ParseRef(section)
	if !ok {
		t.Fatalf("expected ref to parse")
	}
	if r.Author != "Smith; Alice" {
		t.Fatalf("separator inside value mangled: %q", r.Author)
	}
	if got := FormatRef(r); got != section {
		t.Fatalf("round trip mismatch:\n got: %s\nwant: %s", got, section)
	}
}

func TestParseHeaderMissingFields(t *testing.T) {
	cases := []string{
		`--- GitMsg: type="post" ---`,           // missing ext/v/ext-v
		`--- GitMsg: ext="social"; v="0.1.0" ---`, // missing ext-v
		`not a header at all`,
	}
	for _, c := range cases {
		if _, ok := ParseHeader(c); ok {
			t.Fatalf("expected parse failure for %q", c)
		}
	}
}

func TestValidateRejectsUppercaseExtension(t *testing.T) {
	m := &Message{
		Content: "hi",
		Header:  &Header{Ext: "Invalid-Ext", V: "0.1.0", ExtV: "0.1.0", Fields: map[string]string{}},
	}
	if Validate(m) {
		t.Fatalf("expected validation failure for uppercase extension")
	}
}

func TestValidateRejectsShortCommitHash(t *testing.T) {
	m := &Message{
		Content: "hi",
		Header:  &Header{Ext: "social", V: "0.1.0", ExtV: "0.1.0", Fields: map[string]string{"type": "comment"}},
		Refs: []Ref{{
			Ext: "social", Ref: "#commit:abc", V: "0.1.0", ExtV: "0.1.0",
			Author: "Alice", Email: "a@x", Time: "2025-10-21T12:00:00Z",
			Fields: map[string]string{},
		}},
	}
	if Validate(m) {
		t.Fatalf("expected validation failure for short commit hash")
	}
}

func TestParseMessageWithReference(t *testing.T) {
	raw := "Nice point!\n\n" +
		`--- GitMsg: ext="social"; type="comment"; v="0.1.0"; ext-v="0.1.0" ---` +
		"\n\n" +
		`--- GitMsg-Ref: ext="social"; author="Alice"; email="a@x"; time="2025-10-21T12:00:00Z"; ref="#commit:abc123def456"; v="0.1.0"; ext-v="0.1.0" ---`

	m, ok := ParseMessage(raw)
	if !ok {
		t.Fatalf("expected message to parse")
	}
	if m.Content != "Nice point!" {
		t.Fatalf("unexpected content: %q", m.Content)
	}
	if len(m.Refs) != 1 {
		t.Fatalf("expected one reference, got %d", len(m.Refs))
	}
	if m.Refs[0].Ref != "#commit:abc123def456" {
		t.Fatalf("unexpected ref: %q", m.Refs[0].Ref)
	}
	if !Validate(m) {
		t.Fatalf("expected message to validate")
	}
	if DetectPostType(m) != PostTypeComment {
		t.Fatalf("expected comment post type, got %s", DetectPostType(m))
	}

	formatted := FormatMessage(m)
	reparsed, ok := ParseMessage(formatted)
	if !ok {
		t.Fatalf("expected reformatted message to reparse")
	}
	if reparsed.Content != m.Content || len(reparsed.Refs) != len(m.Refs) {
		t.Fatalf("round trip mismatch: %+v vs %+v", reparsed, m)
	}
}

func TestCleanContentStripsFraming(t *testing.T) {
	raw := "hello world\n\n" + `--- GitMsg: ext="social"; type="post"; v="0.1.0"; ext-v="0.1.0" ---`
	if got := CleanContent(raw); got != "hello world" {
		t.Fatalf("unexpected clean content: %q", got)
	}
}

func TestIsEmptyRepost(t *testing.T) {
	m := &Message{
		Content: "#commit:abc123def456",
		Header:  &Header{Ext: "social", V: "0.1.0", ExtV: "0.1.0", Fields: map[string]string{"type": "repost"}},
	}
	if !IsEmptyRepost(m) {
		t.Fatalf("expected empty repost detection")
	}

	m.Content = "#commit:abc123def456\nextra line"
	if IsEmptyRepost(m) {
		t.Fatalf("multi-line content should not count as empty repost")
	}
}

func TestDetectPostTypeDefaultsToPost(t *testing.T) {
	if DetectPostType(nil) != PostTypePost {
		t.Fatalf("expected nil message to be a post")
	}
	m := &Message{Header: &Header{Ext: "other", Fields: map[string]string{"type": "comment"}}}
	if DetectPostType(m) != PostTypePost {
		t.Fatalf("non-social extension should be a post")
	}
}
