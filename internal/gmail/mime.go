package gmail

import (
	"encoding/base64"
	"html"
	"mime"
	"strings"

	xhtml "golang.org/x/net/html"
	gmailv1 "google.golang.org/api/gmail/v1"
)

const noContent = "(no content)"

// messageText renders the readable body of msg: text/plain, then HTML as
// text, then the snippet.
func messageText(msg *gmailv1.Message) string {
	if msg == nil {
		return noContent
	}
	plain, markup := bodyParts(msg.Payload)
	if plain != "" {
		return plain
	}
	if text := htmlToText(markup); text != "" {
		return text
	}
	if msg.Snippet != "" {
		return html.UnescapeString(msg.Snippet)
	}
	return noContent
}

// bodyParts returns the shallowest inline text/plain and text/html bodies.
// Parts with a filename are attachments and are ignored.
func bodyParts(root *gmailv1.MessagePart) (plain, markup string) {
	queue := []*gmailv1.MessagePart{root}
	for len(queue) > 0 && (plain == "" || markup == "") {
		p := queue[0]
		queue = queue[1:]
		if p == nil {
			continue
		}
		queue = append(queue, p.Parts...)
		if p.Filename != "" || p.Body == nil || p.Body.Data == "" {
			continue
		}
		mt, _, err := mime.ParseMediaType(p.MimeType)
		if err != nil {
			continue
		}
		switch {
		case mt == "text/plain" && plain == "":
			plain = decodeBase64URL(p.Body.Data)
		case mt == "text/html" && markup == "":
			markup = decodeBase64URL(p.Body.Data)
		}
	}
	return plain, markup
}

var (
	hiddenElems = map[string]bool{"head": true, "script": true, "style": true, "noscript": true, "template": true}
	blockElems  = map[string]bool{
		"br": true, "p": true, "div": true, "tr": true, "li": true, "table": true, "blockquote": true,
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	}
)

// htmlToText keeps visible text and breaks lines after block elements.
func htmlToText(markup string) string {
	if strings.TrimSpace(markup) == "" {
		return ""
	}
	doc, err := xhtml.Parse(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	var b strings.Builder
	var walk func(n *xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode && hiddenElems[n.Data] {
			return
		}
		if n.Type == xhtml.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == xhtml.ElementNode && blockElems[n.Data] {
			b.WriteByte('\n')
		}
	}
	walk(doc)
	return tidyLines(b.String())
}

// tidyLines collapses whitespace within lines and keeps at most one blank
// line between paragraphs.
func tidyLines(s string) string {
	var out []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// decodeBase64URL accepts padded and unpadded base64url.
func decodeBase64URL(data string) string {
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "=")); err == nil {
		return string(b)
	}
	return ""
}
