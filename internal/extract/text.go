package extract

import (
	"strings"

	"golang.org/x/net/html"
)

const minSentenceLen = 8

// StripMarkup extracts visible text from content that may contain HTML,
// skipping script/style blocks. Plain text passes through unchanged.
func StripMarkup(content string) string {
	if !strings.ContainsAny(content, "<>") {
		return content
	}

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return content
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(buf.String())
}

// SplitSentences splits text into sentences, keeping only those long enough
// to carry a claim.
func SplitSentences(text string) []string {
	text = strings.ReplaceAll(text, "\n", " ")

	var sentences []string
	var current strings.Builder

	flush := func() {
		sentence := strings.TrimSpace(current.String())
		if len(sentence) >= minSentenceLen {
			sentences = append(sentences, sentence)
		}
		current.Reset()
	}

	for i, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			// Look ahead to avoid splitting on abbreviations mid-token.
			if i+1 >= len(text) || text[i+1] == ' ' || text[i+1] == '\t' {
				flush()
			}
		}
	}
	flush()

	return sentences
}
