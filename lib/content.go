package lib

import (
	"fmt"
	"os"
	"path/filepath"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/k3a/html2text"
)

// BodyMarkdown converts the post's HTML body to Markdown with the title as
// a heading.
func (p *PostRecord) BodyMarkdown() (string, error) {
	converter := md.NewConverter("", true, nil)
	body, err := converter.ConvertString(p.Content)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("# %s\n\n%s", p.Title, body), nil
}

// BodyText converts the post's HTML body to plain text with the title on top.
func (p *PostRecord) BodyText() string {
	return p.Title + "\n\n" + html2text.HTML2Text(p.Content)
}

// BodyHTML returns the post's HTML body with a title header.
func (p *PostRecord) BodyHTML() string {
	return fmt.Sprintf("<h1>%s</h1>\n\n%s", p.Title, p.Content)
}

// WriteBody materializes the post's body into dir as post.<format>, where
// format is one of "md", "txt", or "html". Posts without body content write
// nothing.
func (p *PostRecord) WriteBody(dir string, format string) error {
	if p.Content == "" {
		return nil
	}
	var content string
	switch format {
	case "md":
		var err error
		content, err = p.BodyMarkdown()
		if err != nil {
			return err
		}
	case "txt":
		content = p.BodyText()
	case "html":
		content = p.BodyHTML()
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "post."+format), []byte(content), 0644)
}
