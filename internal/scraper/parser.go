package scraper

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Namespace constraints for article links on listing pages.
const (
	articlePathPrefix = "/informacion/"
	articlePathSuffix = ".html"
)

var (
	articleIDPattern = regexp.MustCompile(`-(\d+)\.html$`)
	locationDate     = regexp.MustCompile(`(\d{2})/(\d{2})/(\d{4})`)
	blankRuns        = regexp.MustCompile(`\n\s*\n+`)

	// The gallery lives in an inline lightbox script: an array literal
	// of {URL: "...", caption: "..."} objects. This is a narrow
	// micro-parser for that one shape, not a script parser.
	galleryArray = regexp.MustCompile(`\$\.iLightBox\(\s*\[([^\]]+)\]`)
	galleryEntry = regexp.MustCompile(`\{\s*URL:\s*"([^"]+)"\s*,\s*caption:\s*"([^"]+)"\s*\}`)
)

// PageParser turns raw page text into article references or articles.
// A missing field is a valid extraction result, never an error.
type PageParser struct {
	baseURL string
}

// NewPageParser builds a parser that resolves relative links against
// baseURL.
func NewPageParser(baseURL string) *PageParser {
	return &PageParser{baseURL: strings.TrimRight(baseURL, "/")}
}

// ParseListing extracts article references from an archive listing
// page. A missing listing container or a day with no qualifying links
// yields an empty result, not an error.
func (p *PageParser) ParseListing(pageText string) ([]ArticleRef, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageText))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}

	container := doc.Find("div.contenido").First()
	if container.Length() == 0 {
		return nil, nil
	}

	var refs []ArticleRef
	container.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !strings.HasPrefix(href, articlePathPrefix) || !strings.HasSuffix(href, articlePathSuffix) {
			return
		}
		refs = append(refs, ArticleRef{
			URL:      p.baseURL + href,
			Position: len(refs),
		})
	})
	return refs, nil
}

// ParseDetail extracts a structured article from a detail page. Fields
// that cannot be located are left absent.
func (p *PageParser) ParseDetail(pageText, sourceURL string) (*Article, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageText))
	if err != nil {
		return nil, fmt.Errorf("parse article html: %w", err)
	}

	article := &Article{
		URL:       sourceURL,
		ScrapedAt: time.Now().UTC(),
	}

	if m := articleIDPattern.FindStringSubmatch(sourceURL); m != nil {
		article.ArticleID = &m[1]
	}

	p.parseHeader(doc, article)
	p.parseBody(doc, article)

	article.Images = p.parseGallery(doc)
	if len(article.Images) == 0 {
		article.Images = p.parseFallbackImage(doc)
	}

	if content, ok := doc.Find(`meta[name="keywords"]`).Attr("content"); ok {
		article.Keywords = splitKeywords(content)
	}

	return article, nil
}

func (p *PageParser) parseHeader(doc *goquery.Document, article *Article) {
	header := doc.Find("div#areasuperiorColumna").First()
	if header.Length() == 0 {
		return
	}

	if sec := header.Find("p#seccion").First(); sec.Length() > 0 {
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(sec.Text()), "Sección:"))
		if text != "" {
			article.Section = &text
		}
	}
	if h1 := header.Find("h1").First(); h1.Length() > 0 {
		title := html.UnescapeString(strings.TrimSpace(h1.Text()))
		if title != "" {
			article.Title = &title
		}
	}
	if h2 := header.Find("h2").First(); h2.Length() > 0 {
		subtitle := html.UnescapeString(strings.TrimSpace(h2.Text()))
		if subtitle != "" {
			article.Subtitle = &subtitle
		}
	}

	h3 := header.Find("h3").First()
	if h3.Length() == 0 {
		return
	}
	lugar := h3.Find("span#lugar").First()
	if lugar.Length() == 0 {
		return
	}
	lugarText := strings.TrimSpace(lugar.Text())
	if lugarText != "" {
		article.Location = &lugarText
		if m := locationDate.FindStringSubmatch(lugarText); m != nil {
			// DD/MM/YYYY embedded in free text, stored as YYYY-MM-DD.
			iso := fmt.Sprintf("%s-%s-%s", m[3], m[2], m[1])
			article.Date = &iso
		}
	}
	if source := strings.TrimSpace(strings.Replace(h3.Text(), lugarText, "", 1)); source != "" {
		article.Source = &source
	}
}

func (p *PageParser) parseBody(doc *goquery.Document, article *Article) {
	body := doc.Find("div.cuerponota").First()
	if body.Length() == 0 {
		return
	}

	body.Find("ins, script").Remove()

	if markup, err := goquery.OuterHtml(body); err == nil {
		article.BodyHTML = &markup
	}

	var b strings.Builder
	flattenText(body, &b)
	text := html.UnescapeString(NormalizeBody(b.String()))
	if text != "" {
		article.Body = &text
	}
}

// flattenText walks the selection emitting text nodes with a newline at
// each element boundary, approximating paragraph-level line breaks.
func flattenText(sel *goquery.Selection, b *strings.Builder) {
	sel.Contents().Each(func(_ int, child *goquery.Selection) {
		switch goquery.NodeName(child) {
		case "#text":
			b.WriteString(child.Text())
		case "br":
			b.WriteString("\n")
		case "#comment":
		default:
			flattenText(child, b)
			b.WriteString("\n")
		}
	})
}

// NormalizeBody trims per-line whitespace and collapses runs of blank
// lines to a single blank line. The transform is idempotent.
func NormalizeBody(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	collapsed := blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(collapsed)
}

func (p *PageParser) parseGallery(doc *goquery.Document) []Image {
	var images []Image
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		text := sel.Text()
		if !strings.Contains(text, "$.iLightBox") {
			return
		}
		m := galleryArray.FindStringSubmatch(text)
		if m == nil {
			return
		}
		for _, entry := range galleryEntry.FindAllStringSubmatch(m[1], -1) {
			images = append(images, Image{
				URL:     p.baseURL + entry[1],
				Caption: html.UnescapeString(entry[2]),
			})
		}
	})
	return images
}

// parseFallbackImage promotes the gallery anchor's thumbnail to its
// full-resolution path when no lightbox gallery script is present.
func (p *PageParser) parseFallbackImage(doc *goquery.Document) []Image {
	src, ok := doc.Find("a#galerianotas img").First().Attr("src")
	if !ok || src == "" {
		return nil
	}
	full := strings.Replace(src, "/previas/", "/originales/", 1)
	return []Image{{URL: p.baseURL + full}}
}

func splitKeywords(content string) []string {
	var keywords []string
	for _, k := range strings.Split(content, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	return keywords
}
