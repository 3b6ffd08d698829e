package parser

import (
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dtnitsch/manga-downloadr/models"
)

// ErrNoImage is returned when a page document has no usable image element.
var ErrNoImage = errors.New("page has no image element")

// Image is the labelled image element of a single page.
type Image struct {
	Alt string
	Src string
}

// Parser extracts chapter, page and image locators from source documents.
type Parser struct {
	sel models.Selectors
}

func New(sel models.Selectors) *Parser {
	defaults := models.DefaultSelectors()
	if sel.ChapterLinks == "" {
		sel.ChapterLinks = defaults.ChapterLinks
	}
	if sel.Title == "" {
		sel.Title = defaults.Title
	}
	if sel.PageOptions == "" {
		sel.PageOptions = defaults.PageOptions
	}
	if sel.Image == "" {
		sel.Image = defaults.Image
	}
	return &Parser{sel: sel}
}

// ChapterListing returns the chapter hrefs in document order and the title.
func (p *Parser) ChapterListing(doc *goquery.Document) ([]string, string) {
	var links []string
	doc.Find(p.sel.ChapterLinks).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		links = append(links, href)
	})

	title := strings.TrimSpace(doc.Find(p.sel.Title).First().Text())
	return links, title
}

// PageMenu returns the value of every option in the page selector.
func (p *Parser) PageMenu(doc *goquery.Document) []string {
	var pages []string
	doc.Find(p.sel.PageOptions).Each(func(_ int, s *goquery.Selection) {
		v, ok := s.Attr("value")
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			return
		}
		pages = append(pages, v)
	})
	return pages
}

// PageImage returns the first image element of a page document.
func (p *Parser) PageImage(doc *goquery.Document) (Image, error) {
	sel := doc.Find(p.sel.Image).First()
	if sel.Length() == 0 {
		return Image{}, ErrNoImage
	}
	src, ok := sel.Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return Image{}, ErrNoImage
	}
	alt, _ := sel.Attr("alt")
	return Image{Alt: alt, Src: strings.TrimSpace(src)}, nil
}
