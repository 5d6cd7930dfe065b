package crawler

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

// pageCount returns the largest integer label in the pagination control.
// It returns 0 when the control is absent and catalog.ErrPageCount when the
// control exists but carries no readable page number.
func pageCount(doc *goquery.Document, selector string) (int, error) {
	items := doc.Find(selector)
	if items.Length() == 0 {
		return 0, nil
	}
	highest := 0
	items.Each(func(_ int, s *goquery.Selection) {
		n, err := strconv.Atoi(strings.TrimSpace(s.Text()))
		if err == nil && n > highest {
			highest = n
		}
	})
	if highest == 0 {
		return 0, fmt.Errorf("%w: %d pagination items without a page number", catalog.ErrPageCount, items.Length())
	}
	return highest, nil
}

// productLinks returns the normalized product links on a listing page in DOM order.
// Cards with a missing or unparseable href are skipped.
func productLinks(doc *goquery.Document, selector, pageURL string) []catalog.ProductLink {
	var links []catalog.ProductLink
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		link, err := catalog.ResolveLink(pageURL, href)
		if err != nil {
			return
		}
		links = append(links, link)
	})
	return links
}

func parseDocument(html []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	return doc, nil
}
