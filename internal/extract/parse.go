package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

var (
	numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	digitsPattern = regexp.MustCompile(`\d[\d,]*`)
)

// fields holds the outcome of every field group for one page.
type fields struct {
	title       Field[string]
	unitPrice   Field[string]
	price       Field[string]
	promo       Field[string]
	rating      Field[float64]
	reviews     Field[int]
	breadcrumbs Field[[]string]
	tags        Field[[]string]
	description Field[string]
	nutrition   Field[catalog.NutritionTable]
	image       Field[string]
}

func readFields(doc *goquery.Document, sel Selectors, pageURL string) (fields, []fault) {
	var faults []fault
	f := fields{
		title:       guard("title", &faults, func() Field[string] { return text(doc, sel.Title) }),
		unitPrice:   guard("unit_price", &faults, func() Field[string] { return text(doc, sel.UnitPrice) }),
		price:       guard("price", &faults, func() Field[string] { return text(doc, sel.Price) }),
		promo:       guard("promo_offer", &faults, func() Field[string] { return text(doc, sel.PromoOffer) }),
		rating:      guard("rating", &faults, func() Field[float64] { return rating(doc, sel.Rating) }),
		reviews:     guard("review_count", &faults, func() Field[int] { return reviewCount(doc, sel.ReviewCount) }),
		breadcrumbs: guard("breadcrumbs", &faults, func() Field[[]string] { return texts(doc, sel.Breadcrumbs) }),
		tags:        guard("tags", &faults, func() Field[[]string] { return texts(doc, sel.Tags) }),
		description: guard("description", &faults, func() Field[string] { return text(doc, sel.Description) }),
		nutrition: guard("nutrition", &faults, func() Field[catalog.NutritionTable] {
			return nutrition(doc, sel.Nutrition, sel.Annotations)
		}),
		image: guard("image", &faults, func() Field[string] { return image(doc, sel.Image, pageURL) }),
	}
	return f, faults
}

func (f fields) record(link catalog.ProductLink) catalog.ProductRecord {
	rec := catalog.ProductRecord{
		Title:       f.title.OrZero(),
		Description: f.description.OrZero(),
		Price:       f.price.OrZero(),
		UnitPrice:   f.unitPrice.OrZero(),
		PromoOffer:  f.promo.OrZero(),
		Breadcrumbs: f.breadcrumbs.OrZero(),
		Tags:        f.tags.OrZero(),
		Nutrition:   f.nutrition.OrZero(),
		ImageURL:    f.image.OrZero(),
		Link:        link,
	}
	if f.rating.OK {
		v := f.rating.Value
		rec.Rating = &v
	}
	if f.reviews.OK {
		v := f.reviews.Value
		rec.ReviewCount = &v
	}
	if rec.Nutrition == nil {
		rec.Nutrition = catalog.NutritionTable{}
	}
	return rec
}

// clean collapses runs of whitespace.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func text(doc *goquery.Document, selector string) Field[string] {
	s := doc.Find(selector).First()
	if s.Length() == 0 {
		return None[string]()
	}
	v := clean(s.Text())
	if v == "" {
		return None[string]()
	}
	return Some(v)
}

func texts(doc *goquery.Document, selector string) Field[[]string] {
	var out []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if v := clean(s.Text()); v != "" {
			out = append(out, v)
		}
	})
	if len(out) == 0 {
		return None[[]string]()
	}
	return Some(out)
}

func rating(doc *goquery.Document, selector string) Field[float64] {
	raw := text(doc, selector)
	if !raw.OK {
		return None[float64]()
	}
	m := numberPattern.FindString(raw.Value)
	if m == "" {
		return None[float64]()
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	if err != nil {
		return None[float64]()
	}
	return Some(v)
}

func reviewCount(doc *goquery.Document, selector string) Field[int] {
	raw := text(doc, selector)
	if !raw.OK {
		return None[int]()
	}
	m := digitsPattern.FindString(raw.Value)
	if m == "" {
		return None[int]()
	}
	v, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return None[int]()
	}
	return Some(v)
}

func image(doc *goquery.Document, selector, pageURL string) Field[string] {
	img := doc.Find(selector).First()
	src, ok := img.Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return None[string]()
	}
	if resolved, err := catalog.ResolveLink(pageURL, src); err == nil {
		return Some(string(resolved))
	}
	return Some(strings.TrimSpace(src))
}

// nutrition reads a table whose header row names the unit bases and whose
// body rows carry a nutrient label followed by one value per basis.
// A missing table yields an empty, present table.
func nutrition(doc *goquery.Document, selector string, annotations []string) Field[catalog.NutritionTable] {
	table := catalog.NutritionTable{}
	node := doc.Find(selector).First()
	if node.Length() == 0 {
		return Some(table)
	}

	rows := node.Find("tr")
	if rows.Length() == 0 {
		return Some(table)
	}
	header := node.Find("thead tr").First()
	body := node.Find("tbody tr")
	if header.Length() == 0 {
		header = rows.First()
		body = rows.Slice(1, goquery.ToEnd)
	}

	var bases []string
	header.Find("th, td").Each(func(i int, s *goquery.Selection) {
		if i > 0 {
			bases = append(bases, clean(s.Text()))
		}
	})

	body.Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		if cells.Length() < 2 {
			return
		}
		label := clean(cells.First().Text())
		if label == "" || isAnnotation(label, annotations) {
			return
		}
		values := map[string]string{}
		cells.Slice(1, goquery.ToEnd).Each(func(i int, cell *goquery.Selection) {
			v := clean(cell.Text())
			if v == "" {
				return
			}
			basis := "value"
			if i < len(bases) && bases[i] != "" {
				basis = bases[i]
			} else if i > 0 {
				basis = "value " + strconv.Itoa(i+1)
			}
			values[basis] = v
		})
		if len(values) > 0 {
			table[label] = values
		}
	})
	return Some(table)
}

func isAnnotation(label string, prefixes []string) bool {
	lower := strings.ToLower(label)
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
