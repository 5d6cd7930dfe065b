package extract

import "time"

// Selectors locates each field group on a product page.
type Selectors struct {
	Title        string   `mapstructure:"title"`
	UnitPrice    string   `mapstructure:"unit_price"`
	Price        string   `mapstructure:"price"`
	PromoOffer   string   `mapstructure:"promo_offer"`
	Rating       string   `mapstructure:"rating"`
	ReviewCount  string   `mapstructure:"review_count"`
	Breadcrumbs  string   `mapstructure:"breadcrumbs"`
	Tags         string   `mapstructure:"tags"`
	Description  string   `mapstructure:"description"`
	Nutrition    string   `mapstructure:"nutrition"`
	Image        string   `mapstructure:"image"`
	Annotations  []string `mapstructure:"annotation_prefixes"`
	WaitSelector string   `mapstructure:"wait_selector"`
}

// DefaultSelectors returns selectors for the reference product page layout.
func DefaultSelectors() Selectors {
	return Selectors{
		Title:        "section[name=title] h1",
		UnitPrice:    "section[name=title] p",
		Price:        "section[name=purchase] p.price",
		PromoOffer:   "section[name=promotions] .offer-text",
		Rating:       "section[name=reviews] .rating-score",
		ReviewCount:  "section[name=reviews] .review-count",
		Breadcrumbs:  "nav[aria-label=breadcrumb] li",
		Tags:         "ul.product-tags li",
		Description:  "#accordion-panel-product-description",
		Nutrition:    "#accordion-panel-nutritional-information table",
		Image:        "section[name=image] img",
		Annotations:  []string{"*", "reference intake", "ri "},
		WaitSelector: "section[name=title] h1",
	}
}

// merge fills empty selectors from defaults.
func (s Selectors) merge(defaults Selectors) Selectors {
	pick := func(v, d string) string {
		if v == "" {
			return d
		}
		return v
	}
	s.Title = pick(s.Title, defaults.Title)
	s.UnitPrice = pick(s.UnitPrice, defaults.UnitPrice)
	s.Price = pick(s.Price, defaults.Price)
	s.PromoOffer = pick(s.PromoOffer, defaults.PromoOffer)
	s.Rating = pick(s.Rating, defaults.Rating)
	s.ReviewCount = pick(s.ReviewCount, defaults.ReviewCount)
	s.Breadcrumbs = pick(s.Breadcrumbs, defaults.Breadcrumbs)
	s.Tags = pick(s.Tags, defaults.Tags)
	s.Description = pick(s.Description, defaults.Description)
	s.Nutrition = pick(s.Nutrition, defaults.Nutrition)
	s.Image = pick(s.Image, defaults.Image)
	s.WaitSelector = pick(s.WaitSelector, defaults.WaitSelector)
	if len(s.Annotations) == 0 {
		s.Annotations = defaults.Annotations
	}
	return s
}

// Config controls the extractor.
type Config struct {
	Selectors   Selectors
	WaitTimeout time.Duration
}
