package config

import "price_crew/models"

// DefaultPageSelectors covers the common product page layout shared by the
// default marketplaces.
func DefaultPageSelectors() models.PageSelectors {
	return models.PageSelectors{
		Title: []string{"#productTitle", "#title span", "h1 span"},
		Price: []string{
			"#corePrice_feature_div .a-price .a-offscreen",
			"#corePriceDisplay_desktop_feature_div .a-price .a-offscreen",
			".a-price .a-offscreen",
			"#priceblock_ourprice",
			"#priceblock_dealprice",
		},
		Seller:      []string{"#sellerProfileTriggerId", "#merchant-info a", "#merchantInfoFeature_feature_div .offer-display-feature-text-message"},
		Image:       []string{"#landingImage", "#imgBlkFront", "#main-image"},
		ImageAttrs:  []string{"data-old-hires", "src"},
		Unavailable: []string{"currently unavailable", "no featured offers available", "غير متوفر حاليًا"},
	}
}

func applyPageDefaults(p *models.PageSelectors) {
	d := DefaultPageSelectors()
	if len(p.Title) == 0 {
		p.Title = d.Title
	}
	if len(p.Price) == 0 {
		p.Price = d.Price
	}
	if len(p.Seller) == 0 {
		p.Seller = d.Seller
	}
	if len(p.Image) == 0 {
		p.Image = d.Image
	}
	if len(p.ImageAttrs) == 0 {
		p.ImageAttrs = d.ImageAttrs
	}
	if len(p.Unavailable) == 0 {
		p.Unavailable = d.Unavailable
	}
}

// DefaultRegions is the static region list used when no region files exist.
func DefaultRegions() []models.Region {
	regions := []models.Region{
		{Code: "eg", Name: "Amazon Egypt", Currency: "EGP", URLTemplate: "https://www.amazon.eg/en/dp/{id}?language=en_AE"},
		{Code: "sa", Name: "Amazon Saudi Arabia", Currency: "SAR", URLTemplate: "https://www.amazon.sa/dp/{id}?language=en_AE"},
		{Code: "ae", Name: "Amazon UAE", Currency: "AED", URLTemplate: "https://www.amazon.ae/dp/{id}?language=en_AE"},
		{Code: "com", Name: "Amazon US", Currency: "USD", URLTemplate: "https://www.amazon.com/dp/{id}"},
		{Code: "de", Name: "Amazon Germany", Currency: "EUR", URLTemplate: "https://www.amazon.de/dp/{id}?language=en_GB"},
	}
	for i := range regions {
		regions[i].Worker = models.WorkerRef{
			Command: "regionworker",
			Args:    []string{"-region", regions[i].Code},
		}
		applyPageDefaults(&regions[i].Page)
	}
	return regions
}
