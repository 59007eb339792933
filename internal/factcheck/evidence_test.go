package factcheck

import (
	"testing"

	"github.com/veracity-social/veracity/internal/model"
)

func TestDomainTrust_Quality(t *testing.T) {
	d := NewDomainTrust([]string{"example-journal.com"}, []string{"badsite.net"})

	cases := []struct {
		name string
		url  string
		want float64
	}{
		{"trusted default", "https://www.who.int/news/item/123", 0.95},
		{"trusted configured", "https://example-journal.com/article", 0.95},
		{"trusted subdomain", "https://data.cdc.gov/dataset", 0.95},
		{"gov tld", "https://city.example.gov/report", 0.85},
		{"edu tld", "https://physics.mit.edu/paper", 0.85},
		{"ac.uk tld", "https://www.ox.ac.uk/study", 0.85},
		{"org tld", "https://www.wikipedia.org/wiki/Topic", 0.7},
		{"unknown domain", "https://randomblog.com/post", 0.45},
		{"no url", "", 0.4},
		{"unparseable", "::not a url::", 0.4},
		{"blocked default", "https://infowars.com/story", 0},
		{"blocked configured", "https://badsite.net/page", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := d.Quality(tc.url); got != tc.want {
				t.Errorf("Quality(%q) = %v, want %v", tc.url, got, tc.want)
			}
		})
	}
}

func TestDomainTrust_RescoreOverridesSelfReport(t *testing.T) {
	d := NewDomainTrust(nil, nil)

	evidence := []model.Evidence{
		{Source: "WHO", URL: "https://who.int/x", Quality: 0.1},
		{Source: "Some blog", URL: "https://blog.example.com/y", Quality: 0.99},
		{Source: "Claimed expertise", Quality: 1.0},
	}
	rescored := d.Rescore(evidence)

	if rescored[0].Quality != 0.95 {
		t.Errorf("Trusted source should rescore to 0.95, got %v", rescored[0].Quality)
	}
	if rescored[1].Quality != 0.45 {
		t.Errorf("Unknown source should rescore to 0.45, got %v", rescored[1].Quality)
	}
	if rescored[2].Quality != 0.4 {
		t.Errorf("URL-less evidence should rescore to 0.4, got %v", rescored[2].Quality)
	}
}
