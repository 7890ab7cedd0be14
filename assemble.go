package scraper

import (
	"bytes"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/docutag/animescraper/corpus"
	"github.com/docutag/animescraper/models"
	"github.com/docutag/animescraper/slug"
)

// DefaultFeatured is the size of the featured list when no home page filled it
const DefaultFeatured = 8

// Report summarises one assembly pass
type Report struct {
	Pages   int
	Applied map[corpus.Kind]int
	Skipped []string // Pages whose required marker was missing
	Ignored int      // Pages of an unknown kind
}

// Assembler builds a catalog from a set of pages
type Assembler struct {
	resolver        *slug.Resolver
	collector       *Collector
	featuredDefault int
}

// NewAssembler creates an Assembler. Nil arguments use the defaults.
func NewAssembler(resolver *slug.Resolver, collector *Collector, featuredDefault int) *Assembler {
	if resolver == nil {
		resolver = slug.NewResolver(nil)
	}
	if collector == nil {
		collector = NewCollector(nil, DefaultMaxStreams)
	}
	if featuredDefault <= 0 {
		featuredDefault = DefaultFeatured
	}
	return &Assembler{
		resolver:        resolver,
		collector:       collector,
		featuredDefault: featuredDefault,
	}
}

// Assemble runs every page through its classifier in key order and returns
// a fresh catalog. Pages that cannot be classified are skipped; the pass
// itself never fails.
func (a *Assembler) Assemble(pages []corpus.Page, seed []models.StreamSource) (*models.Catalog, Report) {
	ordered := slices.Clone(pages)
	slices.SortStableFunc(ordered, func(x, y corpus.Page) int {
		return strings.Compare(x.Key, y.Key)
	})

	b := newBuilder(a.resolver, a.collector, seed)
	report := Report{Pages: len(ordered), Applied: make(map[corpus.Kind]int)}

	for _, p := range ordered {
		classify, ok := classifiers[p.Kind]
		if !ok {
			report.Ignored++
			continue
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
		if err != nil || !classify(b, doc) {
			report.Skipped = append(report.Skipped, p.Name)
			continue
		}
		report.Applied[p.Kind]++
	}

	catalog := b.catalog
	if len(catalog.Featured) == 0 {
		order := catalog.AnimeSlugs()
		catalog.Featured = order[:min(len(order), a.featuredDefault)]
	}
	return catalog, report
}

// Assemble builds a catalog with the default alias table, stream hosts and limits
func Assemble(pages []corpus.Page, seed []models.StreamSource) *models.Catalog {
	catalog, _ := NewAssembler(nil, nil, 0).Assemble(pages, seed)
	return catalog
}
