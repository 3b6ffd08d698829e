package pipeline

import (
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/dtnitsch/manga-downloadr/models"
	"github.com/dtnitsch/manga-downloadr/pkg/fanout"
	"github.com/dtnitsch/manga-downloadr/pkg/fetcher"
	"github.com/dtnitsch/manga-downloadr/pkg/parser"
)

// fetchDoc resolves ref against base and fetches it under the global limiter.
func (p *Pipeline) fetchDoc(ctx context.Context, base, ref string) (*goquery.Document, string, error) {
	u, err := fetcher.Resolve(base, ref)
	if err != nil {
		return nil, "", tag(KindParse, err)
	}
	doc, err := fanout.Call(ctx, p.Limiter, func() (*goquery.Document, error) {
		return p.Fetcher.GetHtml(ctx, u)
	})
	if err != nil {
		return nil, u, tag(KindTransport, err)
	}
	return doc, u, nil
}

// discoverChapters reads the chapter listing and the title from the root page.
func (p *Pipeline) discoverChapters(ctx context.Context) (StageResult, error) {
	res := StageResult{Report: fanout.Report{Total: 1}}

	doc, _, err := p.fetchDoc(ctx, p.Job.RootURL, p.Job.RootURL)
	if err != nil {
		res.Report.Failed = 1
		res.Report.Failures = []fanout.Failure{{Key: p.Job.RootURL, Err: err}}
		return res, fmt.Errorf("failed to fetch chapter listing: %w", err)
	}

	links, title := p.Parser.ChapterListing(doc)
	chapters := make([]models.ChapterRef, 0, len(links))
	for i, link := range links {
		chapters = append(chapters, models.ChapterRef{Locator: link, Ordinal: i})
	}
	if len(chapters) == 0 {
		p.Logger.Warn("No chapters found on root page", "url", p.Job.RootURL)
	}

	p.Job.Chapters = chapters
	p.Job.Title = title
	res.Report.Succeeded = 1
	p.Logger.Info("Chapters discovered", "count", len(chapters), "title", title)
	return res, nil
}

// discoverPages fetches every chapter and records its page locators.
// A chapter that fails is left out of the page map.
func (p *Pipeline) discoverPages(ctx context.Context) (StageResult, error) {
	chapters := p.Job.Chapters
	outcomes, report := fanout.Map(ctx, chapters, p.Job.Concurrency, chapterKey,
		func(ctx context.Context, ch models.ChapterRef) ([]models.PageRef, error) {
			doc, _, err := p.fetchDoc(ctx, p.Job.RootURL, ch.Locator)
			if err != nil {
				return nil, err
			}
			values := p.Parser.PageMenu(doc)
			refs := make([]models.PageRef, 0, len(values))
			for _, v := range values {
				refs = append(refs, models.PageRef{Chapter: ch.Locator, Locator: v})
			}
			return refs, nil
		}, p.batch("page discovery"))

	pages := make(map[string][]models.PageRef, len(chapters))
	count := 0
	for i, o := range outcomes {
		if o.Err != nil {
			continue
		}
		pages[chapters[i].Locator] = o.Value
		count += len(o.Value)
	}
	p.Job.Pages = pages
	p.Job.PageCount = count

	p.Logger.Info("Pages discovered", "chapters", len(pages), "pages", count)
	return StageResult{Report: report}, nil
}

type chapterImages struct {
	records []models.ImageRecord
	report  fanout.Report
}

// discoverImages fetches every page of every chapter and extracts its image
// record. Chapters fan out, and each chapter fans out over its pages.
func (p *Pipeline) discoverImages(ctx context.Context) (StageResult, error) {
	chapters := p.pagedChapters()
	outcomes, outer := fanout.Map(ctx, chapters, p.Job.Concurrency, chapterKey,
		func(ctx context.Context, ch models.ChapterRef) (chapterImages, error) {
			pages := p.Job.Pages[ch.Locator]
			found, report := fanout.Map(ctx, pages, p.Job.Concurrency, pageKey,
				func(ctx context.Context, pg models.PageRef) (models.ImageRecord, error) {
					return p.imageRecord(ctx, pg)
				}, p.batch("image discovery"))

			records := make([]models.ImageRecord, 0, len(found))
			for _, o := range found {
				if o.Err == nil {
					records = append(records, o.Value)
				}
			}
			return chapterImages{records: records, report: report}, nil
		}, p.batch("image discovery"))

	var report fanout.Report
	for _, f := range outer.Failures {
		report.Merge(fanout.Report{Total: 1, Failed: 1, Failures: []fanout.Failure{f}})
	}
	images := make(map[string][]models.ImageRecord, len(chapters))
	for i, o := range outcomes {
		if o.Err != nil {
			continue
		}
		images[chapters[i].Locator] = o.Value.records
		report.Merge(o.Value.report)
	}
	p.Job.Images = images

	p.Logger.Info("Images discovered", "chapters", len(images), "images", p.Job.ImageCount())
	return StageResult{Report: report}, nil
}

func (p *Pipeline) imageRecord(ctx context.Context, pg models.PageRef) (models.ImageRecord, error) {
	doc, pageURL, err := p.fetchDoc(ctx, p.Job.RootURL, pg.Locator)
	if err != nil {
		return models.ImageRecord{}, err
	}
	img, err := p.Parser.PageImage(doc)
	if err != nil {
		return models.ImageRecord{}, tag(KindParse, fmt.Errorf("%s: %w", pageURL, err))
	}
	src, err := fetcher.Resolve(pageURL, img.Src)
	if err != nil {
		return models.ImageRecord{}, tag(KindParse, err)
	}
	img.Src = src
	rec, err := parser.ImageRecordFor(pg.Chapter, img)
	if err != nil {
		return models.ImageRecord{}, tag(KindParse, err)
	}
	return rec, nil
}

// pagedChapters returns the chapters that have a page list, in chapter order.
func (p *Pipeline) pagedChapters() []models.ChapterRef {
	var out []models.ChapterRef
	for _, ch := range p.Job.Chapters {
		if _, ok := p.Job.Pages[ch.Locator]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// imageChapters returns the chapters that have image records, in chapter order.
func (p *Pipeline) imageChapters() []models.ChapterRef {
	var out []models.ChapterRef
	for _, ch := range p.Job.Chapters {
		if _, ok := p.Job.Images[ch.Locator]; ok {
			out = append(out, ch)
		}
	}
	return out
}
