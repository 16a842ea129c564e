package tee

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/openadeia/teesync/pkg/permit"
	"github.com/openadeia/teesync/pkg/whttp"
)

const SOURCE_SCRAPE = "scrape"

var permitCodeRe = regexp.MustCompile(`^\d{4}/\d+$|^\d{6,}$`)

// scrapeStrategy reads the rows the portal renders server side on its
// landing page.
type scrapeStrategy struct {
	c *Client
}

func (s *scrapeStrategy) Name() string { return SOURCE_SCRAPE }

func (s *scrapeStrategy) List(ctx context.Context, run *Run) ([]permit.RawRecord, error) {
	res, err := s.c.send(ctx, run, &whttp.WHTTPReq{
		URL:             s.c.cfg.PortalURL + LANDING_PATH,
		FollowRedirects: true,
		Headers:         []whttp.WHTTPHeader{{Name: "Accept", Value: "text/html,*/*"}},
	})
	if err != nil {
		return nil, err
	}
	if whttp.Host(res.FinalURL) == s.c.ssoHost() {
		return nil, fmt.Errorf("landing page sent the session back to the SSO")
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("landing page returned status %d", res.StatusCode)
	}
	return ParseRows(res.BodyString, SOURCE_SCRAPE), nil
}

// scrapedRow is the raw record produced from one table row. Its field names
// are among the normalizer's aliases.
type scrapedRow struct {
	PermitCode string   `json:"tee_permit_code"`
	Title      string   `json:"title,omitempty"`
	Status     string   `json:"tee_status,omitempty"`
	Cells      []string `json:"cells"`
}

// ParseRows extracts application rows from rendered portal HTML. A row
// qualifies when it has at least two non-empty cells and one of them looks
// like a permit code.
func ParseRows(body, source string) []permit.RawRecord {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var out []permit.RawRecord
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.ChildrenFiltered("td, th").Each(func(_ int, td *goquery.Selection) {
			text := strings.Join(strings.Fields(td.Text()), " ")
			if text != "" {
				cells = append(cells, text)
			}
		})
		if len(cells) < 2 {
			return
		}

		row := scrapedRow{Cells: cells}
		for _, cell := range cells {
			if permitCodeRe.MatchString(cell) {
				row.PermitCode = cell
				break
			}
		}
		if row.PermitCode == "" {
			return
		}
		for _, cell := range cells {
			if cell == row.PermitCode {
				continue
			}
			if permit.HasStatusKeyword(cell) {
				if row.Status == "" {
					row.Status = cell
				}
				continue
			}
			if len([]rune(cell)) > len([]rune(row.Title)) {
				row.Title = cell
			}
		}

		raw, err := json.Marshal(row)
		if err != nil {
			return
		}
		out = append(out, permit.RawRecord{Source: source, Body: string(raw)})
	})
	return out
}
