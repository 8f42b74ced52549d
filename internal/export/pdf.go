package export

import (
	"context"
	"fmt"
	"html"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const pdfTimeout = 30 * time.Second

// chromeBinaries are looked up in order; chromedp finds the same names.
var chromeBinaries = []string{"chromium-browser", "chromium", "google-chrome"}

// pdfHeader is repeated on every page of a project report.
func pdfHeader(data ReportData) string {
	status := strings.ReplaceAll(data.Status, "_", " ")
	return fmt.Sprintf(`<div style="font-size:8px;width:100%%;padding:0 0.75in;display:flex;justify-content:space-between;color:#555">`+
		`<span>%s</span><span>%s &middot; %d%% complete</span></div>`,
		html.EscapeString(data.Name), html.EscapeString(status), data.Progress)
}

func pdfFooter(data ReportData) string {
	return fmt.Sprintf(`<div style="font-size:8px;width:100%%;padding:0 0.75in;display:flex;justify-content:space-between;color:#555">`+
		`<span>Generated %s</span><span>Page <span class="pageNumber"></span> of <span class="totalPages"></span></span></div>`,
		data.GeneratedAt.Format("Jan 2, 2006 15:04 MST"))
}

// exportPDF prints report HTML with headless Chrome on A4 paper, with the
// project name and page numbers in the margins.
func exportPDF(parent context.Context, report string, data ReportData) (*Result, error) {
	found := false
	for _, bin := range chromeBinaries {
		if _, err := exec.LookPath(bin); err == nil {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
	}

	ctx, cancel := context.WithTimeout(parent, pdfTimeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var pdfData []byte
	err := chromedp.Run(taskCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, report).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.9).
				WithMarginBottom(0.9).
				WithMarginLeft(0.75).
				WithMarginRight(0.75).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(pdfHeader(data)).
				WithFooterTemplate(pdfFooter(data)).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome pdf generation failed: %w", err)
	}

	return &Result{
		Data:     pdfData,
		Filename: reportFilename(data, ".pdf"),
		MimeType: "application/pdf",
	}, nil
}

// reportFilename is the project name made filesystem safe plus the report
// date, e.g. Harbour-Tower-2026-05-01.pdf.
func reportFilename(data ReportData, ext string) string {
	name := sanitizeFilename(data.Name)
	if !data.GeneratedAt.IsZero() {
		name += "-" + data.GeneratedAt.Format("2006-01-02")
	}
	return name + ext
}

func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	result := b.String()
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "project-report"
	}
	return result
}
