package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/signintech/gopdf"
)

// DejaVu locations on Alpine and Debian images.
var defaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

const fontFamily = "report"

// ExportPDF renders reports as an A4 table for district officials.
func (s *Service) ExportPDF(reports []Report) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	var fontErr error
	loaded := false
	for _, path := range s.cfg.FontPaths {
		if err := pdf.AddTTFFont(fontFamily, path); err != nil {
			fontErr = err
			continue
		}
		s.logger.Debug("pdf font loaded", "path", path)
		loaded = true
		break
	}
	if !loaded {
		return nil, fmt.Errorf("load pdf font from %v: %w", s.cfg.FontPaths, fontErr)
	}

	if err := pdf.SetFont(fontFamily, "", 18); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Suraksha Jal - Outbreak Reports")
	pdf.Br(26)

	if err := pdf.SetFont(fontFamily, "", 10); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Generated: "+s.now().Format("02 Jan 2006 15:04"))
	pdf.Br(20)

	columns := []struct {
		title string
		x     float64
	}{{"Date", 30}, {"Disease", 110}, {"Location", 230}, {"Cases", 420}, {"Source", 470}}
	row := func(values ...string) {
		y := pdf.GetY()
		for i, c := range columns {
			pdf.SetXY(c.x, y)
			pdf.Cell(nil, values[i])
		}
		pdf.Br(14)
		if pdf.GetY() > gopdf.PageSizeA4.H-40 {
			pdf.AddPage()
		}
	}

	if err := pdf.SetFont(fontFamily, "", 11); err != nil {
		return nil, err
	}
	row("Date", "Disease", "Location", "Cases", "Source")
	if err := pdf.SetFont(fontFamily, "", 10); err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		pdf.SetX(30)
		pdf.Cell(nil, "No reports.")
	}
	for _, r := range reports {
		location := r.Location
		if lines, err := pdf.SplitText(location, 180); err == nil && len(lines) > 0 {
			location = lines[0]
		}
		row(r.Date, r.Disease, location, fmt.Sprint(r.Cases), string(r.Source))
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func exportFileName(now time.Time) string {
	return fmt.Sprintf("outbreak_reports_%s.pdf", now.Format(time.DateOnly))
}
