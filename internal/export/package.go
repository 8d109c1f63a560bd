package export

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"

	"github.com/h2non/filetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// PDFPackager places a raster on a single A4 portrait page, scaled to the
// full page width and anchored at the top. A raster taller than A4 at that
// width lengthens the page instead of being cut off.
type PDFPackager struct{}

func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Package converts a PNG or JPEG raster into a PDF.
func (PDFPackager) Package(raster []byte) ([]byte, error) {
	if len(raster) == 0 {
		return nil, fmt.Errorf("empty raster")
	}
	if !filetype.Is(raster, "png") && !filetype.Is(raster, "jpg") {
		return nil, fmt.Errorf("raster is not a png or jpeg image")
	}
	size, _, err := image.DecodeConfig(bytes.NewReader(raster))
	if err != nil {
		return nil, fmt.Errorf("read raster size: %w", err)
	}
	if size.Width <= 0 || size.Height <= 0 {
		return nil, fmt.Errorf("raster has no pixels")
	}

	imp := pdfcpu.DefaultImportConfig()
	imp.PageDim = pageFor(size.Width, size.Height)
	imp.UserDim = true
	imp.Pos = types.TopCenter
	imp.Scale = 1

	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, []io.Reader{bytes.NewReader(raster)}, imp, newConfiguration()); err != nil {
		return nil, fmt.Errorf("import raster: %w", err)
	}
	return out.Bytes(), nil
}

// pageFor is A4 portrait, lengthened when a width-fitted raster would overflow it.
func pageFor(width, height int) *types.Dim {
	a4 := types.PaperSize["A4"]
	fitted := a4.Width * float64(height) / float64(width)
	return &types.Dim{Width: a4.Width, Height: math.Max(a4.Height, math.Ceil(fitted))}
}

// PageCount reports how many pages pdf has.
func PageCount(pdf []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(pdf), newConfiguration())
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}
