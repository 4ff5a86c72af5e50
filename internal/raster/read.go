package raster

import (
	"bufio"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/image/tiff"
	"gopkg.in/yaml.v3"
)

// Sidecar holds metadata that neither ASCII grids nor plain TIFFs carry. It is
// read from "<raster path>.yaml" when present.
type Sidecar struct {
	CRS    CRS      `yaml:"crs"`
	NoData *float64 `yaml:"nodata"`
	Levels Levels   `yaml:"levels"`
}

// Open reads a raster file, choosing the decoder by extension.
func Open(path string) (*Grid, error) {
	sc, err := readSidecar(path + ".yaml")
	if err != nil {
		return nil, err
	}

	var g *Grid
	switch strings.ToLower(filepath.Ext(path)) {
	case ".asc", ".txt":
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, eris.Wrapf(openErr, "raster: open %s", path)
		}
		defer func() { _ = f.Close() }()
		g, err = ReadASCIIGrid(f)
	case ".tif", ".tiff":
		g, err = ReadTIFF(path)
	default:
		return nil, eris.Errorf("raster: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	if sc != nil {
		g.geom.CRS = sc.CRS
		if sc.NoData != nil {
			g.nodata, g.hasNoData = *sc.NoData, true
		}
		if len(sc.Levels) > 0 {
			g.levels = sc.Levels
		}
	}

	zap.L().Debug("raster: opened",
		zap.String("path", path),
		zap.Int("rows", g.geom.Rows),
		zap.Int("cols", g.geom.Cols),
		zap.String("crs", g.geom.CRS.Name),
	)
	return g, nil
}

func readSidecar(path string) (*Sidecar, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "raster: read sidecar %s", path)
	}
	var sc Sidecar
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, eris.Wrapf(err, "raster: parse sidecar %s", path)
	}
	return &sc, nil
}

// ReadASCIIGrid parses an ESRI ASCII grid.
func ReadASCIIGrid(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	sc.Split(bufio.ScanWords)

	header := make(map[string]float64)
	var first string
	for sc.Scan() {
		tok := sc.Text()
		key := strings.ToLower(tok)
		if _, err := strconv.ParseFloat(tok, 64); err == nil {
			first = tok
			break
		}
		if !sc.Scan() {
			return nil, eris.Errorf("raster: ascii header %q has no value", tok)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "raster: ascii header %q", tok)
		}
		header[key] = v
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "raster: scan ascii grid")
	}

	geom, err := asciiGeometry(header)
	if err != nil {
		return nil, err
	}

	n := geom.Rows * geom.Cols
	values := make([]float64, 0, n)
	if first != "" {
		v, _ := strconv.ParseFloat(first, 64)
		values = append(values, v)
	}
	for len(values) < n && sc.Scan() {
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "raster: ascii value %d", len(values))
		}
		values = append(values, v)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "raster: scan ascii values")
	}
	if len(values) != n {
		return nil, eris.Errorf("raster: ascii grid has %d values, want %d", len(values), n)
	}

	var opts []GridOption
	if nd, ok := header["nodata_value"]; ok {
		opts = append(opts, WithNoData(nd))
	}
	return NewGrid(geom, values, opts...)
}

func asciiGeometry(h map[string]float64) (Geometry, error) {
	for _, k := range []string{"ncols", "nrows"} {
		if _, ok := h[k]; !ok {
			return Geometry{}, eris.Errorf("raster: ascii header missing %s", k)
		}
	}
	g := Geometry{Cols: int(h["ncols"]), Rows: int(h["nrows"])}

	if cs, ok := h["cellsize"]; ok {
		g.CellWidth, g.CellHeight = cs, cs
	} else {
		dx, okx := h["dx"]
		dy, oky := h["dy"]
		if !okx || !oky {
			return Geometry{}, eris.New("raster: ascii header missing cellsize")
		}
		g.CellWidth, g.CellHeight = dx, dy
	}

	switch {
	case has(h, "xllcorner"):
		g.OriginX = h["xllcorner"]
	case has(h, "xllcenter"):
		g.OriginX = h["xllcenter"] - g.CellWidth/2
	default:
		return Geometry{}, eris.New("raster: ascii header missing xllcorner")
	}

	var yll float64
	switch {
	case has(h, "yllcorner"):
		yll = h["yllcorner"]
	case has(h, "yllcenter"):
		yll = h["yllcenter"] - g.CellHeight/2
	default:
		return Geometry{}, eris.New("raster: ascii header missing yllcorner")
	}
	g.OriginY = yll + float64(g.Rows)*g.CellHeight

	return g, g.Validate()
}

func has(h map[string]float64, k string) bool {
	_, ok := h[k]
	return ok
}

// ReadTIFF decodes single-band TIFF pixel data and georeferences it with the
// accompanying world file. Paletted images yield palette indexes, which is how
// categorical land-cover rasters are usually stored.
func ReadTIFF(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	defer func() { _ = f.Close() }()

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: decode tiff %s", path)
	}

	wf, err := findWorldFile(path)
	if err != nil {
		return nil, err
	}
	wfh, err := os.Open(wf)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open world file %s", wf)
	}
	defer func() { _ = wfh.Close() }()

	b := img.Bounds()
	geom, err := ReadWorldFile(wfh, b.Dy(), b.Dx())
	if err != nil {
		return nil, err
	}

	values, err := pixelValues(img)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: %s", path)
	}
	return NewGrid(geom, values)
}

func findWorldFile(path string) (string, error) {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, cand := range []string{base + ".tfw", base + ".tifw", base + ".wld", path + "w"} {
		if _, err := os.Stat(cand); err == nil {
			return cand, nil
		}
	}
	return "", eris.Errorf("raster: no world file found for %s", path)
}

// ReadWorldFile parses a six-line world file for a rows x cols image.
func ReadWorldFile(r io.Reader, rows, cols int) (Geometry, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	var p [6]float64
	for i := range p {
		if !sc.Scan() {
			return Geometry{}, eris.Errorf("raster: world file has %d of 6 parameters", i)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return Geometry{}, eris.Wrapf(err, "raster: world file parameter %d", i+1)
		}
		p[i] = v
	}
	if p[1] != 0 || p[2] != 0 {
		return Geometry{}, eris.New("raster: rotated world files are not supported")
	}
	g := Geometry{
		CellWidth:  p[0],
		CellHeight: math.Abs(p[3]),
		OriginX:    p[4] - p[0]/2,
		OriginY:    p[5] + math.Abs(p[3])/2,
		Rows:       rows,
		Cols:       cols,
	}
	return g, g.Validate()
}

func pixelValues(img image.Image) ([]float64, error) {
	b := img.Bounds()
	values := make([]float64, 0, b.Dx()*b.Dy())
	switch im := img.(type) {
	case *image.Gray:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				values = append(values, float64(im.GrayAt(x, y).Y))
			}
		}
	case *image.Gray16:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				values = append(values, float64(im.Gray16At(x, y).Y))
			}
		}
	case *image.Paletted:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				values = append(values, float64(im.ColorIndexAt(x, y)))
			}
		}
	default:
		return nil, eris.Errorf("unsupported pixel model %T", img)
	}
	return values, nil
}
