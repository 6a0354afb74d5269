package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/cheggaaa/pb"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mapweave/mapweave/pkg/geo"
	"github.com/mapweave/mapweave/pkg/weaver"
)

var weaveFlags struct {
	layer     string
	matrixSet string
	format    string
	style     string
	bbox      []float64
	bboxCrs   string
	targetCrs string
	gpkgOut   string
	gpkgZoom  int
}

// weaveCmd is the end-to-end flow: capabilities -> choices -> plan ->
// download -> mosaic -> reproject -> optional GeoPackage.
var weaveCmd = &cobra.Command{
	Use:   "weave <capabilities-url>",
	Short: "Download a viewport from a WMS/WMTS service into one GeoTIFF.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := newConfig()
		if err != nil {
			return err
		}
		w := weaver.New(config.TempDir, config.proxy(), logger)

		xml, err := w.Fetch(args[0])
		if err != nil {
			return err
		}
		if _, err := w.Parse(xml); err != nil {
			return err
		}

		layerTitle, err := chooseLayer(w)
		if err != nil {
			return err
		}
		matrixSet, err := chooseFrom(w.ListTileMatrixSets(layerTitle), weaveFlags.matrixSet, "tile matrix set", w.IsWmtsLayer(layerTitle))
		if err != nil {
			return err
		}
		format, err := chooseFrom(w.ListFormats(layerTitle), weaveFlags.format, "format", false)
		if err != nil {
			return err
		}
		if format == "" {
			logger.Warn().Msg("service lists no formats; defaulting to image/png")
			format = "image/png"
		}
		style, err := chooseFrom(w.ListStyles(layerTitle), weaveFlags.style, "style", false)
		if err != nil {
			return err
		}

		if len(weaveFlags.bbox) != 4 {
			return errors.Errorf("--bbox needs 4 values, got %d", len(weaveFlags.bbox))
		}
		viewport := geo.NewBoundingBox(weaveFlags.bboxCrs,
			weaveFlags.bbox[0], weaveFlags.bbox[1], weaveFlags.bbox[2], weaveFlags.bbox[3])

		req := weaver.PlanRequest{
			LayerTitle:        layerTitle,
			TileMatrixSetName: matrixSet,
			Format:            format,
			Style:             style,
			Viewport:          viewport,
			TargetCrsID:       weaveFlags.targetCrs,
		}
		plan, err := w.Plan(req)
		if err != nil {
			return err
		}
		logger.Info().Int("tiles", len(plan)).Str("layer", layerTitle).Msg("plan computed")

		bar := pb.StartNew(len(plan))
		result, err := w.Execute(plan, req, weaver.ExecuteOptions{
			TargetCrsID: weaveFlags.targetCrs,
			Concurrency: config.Concurrency,
			OnTileDone:  func() { bar.Increment() },
		})
		bar.Finish()
		if err != nil {
			return err
		}
		if result.TileErrors != nil {
			fmt.Fprintln(os.Stderr, result.TileErrors)
		}
		fmt.Printf("mosaic written to %s\n", result.MosaicPath)

		if weaveFlags.gpkgOut != "" {
			zoom := weaveFlags.gpkgZoom
			if zoom < 0 {
				zoom = plan[0].Level
			}
			if err := w.WriteGeoPackage(result.MosaicPath, weaveFlags.gpkgOut, zoom); err != nil {
				return err
			}
			fmt.Printf("geopackage written to %s\n", weaveFlags.gpkgOut)
		}
		return nil
	},
}

// chooseLayer drills down the layer tree: unique options pick themselves,
// anything else prompts.
func chooseLayer(w *weaver.Weaver) (string, error) {
	if weaveFlags.layer != "" {
		return weaveFlags.layer, nil
	}
	titles := w.ListRootLayers()
	if len(titles) == 0 {
		return "", errors.New("service lists no layers")
	}
	var layerTitle string
	for len(titles) > 0 {
		choice, err := chooseFrom(titles, "", "layer", true)
		if err != nil {
			return "", err
		}
		layerTitle = choice
		titles = w.ListChildLayers(layerTitle)
	}
	return layerTitle, nil
}

// chooseFrom picks from options: a flag value wins, a single option is
// auto-picked, several prompt on stdin. With required unset an empty list
// is fine and picks "".
func chooseFrom(options []string, flagValue, what string, required bool) (string, error) {
	if flagValue != "" {
		for _, o := range options {
			if o == flagValue {
				return flagValue, nil
			}
		}
		return "", errors.Errorf("%s %q is not offered by the service", what, flagValue)
	}
	if len(options) == 0 {
		if required {
			return "", errors.Errorf("service offers no %s", what)
		}
		return "", nil
	}
	if len(options) == 1 {
		fmt.Printf("using the only %s: %s\n", what, options[0])
		return options[0], nil
	}

	fmt.Printf("available %ss:\n", what)
	for _, o := range options {
		fmt.Printf("  %s\n", o)
	}
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("choose a %s: ", what)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		line = strings.TrimSpace(line)
		for _, o := range options {
			if o == line {
				return o, nil
			}
		}
		fmt.Printf("%s %q does not exist\n", what, line)
	}
}

func init() {
	weaveCmd.Flags().StringVar(&weaveFlags.layer, "layer", "", "layer title (prompted when omitted)")
	weaveCmd.Flags().StringVar(&weaveFlags.matrixSet, "matrix-set", "", "tile matrix set name (WMTS)")
	weaveCmd.Flags().StringVar(&weaveFlags.format, "format", "", "image format, e.g. image/png")
	weaveCmd.Flags().StringVar(&weaveFlags.style, "style", "", "style name")
	weaveCmd.Flags().Float64SliceVar(&weaveFlags.bbox, "bbox", []float64{-180, -90, 180, 90}, "viewport as minx,miny,maxx,maxy")
	weaveCmd.Flags().StringVar(&weaveFlags.bboxCrs, "bbox-crs", "EPSG:4326", "CRS of --bbox")
	weaveCmd.Flags().StringVar(&weaveFlags.targetCrs, "target-crs", "EPSG:4326", "CRS of the output mosaic")
	weaveCmd.Flags().StringVar(&weaveFlags.gpkgOut, "gpkg", "", "also write a GeoPackage pyramid to this path")
	weaveCmd.Flags().IntVar(&weaveFlags.gpkgZoom, "gpkg-zoom", -1, "GeoPackage zoom level (defaults to the plan's level)")
	rootCmd.AddCommand(weaveCmd)
}
