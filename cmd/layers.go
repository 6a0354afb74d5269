package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mapweave/mapweave/pkg/weaver"
)

// layersCmd lists what a service offers without downloading anything.
var layersCmd = &cobra.Command{
	Use:   "layers <capabilities-url>",
	Short: "List a service's layers, formats, styles and tile matrix sets.",
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
		model, err := w.Parse(xml)
		if err != nil {
			return err
		}

		fmt.Printf("service: %s (version %s)\n", model.Service.Title, model.Version)
		for _, title := range w.ListRootLayers() {
			printLayer(w, title, 0)
		}
		return nil
	},
}

func printLayer(w *weaver.Weaver, title string, depth int) {
	indent := strings.Repeat("  ", depth)
	kind := "WMS"
	if w.IsWmtsLayer(title) {
		kind = "WMTS"
	}
	fmt.Printf("%s- %s [%s]\n", indent, title, kind)

	if sets := w.ListTileMatrixSets(title); len(sets) > 0 {
		fmt.Printf("%s    matrix sets: %s\n", indent, strings.Join(sets, ", "))
	}
	if formats := w.ListFormats(title); len(formats) > 0 {
		fmt.Printf("%s    formats: %s\n", indent, strings.Join(formats, ", "))
	}
	if styles := w.ListStyles(title); len(styles) > 0 {
		fmt.Printf("%s    styles: %s\n", indent, strings.Join(styles, ", "))
	}
	for _, child := range w.ListChildLayers(title) {
		printLayer(w, child, depth+1)
	}
}

func init() {
	rootCmd.AddCommand(layersCmd)
}
