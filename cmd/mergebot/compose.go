package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m3rciful/mergebot/core/compositor"
)

var composeFlags struct {
	main, ref, label, out, font string
	fontSize                    float64
	maxPixels                   int
	offsets                     compositor.Offsets
}

var composeCmd = &cobra.Command{
	Use:     "compose",
	Short:   "Merge two local images without Telegram",
	Example: "  mergebot compose --main photo.jpg --ref logo.png --label Alice --out merged.png\n" +
		"  mergebot compose --main photo.jpg --ref logo.png --label Alice --image-x 40 --text-y -20",
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := composeFlags
		mainData, err := os.ReadFile(f.main)
		if err != nil {
			return err
		}
		refData, err := os.ReadFile(f.ref)
		if err != nil {
			return err
		}
		comp, err := compositor.New(compositor.Options{
			FontPath:  f.font,
			FontSize:  f.fontSize,
			MaxPixels: f.maxPixels,
		})
		if err != nil {
			return err
		}
		res, err := comp.Compose(cmd.Context(), mainData, refData, f.label, f.offsets)
		if err != nil {
			return err
		}
		if err := os.WriteFile(f.out, res.Data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%dx%d, %d bytes, font %s)\n",
			f.out, res.Width, res.Height, len(res.Data), comp.FontName())
		return nil
	},
}

func init() {
	fl := composeCmd.Flags()
	fl.StringVar(&composeFlags.main, "main", "", "main image")
	fl.StringVar(&composeFlags.ref, "ref", "", "reference image pasted in the center")
	fl.StringVar(&composeFlags.label, "label", "", "text drawn near the bottom")
	fl.StringVarP(&composeFlags.out, "out", "o", "merged.png", "output PNG")
	fl.StringVar(&composeFlags.font, "font", "", "TrueType/OpenType font file")
	fl.Float64Var(&composeFlags.fontSize, "font-size", 0, "label size in points (default 20)")
	fl.IntVar(&composeFlags.maxPixels, "max-pixels", 0, "reject inputs above this pixel count (0 = no limit)")
	fl.IntVar(&composeFlags.offsets.ImageX, "image-x", 0, "move the reference right (negative: left) in pixels")
	fl.IntVar(&composeFlags.offsets.ImageY, "image-y", 0, "move the reference down (negative: up) in pixels")
	fl.IntVar(&composeFlags.offsets.TextX, "text-x", 0, "move the label right (negative: left) in pixels")
	fl.IntVar(&composeFlags.offsets.TextY, "text-y", 0, "move the label down (negative: up) in pixels")
	_ = composeCmd.MarkFlagRequired("main")
	_ = composeCmd.MarkFlagRequired("ref")
	rootCmd.AddCommand(composeCmd)
}
