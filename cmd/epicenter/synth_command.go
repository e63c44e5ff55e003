package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/epicenter-detector/internal/synth"
)

func newSynthCommand() *cobra.Command {
	scene := synth.DefaultScene()

	cmd := &cobra.Command{
		Use:   "synth DIR",
		Short: "Write the expanding-circle test clip as PNG frames",
		Long: "Renders a white circle outline on black whose radius grows every " +
			"frame, for checking that analyze finds its center.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if scene.Frames < 2 || scene.Width < 1 || scene.Height < 1 {
				return fmt.Errorf("need at least 2 frames of positive size, got %d frames of %dx%d", scene.Frames, scene.Width, scene.Height)
			}
			paths, err := synth.WriteFrames(args[0], scene)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d frames to %s (center %d,%d)\n", len(paths), args[0], scene.CenterX, scene.CenterY)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&scene.Width, "width", scene.Width, "Frame width")
	flags.IntVar(&scene.Height, "height", scene.Height, "Frame height")
	flags.IntVar(&scene.Frames, "frames", scene.Frames, "Number of frames")
	flags.IntVar(&scene.CenterX, "center-x", scene.CenterX, "Circle center column")
	flags.IntVar(&scene.CenterY, "center-y", scene.CenterY, "Circle center row")
	flags.IntVar(&scene.BaseRadius, "radius", scene.BaseRadius, "Radius in the first frame")
	flags.IntVar(&scene.Growth, "growth", scene.Growth, "Radius growth per frame")
	return cmd
}
