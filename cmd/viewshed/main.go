package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"

	viewshed "github.com/caffeine-potent/viewshed"
	"github.com/caffeine-potent/viewshed/search"
)

// runViewshed wires one elevation layer and one points file through the
// Iteration Driver and persists the resulting visibility layer (spec §6
// Input/Output API).
func runViewshed(elevationURI, pointsURI, outURI, configURI string, maxDistance float64, curvature bool, operator string, epsilon float64) error {
	elevLayer, err := viewshed.OpenTiledbLayer(elevationURI, "elevation", configURI)
	if err != nil {
		return err
	}
	defer elevLayer.Close()

	points, err := loadPoints(pointsURI, configURI)
	if err != nil {
		return err
	}

	op, err := parseOperator(operator)
	if err != nil {
		return err
	}

	opts := viewshed.DefaultOptions(maxDistance)
	opts.Curvature = curvature
	opts.Operator = op
	if epsilon > 0 {
		opts.Epsilon = epsilon
	}
	opts.TouchedKeys = viewshed.NewTouchedKeys()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Println("running viewshed over", elevationURI)
	visibility, md, err := viewshed.Viewshed(ctx, elevLayer, points, opts)
	if err != nil {
		return err
	}
	log.Println("touched", len(opts.TouchedKeys.Keys()), "tiles")

	outLayer, err := viewshed.OpenTiledbLayer(outURI, "visibility", configURI)
	if err != nil {
		return err
	}
	defer outLayer.Close()

	if err := outLayer.WriteMetadata(md); err != nil {
		return err
	}

	for key, tile := range visibility {
		if err := outLayer.WriteTile(key, tile); err != nil {
			return err
		}
	}

	log.Println("finished viewshed, wrote", len(visibility), "tiles to", outURI)
	return nil
}

// listTiles reports every tile array found under a layer root, a diagnostic
// for checking a layer's coverage before committing to a run.
func listTiles(layerURI, configURI string) error {
	keys, err := search.FindTiles(layerURI, configURI)
	if err != nil {
		return err
	}
	for _, key := range keys {
		fmt.Printf("%d_%d\n", key.Col, key.Row)
	}
	log.Println(len(keys), "tiles found under", layerURI)
	return nil
}

func loadPoints(uri, configURI string) ([]viewshed.Point6D, error) {
	raw, err := viewshed.ReadJson(uri, configURI)
	if err != nil {
		return nil, err
	}
	var points []viewshed.Point6D
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil, err
	}
	return points, nil
}

func parseOperator(name string) (viewshed.Operator, error) {
	switch name {
	case "", "or":
		return viewshed.Or, nil
	case "and":
		return viewshed.And, nil
	case "sum":
		return viewshed.Sum, nil
	case "debug":
		return viewshed.Debug, nil
	default:
		return viewshed.Or, cli.Exit("unknown operator: "+name, 1)
	}
}

func main() {
	app := &cli.App{
		Name:  "viewshed",
		Usage: "iterative distributed viewshed over a tiled elevation layer",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "compute a visibility layer for one set of observer points",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "elevation-uri", Required: true, Usage: "URI or pathname of the elevation layer."},
					&cli.StringFlag{Name: "points-uri", Required: true, Usage: "URI or pathname of a JSON array of Point6D observers."},
					&cli.StringFlag{Name: "out-uri", Required: true, Usage: "URI or pathname to write the visibility layer to."},
					&cli.StringFlag{Name: "config-uri", Usage: "URI or pathname to a TileDB config file."},
					&cli.Float64Flag{Name: "max-distance", Required: true, Usage: "Maximum sighting distance, in metres."},
					&cli.BoolFlag{Name: "curvature", Value: true, Usage: "Apply Earth-curvature correction."},
					&cli.StringFlag{Name: "operator", Value: "or", Usage: "Aggregation operator: or, and, sum or debug."},
					&cli.Float64Flag{Name: "epsilon", Usage: "Horizontal/vertical epsilon override."},
				},
				Action: func(cCtx *cli.Context) error {
					return runViewshed(
						cCtx.String("elevation-uri"),
						cCtx.String("points-uri"),
						cCtx.String("out-uri"),
						cCtx.String("config-uri"),
						cCtx.Float64("max-distance"),
						cCtx.Bool("curvature"),
						cCtx.String("operator"),
						cCtx.Float64("epsilon"),
					)
				},
			},
			{
				Name:  "list-tiles",
				Usage: "list the tile keys present in a layer",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "layer-uri", Required: true},
					&cli.StringFlag{Name: "config-uri"},
				},
				Action: func(cCtx *cli.Context) error {
					return listTiles(cCtx.String("layer-uri"), cCtx.String("config-uri"))
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
