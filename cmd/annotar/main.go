// Command-line tool for inspecting, converting and downloading annotation archives.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/annotar/anno"
	"github.com/janelia-flyem/annotar/annotation"
	"github.com/janelia-flyem/annotar/volume"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "0.1.0"

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Path to TOML configuration file.
	configFile = flag.String("config", "", "")

	// Directory for temporary volume layer copies.  Overrides the configuration.
	scratchDir = flag.String("scratch", "", "")
)

const helpMessage = `
annotar inspects, converts and downloads annotation archives

Usage: annotar [options] <command>

      -config     =string   TOML configuration file.
      -scratch    =string   Directory for temporary volume layer copies.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Commands:

	about
	help
	info     <archive>
	convert  <input archive or nml> <output archive>
	download <annotation url> <output archive>
	read     <archive> <layer name or -> <x,y,z> [<width,height,depth>]

Coordinates of read are in mag 1 voxels.  The values are read from the finest mag of a
temporary copy of the layer.
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() { fmt.Print(helpMessage) }
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Args()[0]) == "help" {
		*showHelp = true
	}
	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	opts, err := setup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	defer anno.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := DoCommand(ctx, flag.Args(), opts); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		stop()
		anno.Shutdown()
		os.Exit(1)
	}
}

// setup configures logging and returns the container options given by the
// configuration file and flags.
func setup() ([]annotation.Option, error) {
	cfg := anno.DefaultConfig()
	if *configFile != "" {
		var err error
		if cfg, err = anno.LoadConfig(*configFile); err != nil {
			return nil, err
		}
	}
	if *runVerbose {
		cfg.Logging.Verbose = true
	}
	if !cfg.Logging.Verbose {
		anno.SetLogLevel(anno.WarningLevel)
	}
	cfg.Logging.SetLogger()

	opts, err := annotation.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if *scratchDir != "" {
		opts = append(opts, annotation.WithScratchDir(*scratchDir))
	}
	return opts, nil
}

// DoCommand serves as a switchboard for commands.
func DoCommand(ctx context.Context, args []string, opts []annotation.Option) error {
	if len(args) == 0 {
		return fmt.Errorf("Blank command!")
	}
	name, args := args[0], args[1:]
	switch name {
	case "about":
		fmt.Printf("annotar %s, archive descriptor version %s\n", version, annotation.DescriptorVersion)
		return nil
	case "info":
		if len(args) != 1 {
			return fmt.Errorf("info needs an archive path")
		}
		return doInfo(ctx, args[0], opts)
	case "convert":
		if len(args) != 2 {
			return fmt.Errorf("convert needs an input and an output path")
		}
		return doConvert(ctx, args[0], args[1], opts)
	case "download":
		if len(args) != 2 {
			return fmt.Errorf("download needs an annotation URL and an output path")
		}
		return doDownload(ctx, args[0], args[1], opts)
	case "read":
		if len(args) != 3 && len(args) != 4 {
			return fmt.Errorf("read needs an archive, a layer name and an offset")
		}
		return doRead(ctx, args, opts)
	default:
		return fmt.Errorf("unknown command %q, try 'annotar help'", name)
	}
}

func doInfo(ctx context.Context, filename string, opts []annotation.Option) error {
	a, err := annotation.Load(ctx, filename, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Dataset:       %s\n", a.DatasetName())
	if org, found := a.OrganizationID(); found {
		fmt.Printf("Organization:  %s\n", org)
	}
	if owner, found := a.OwnerName(); found {
		fmt.Printf("Owner:         %s\n", owner)
	}
	if id, found := a.AnnotationID(); found {
		fmt.Printf("Annotation id: %s\n", id)
	}
	if len(a.Metadata) > 0 {
		keys := make([]string, 0, len(a.Metadata))
		for k := range a.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Printf("Metadata:\n")
		for _, k := range keys {
			fmt.Printf("  %s = %v\n", k, a.Metadata[k])
		}
	}

	skel := a.Skeleton()
	fmt.Printf("Skeleton:      %d trees in %d groups, %d nodes\n", skel.NumTrees(), skel.NumGroups(), skel.TotalNodeCount())
	for tree := range skel.FlattenedTrees() {
		fmt.Printf("  %s\n", tree)
	}

	if boxes := a.UserBoundingBoxes(); len(boxes) > 0 {
		fmt.Printf("Bounding boxes:\n")
		for _, b := range boxes {
			fmt.Printf("  %s\n", b)
		}
	}

	for _, layer := range a.VolumeLayers() {
		keys, err := layer.Store().Keys(ctx, "")
		if err != nil {
			return err
		}
		var numBytes uint64
		for _, key := range keys {
			value, err := layer.Store().GetChunk(ctx, key)
			if err != nil {
				return err
			}
			numBytes += uint64(len(value))
		}
		fmt.Printf("Volume layer %q (id %d): %s, mags %v, %d chunks (%s)\n", layer.Name(), layer.ID(),
			layer.DataType(), layer.Mags(), len(keys), humanize.Bytes(numBytes))
		if box, found := layer.BoundingBox(); found {
			fmt.Printf("  written region %s\n", box)
		}
		if largest, found := layer.LargestSegmentID(); found {
			fmt.Printf("  largest segment id %d\n", largest)
		}
		if fallback, found := layer.FallbackLayer(); found {
			fmt.Printf("  fallback layer %q\n", fallback)
		}
	}
	return nil
}

func doConvert(ctx context.Context, input, output string, opts []annotation.Option) error {
	a, err := annotation.Load(ctx, input, opts...)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Save(ctx, output)
}

func doDownload(ctx context.Context, url, output string, opts []annotation.Option) error {
	a, err := annotation.Download(ctx, url, opts...)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Save(ctx, output); err != nil {
		return err
	}
	fmt.Printf("Saved %s to %s\n", a, output)
	return nil
}

func doRead(ctx context.Context, args []string, opts []annotation.Option) error {
	a, err := annotation.Load(ctx, args[0], opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	layerName := args[1]
	if layerName == "-" {
		layerName = ""
	}
	offset, err := anno.StringToPoint3d(args[2], ",")
	if err != nil {
		return fmt.Errorf("bad offset %q: %w", args[2], err)
	}
	size := anno.Point3d{1, 1, 1}
	if len(args) == 4 {
		if size, err = anno.StringToPoint3d(args[3], ","); err != nil {
			return fmt.Errorf("bad size %q: %w", args[3], err)
		}
	}

	return a.TemporaryVolumeLayerCopy(ctx, layerName, func(tmp *volume.TemporaryLayer) error {
		mv, err := tmp.FinestMag()
		if err != nil {
			return err
		}
		buf, err := mv.Read(ctx, offset, size)
		if err != nil {
			return err
		}
		fmt.Printf("%s of %s at %s:\n", buf, mv, offset)
		for z := int32(0); z < buf.Shape[2]; z++ {
			for y := int32(0); y < buf.Shape[1]; y++ {
				row := make([]string, 0, buf.Shape[0])
				for x := int32(0); x < buf.Shape[0]; x++ {
					vals := make([]string, buf.NumChannels)
					for c := int32(0); c < buf.NumChannels; c++ {
						vals[c] = fmt.Sprintf("%d", buf.ValueAt(c, x, y, z))
					}
					row = append(row, strings.Join(vals, "/"))
				}
				fmt.Printf("z %d y %d: %s\n", buf.Offset[2]+z, buf.Offset[1]+y, strings.Join(row, " "))
			}
		}
		return nil
	})
}
