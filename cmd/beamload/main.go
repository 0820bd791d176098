// beamload CLI - boots a release and reports what got loaded
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/chazu/beamload/manifest"
	"github.com/chazu/beamload/release"
	"github.com/chazu/beamload/vm"
	"github.com/chazu/beamload/vm/image"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	showExports := flag.Bool("exports", false, "Print the exports table after boot")
	inspect := flag.String("inspect", "", "Decode a single module image and print its contents")
	reload := flag.String("reload", "", "Reload the named module after boot")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: beamload [options] [release-dir]\n\n")
		fmt.Fprintf(os.Stderr, "Boots the release described by release.toml (searched upward from release-dir).\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  beamload ./rel                     # Boot ./rel, print the load report\n")
		fmt.Fprintf(os.Stderr, "  beamload -exports ./rel            # Also print every resolvable MFA\n")
		fmt.Fprintf(os.Stderr, "  beamload -inspect ebin/cart.beax   # Dump one module image\n")
		fmt.Fprintf(os.Stderr, "  beamload -reload cart ./rel        # Boot, then hot-load cart again\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  BEAMLOAD_ON_LOAD=skip              # Do not run on_load hooks\n")
		fmt.Fprintf(os.Stderr, "  BEAMLOAD_LOG_VERBOSITY=2           # Log at debug level\n")
	}
	flag.Parse()

	if *inspect != "" {
		if err := inspectImage(os.Stdout, *inspect); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	dir := "."
	if flag.NArg() > 0 {
		dir = flag.Arg(0)
	}

	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if m == nil {
		fmt.Fprintf(os.Stderr, "Error: no %s found from %s\n", manifest.FileName, dir)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r, err := release.Start(ctx, m, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer r.Stop()

	if *verbose {
		fmt.Printf("Release %s %s (machine %s)\n", m.Release.Name, m.Release.Version, r.Machine.ID())
	}
	printReport(os.Stdout, r.Machine, r.Report)

	if *reload != "" {
		mod, err := r.Reload(*reload)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Reloaded %s v%d\n", *reload, mod.Version())
	}

	if *showExports {
		printExports(os.Stdout, r.Machine)
	}

	if !r.Report.OK() {
		os.Exit(2)
	}
}

func inspectImage(w io.Writer, path string) error {
	atoms := vm.NewAtomTable()
	img, err := image.NewDecoder(atoms).Decode(path)
	if err != nil {
		return err
	}
	mach := vm.NewMachine(vm.WithAtoms(atoms))
	defer mach.Stop()
	mod, err := mach.LoadImage(img)
	if err != nil {
		return err
	}
	printModule(w, mach, mod)
	return nil
}
