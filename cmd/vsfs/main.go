// Command vsfs manipulates a journaled filesystem image.
//
//	vsfs mkfs               format an empty image
//	vsfs create <name>      stage a file creation in the journal
//	vsfs install            replay the journal into the image
//	vsfs check              validate the permanent region
//
// The image path comes from --image or VSFS_IMAGE (default vsfs.img).
package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/urfave/cli/v2"

	"github.com/vsfs-lab/vsfs/common"
	"github.com/vsfs-lab/vsfs/disk"
	"github.com/vsfs-lab/vsfs/fs"
	"github.com/vsfs-lab/vsfs/fsck"
	"github.com/vsfs-lab/vsfs/jrnl"
	"github.com/vsfs-lab/vsfs/mkfs"
	"github.com/vsfs-lab/vsfs/util"
)

type config struct {
	Image string `envconfig:"VSFS_IMAGE" default:"vsfs.img"`
	Debug uint64 `envconfig:"VSFS_DEBUG" default:"0"`
}

func main() {
	var cfg config
	if err := envconfig.Process("vsfs", &cfg); err != nil {
		log.Fatalf("vsfs: %v", err)
	}

	app := &cli.App{
		Name:  "vsfs",
		Usage: "a teaching filesystem with a write-ahead journal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"i"},
				Value:   cfg.Image,
				Usage:   "path to the disk image",
			},
			&cli.Uint64Flag{
				Name:  "debug",
				Value: cfg.Debug,
				Usage: "debug log level",
			},
		},
		Before: func(c *cli.Context) error {
			util.Debug = c.Uint64("debug")
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "mkfs",
				Usage:  "format an empty filesystem image",
				Action: cmdMkfs,
			},
			{
				Name:      "create",
				Usage:     "stage a file-creation transaction",
				ArgsUsage: "<name>",
				Action:    cmdCreate,
			},
			{
				Name:   "install",
				Usage:  "apply committed journal transactions and clear the journal",
				Action: cmdInstall,
			},
			{
				Name:   "check",
				Usage:  "validate the image and report every inconsistency",
				Action: cmdCheck,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("vsfs: %v", err)
	}
}

func openDisk(c *cli.Context) (disk.FileDisk, error) {
	return disk.NewFileDisk(c.String("image"), common.TOTALBLOCKS)
}

func cmdMkfs(c *cli.Context) error {
	d, err := openDisk(c)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := mkfs.Mkfs(d); err != nil {
		return err
	}
	fmt.Printf("Formatted %s: %d blocks of %d bytes.\n",
		c.String("image"), common.TOTALBLOCKS, disk.BlockSize)
	return nil
}

func cmdCreate(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: vsfs create <name>", 1)
	}
	name := c.Args().First()

	d, err := openDisk(c)
	if err != nil {
		return err
	}
	defer d.Close()
	fsys, err := fs.Load(d)
	if err != nil {
		return err
	}
	err = fsys.CreateFile(name)
	switch {
	case err == nil:
		fmt.Printf("Staged creation of %q; run 'vsfs install' to apply.\n", name)
		return nil
	case errors.Is(err, fs.ErrNoFreeInodes):
		fmt.Fprintln(os.Stderr, "No free inodes available.")
		return nil
	case errors.Is(err, fs.ErrDirFull):
		fmt.Fprintln(os.Stderr, "Root directory is full.")
		return nil
	case errors.Is(err, jrnl.ErrFull):
		fmt.Fprintln(os.Stderr, "Journal full! Please run 'vsfs install' first.")
		return nil
	default:
		return err
	}
}

func cmdInstall(c *cli.Context) error {
	d, err := openDisk(c)
	if err != nil {
		return err
	}
	defer d.Close()
	fsys, err := fs.Load(d)
	if err != nil {
		return err
	}
	rpt, err := fsys.Install()
	if err != nil {
		return err
	}
	if rpt.Fault != "" {
		fmt.Fprintf(os.Stderr, "Journal fault: %s\n", rpt.Fault)
	}
	if rpt.Txns > 0 {
		fmt.Printf("Applied %d transaction(s) from journal.\n", rpt.Txns)
		fmt.Println("Journal cleared.")
	}
	return nil
}

func cmdCheck(c *cli.Context) error {
	d, err := openDisk(c)
	if err != nil {
		return err
	}
	defer d.Close()
	rpt, err := fsck.Check(d)
	if err != nil {
		return err
	}
	for _, f := range rpt.Findings {
		fmt.Println(f)
	}
	if rpt.Consistent() {
		fmt.Println("Filesystem image is consistent.")
	} else {
		fmt.Printf("Filesystem image is NOT consistent: %d problem(s) found.\n",
			len(rpt.Findings))
	}
	return nil
}
