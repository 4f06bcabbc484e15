// Command fastcopy copies one file with the chunked copy engine and shows
// its progress on the terminal.
//
//	fastcopy [-policy rename|skip|overwrite|report|ask] [-quiet] SRC DST
//
// Ctrl-C cancels the copy and removes the partial destination.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/xuecangming/file-manager/internal/core/copier"
)

const (
	exitOK        = 0
	exitFailed    = 1
	exitCancelled = 130
)

// policyAsk prompts when the destination exists instead of applying a
// fixed policy
const policyAsk = "ask"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("fastcopy", flag.ContinueOnError)
	policyFlag := fs.String("policy", "rename", "what to do when the destination exists: rename, skip, overwrite, report or ask")
	quiet := fs.Bool("quiet", false, "do not show a progress bar")
	threads := fs.Int("threads", copier.DefaultMaxThreads, "maximum number of parallel chunks")
	bufferSize := fs.Int("buffer", copier.DefaultBufferSize, "read buffer size in bytes")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: fastcopy [flags] SRC DST")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitFailed
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return exitFailed
	}

	src, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return fail(err)
	}
	dst, err := resolveDestination(src, fs.Arg(1))
	if err != nil {
		return fail(err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return fail(err)
	}

	policy, skip, err := choosePolicy(*policyFlag, dst, askPolicy)
	if err != nil {
		return fail(err)
	}
	if skip {
		color.Yellow("skipped %s: destination exists", src)
		return exitOK
	}

	ui := newConsole(*quiet)
	listener := ui.track(filepath.Base(src), info.Size())

	ctl := copier.NewController()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		if _, ok := <-sigs; ok {
			ctl.Cancel()
		}
	}()

	c := copier.New(copier.Options{
		BufferSize: *bufferSize,
		MaxThreads: *threads,
	}, listener)
	res, err := c.Copy(context.Background(), src, dst, policy, ctl)
	listener.finish(err == nil)
	ui.wait()

	switch {
	case err == nil:
		color.Green("copied %s -> %s (%s, %d threads, %s)",
			src, res.Destination, formatSize(res.Size), res.Threads, res.Elapsed.Round(time.Millisecond))
		return exitOK
	case errors.Is(err, copier.ErrSkipped):
		color.Yellow("skipped %s: destination exists", src)
		return exitOK
	case errors.Is(err, copier.ErrCancelled):
		color.Yellow("cancelled, %s was removed", dst)
		return exitCancelled
	default:
		return fail(err)
	}
}

func fail(err error) int {
	color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
	return exitFailed
}

// resolveDestination places src inside dst when dst is an existing
// directory or ends with a separator.
func resolveDestination(src, dst string) (string, error) {
	isDir := strings.HasSuffix(dst, "/") || strings.HasSuffix(dst, string(filepath.Separator))
	abs, err := filepath.Abs(dst)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		isDir = true
	}
	if isDir {
		abs = filepath.Join(abs, filepath.Base(src))
	}
	return abs, nil
}

// choosePolicy parses the -policy flag. With "ask" and an existing
// destination the user decides through ask; skip reports that they chose
// not to copy.
func choosePolicy(name, dst string, ask func(string) (copier.Policy, bool, error)) (copier.Policy, bool, error) {
	if name != policyAsk {
		p, err := copier.ParsePolicy(name)
		return p, false, err
	}
	if _, err := os.Lstat(dst); err != nil {
		return copier.DefaultPolicy, false, nil
	}
	return ask(dst)
}

// askPolicy prompts for what to do with an existing destination
func askPolicy(dst string) (copier.Policy, bool, error) {
	choices := []string{"Keep both (rename)", "Overwrite", "Skip"}
	prompt := promptui.Select{
		Label: fmt.Sprintf("%s already exists", filepath.Base(dst)),
		Items: choices,
	}
	i, _, err := prompt.Run()
	if err != nil {
		return copier.DefaultPolicy, false, err
	}
	switch i {
	case 1:
		return copier.PolicyOverwrite, false, nil
	case 2:
		return copier.PolicySkip, true, nil
	}
	return copier.PolicyRename, false, nil
}
