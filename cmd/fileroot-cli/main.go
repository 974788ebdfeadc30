// Package main provides a command-line client for a fileroot server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fruitsalade/fileroot/internal/logging"
	"github.com/fruitsalade/fileroot/pkg/client"
	"github.com/fruitsalade/fileroot/pkg/protocol"
)

func main() {
	serverURL := flag.String("server", envOr("FILEROOT_SERVER", "http://localhost:3000"), "Server URL")
	timeout := flag.Duration("timeout", 30*time.Second, "Time to wait for response headers")
	jsonOut := flag.Bool("json", false, "Print ls output as JSON")
	peek := flag.Bool("peek", false, "Download without the attachment disposition (get)")
	verbose := flag.Bool("v", false, "Log client activity to stderr")

	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	level := "error"
	if *verbose {
		level = "debug"
	}
	if err := logging.Init(logging.Config{Level: level, Format: "console", OutputPath: "stderr"}); err != nil {
		fatalf("logging init error: %v", err)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(client.Config{BaseURL: *serverURL, Timeout: *timeout})

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "ls", "list":
		cmdList(ctx, c, cmdArgs, *jsonOut)
	case "mkdir":
		cmdPath(cmdArgs, "mkdir <path>", func(p string) error { return c.Mkdir(ctx, p) }, "Created")
	case "rmdir":
		cmdPath(cmdArgs, "rmdir <path>", func(p string) error { return c.Rmdir(ctx, p) }, "Removed")
	case "rm":
		cmdPath(cmdArgs, "rm <path>", func(p string) error { return c.Remove(ctx, p) }, "Removed")
	case "mv":
		cmdTransfer(cmdArgs, "mv <from> <to>", func(from, to string) error { return c.Move(ctx, from, to) }, "Moved")
	case "cp":
		cmdTransfer(cmdArgs, "cp <from> <to>", func(from, to string) error { return c.Copy(ctx, from, to) }, "Copied")
	case "get":
		cmdGet(ctx, c, cmdArgs, *peek)
	case "put":
		cmdPut(ctx, c, cmdArgs)
	case "health":
		cmdHealth(ctx, c)
	case "watch":
		cmdWatch(ctx, c)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`fileroot CLI

Usage: fileroot-cli [flags] <command> [args]

Flags:
  -server <url>      Server URL (default: $FILEROOT_SERVER or http://localhost:3000)
  -timeout <dur>     Time to wait for response headers (default: 30s)
  -json              Print ls output as JSON
  -peek              Download inline instead of as an attachment
  -v                 Log client activity to stderr

Commands:
  ls [path]          List a directory (default: root)
  mkdir <path>       Create a directory (parent must exist)
  rmdir <path>       Remove a directory and its contents
  rm <path>          Remove a file
  mv <from> <to>     Move or rename
  cp <from> <to>     Copy a file or directory tree
  get <path> [dest]  Download a file (dest "-" writes to stdout)
  put <file> <path>  Upload a local file (fails if path exists)
  health             Show server health and disk usage
  watch              Print change events until interrupted
  help               Show this help message

Examples:
  fileroot-cli ls docs
  fileroot-cli put ./report.pdf docs/report.pdf
  fileroot-cli get docs/report.pdf -
  fileroot-cli -server http://nas:3000 watch`)
}

func cmdList(ctx context.Context, c *client.Client, args []string, asJSON bool) {
	dir := ""
	if len(args) > 0 {
		dir = args[0]
	}

	files, err := c.List(ctx, dir)
	if err != nil {
		fatalf("Error listing %q: %v", dir, err)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(files)
		return
	}

	if len(files) == 0 {
		fmt.Println("Directory is empty")
		return
	}

	// Directories first, then by name
	sort.Slice(files, func(i, j int) bool {
		if files[i].IsDir != files[j].IsDir {
			return files[i].IsDir
		}
		return files[i].Name < files[j].Name
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tTYPE\tMODIFIED")
	fmt.Fprintln(w, "----\t----\t----\t--------")

	for _, f := range files {
		name, size, kind := f.Name, formatSize(f.Size), "dir"
		if f.IsDir {
			name += "/"
			size = "-"
		} else if f.Mime != nil {
			kind = *f.Mime
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, size, kind, formatTime(f.ModTime))
	}
	w.Flush()
}

func cmdPath(args []string, usage string, op func(string) error, done string) {
	if len(args) != 1 {
		fatalf("Usage: fileroot-cli %s", usage)
	}
	if err := op(args[0]); err != nil {
		fatalf("Error: %v", err)
	}
	fmt.Printf("%s: %s\n", done, args[0])
}

func cmdTransfer(args []string, usage string, op func(from, to string) error, done string) {
	if len(args) != 2 {
		fatalf("Usage: fileroot-cli %s", usage)
	}
	if err := op(args[0], args[1]); err != nil {
		fatalf("Error: %v", err)
	}
	fmt.Printf("%s: %s -> %s\n", done, args[0], args[1])
}

func cmdGet(ctx context.Context, c *client.Client, args []string, peek bool) {
	if len(args) < 1 || len(args) > 2 {
		fatalf("Usage: fileroot-cli get <path> [dest]")
	}
	remote := args[0]
	dest := path.Base(remote)
	if len(args) == 2 {
		dest = args[1]
	}

	dl, err := c.Download(ctx, remote, peek)
	if err != nil {
		fatalf("Error downloading %q: %v", remote, err)
	}
	defer dl.Close()

	if dest == "-" {
		if _, err := io.Copy(os.Stdout, dl); err != nil {
			fatalf("Error: download interrupted: %v", err)
		}
		return
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		fatalf("Error: %v", err)
	}
	n, err := io.Copy(f, dl)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && dl.Size >= 0 && n != dl.Size {
		err = fmt.Errorf("received %d of %d bytes", n, dl.Size)
	}
	if err != nil {
		os.Remove(dest)
		fatalf("Error: download interrupted: %v", err)
	}
	fmt.Printf("Downloaded: %s (%s) -> %s\n", remote, formatSize(n), dest)
}

func cmdPut(ctx context.Context, c *client.Client, args []string) {
	if len(args) != 2 {
		fatalf("Usage: fileroot-cli put <file> <path>")
	}
	local, remote := args[0], args[1]

	f, err := os.Open(local)
	if err != nil {
		fatalf("Error: %v", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		fatalf("Error: %v", err)
	}
	if !info.Mode().IsRegular() {
		fatalf("Error: %s is not a regular file", local)
	}

	if err := c.Upload(ctx, remote, f, info.Size()); err != nil {
		fatalf("Error uploading %q: %v", local, err)
	}
	fmt.Printf("Uploaded: %s (%s) -> %s\n", local, formatSize(info.Size()), remote)
}

func cmdHealth(ctx context.Context, c *client.Client) {
	h, err := c.Health(ctx)
	if h == nil {
		fatalf("Error: %v", err)
	}
	if err != nil {
		defer os.Exit(1)
	}

	used := h.DataDirTotal - h.DataDirFree
	fmt.Println("Server Health")
	fmt.Println("-------------")
	fmt.Printf("Status:       %s\n", h.Status)
	fmt.Printf("Disk total:   %s\n", formatSize(int64(h.DataDirTotal)))
	fmt.Printf("Disk free:    %s\n", formatSize(int64(h.DataDirFree)))
	if h.DataDirTotal > 0 {
		fmt.Printf("Usage:        %.1f%%\n", float64(used)/float64(h.DataDirTotal)*100)
	}
}

func cmdWatch(ctx context.Context, c *client.Client) {
	err := c.Watch(ctx, func(e protocol.Event) {
		ts := time.Unix(e.Timestamp, 0)
		switch {
		case e.From != "":
			fmt.Printf("%s  %-6s %s -> %s\n", formatTime(ts), e.Type, e.From, e.Path)
		case e.Type == protocol.EventUpload:
			fmt.Printf("%s  %-6s %s (%s)\n", formatTime(ts), e.Type, e.Path, formatSize(e.Size))
		default:
			fmt.Printf("%s  %-6s %s\n", formatTime(ts), e.Type, e.Path)
		}
	})
	if err != nil {
		fatalf("Error: %v", err)
	}
}

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
