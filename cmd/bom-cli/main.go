package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/vrsandeep/bom-preview/internal/core"
	"github.com/vrsandeep/bom-preview/internal/models"
	"github.com/vrsandeep/bom-preview/internal/watch"
)

const usage = `Usage: bom-cli <command> [flags]

Commands:
  login                      check the configured credentials
  preview [-o dir] [-import] <file.xlsx>
                             preview a BOM workbook, optionally importing it
  import <bom_preview.json>  import a preview result written by "preview"
  watch [-dir dir] [-existing] [-import]
                             preview every workbook dropped into a directory

Every command that logs in ends its session before exiting.
`

func main() {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	app, err := core.New()
	if err != nil {
		log.Fatalf("Fatal error during application setup: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, app, os.Args[1], os.Args[2:])
	stop()
	app.Close()

	logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	app.Logout(logoutCtx)
	cancel()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Println("Interrupted.")
		} else {
			log.Printf("Error: %v", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, app *core.App, cmd string, args []string) error {
	switch cmd {
	case "login":
		return runLogin(ctx, app)
	case "preview":
		return runPreview(ctx, app, args)
	case "import":
		return runImport(ctx, app, args)
	case "watch":
		return runWatch(ctx, app, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runLogin(ctx context.Context, app *core.App) error {
	if app.Config().ERP.Username == "" {
		return errors.New("erp.username is not configured")
	}
	if err := app.Login(ctx); err != nil {
		return err
	}
	user, err := app.Client().LoggedUser(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Logged in as %s\n", user)
	return nil
}

func runPreview(ctx context.Context, app *core.App, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	outDir := fs.String("o", ".", "directory to write the preview result to")
	andImport := fs.Bool("import", false, "import the preview once it finishes")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("preview takes exactly one workbook")
	}

	if err := app.Login(ctx); err != nil {
		return err
	}
	if _, err := previewFile(ctx, app, fs.Arg(0), *outDir); err != nil {
		return err
	}
	if !*andImport {
		return nil
	}
	result, err := app.Import(ctx, printProgress)
	if err != nil {
		return err
	}
	fmt.Printf("Import finished: %s\n", result)
	return nil
}

// previewFile previews one workbook, prints its counts and writes the result
// into outDir as bom_preview_<job_id>.json.
func previewFile(ctx context.Context, app *core.App, path, outDir string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	preview, raw, err := app.Preview(ctx, filepath.Base(path), content, printProgress)
	if err != nil {
		return "", err
	}

	counts := preview.Counts()
	fmt.Printf("%s: rubber=%d steel=%d rm=%d prod=%d\n",
		filepath.Base(path), counts.Rubber, counts.Steel, counts.Rm, counts.Prod)

	t, ok := app.Registry().Get(models.SlotPreview)
	if !ok {
		return "", errors.New("preview tracker missing")
	}
	out := filepath.Join(outDir, fmt.Sprintf("bom_preview_%s.json", t.JobID()))
	if err := os.WriteFile(out, raw, 0644); err != nil {
		return "", fmt.Errorf("write preview result: %w", err)
	}
	fmt.Printf("Preview written to %s\n", out)
	return out, nil
}

func runImport(ctx context.Context, app *core.App, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("import takes exactly one preview result file")
	}
	raw, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	if err := app.Login(ctx); err != nil {
		return err
	}
	result, err := app.ImportPreview(ctx, raw, printProgress)
	if err != nil {
		return err
	}
	fmt.Printf("Import finished: %s\n", result)
	return nil
}

func runWatch(ctx context.Context, app *core.App, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	dir := fs.String("dir", app.Config().Watch.Dir, "directory to watch")
	existing := fs.Bool("existing", false, "also preview workbooks already in the directory")
	andImport := fs.Bool("import", false, "import each preview once it finishes")
	fs.Parse(args)

	if err := os.MkdirAll(*dir, 0755); err != nil {
		return err
	}
	if err := app.Login(ctx); err != nil {
		return err
	}

	w := watch.New(*dir, watch.DefaultDebounce, func(ctx context.Context, path string) error {
		if _, err := previewFile(ctx, app, path, filepath.Dir(path)); err != nil {
			return err
		}
		if !*andImport {
			return nil
		}
		_, err := app.Import(ctx, printProgress)
		return err
	})
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("watch %s: %w", *dir, err)
	}
	defer w.Stop()

	if *existing {
		paths, err := w.Existing()
		if err != nil {
			return err
		}
		for _, p := range paths {
			w.Trigger(p)
		}
	}

	<-ctx.Done()
	log.Println("Stopping watcher...")
	return nil
}

func printProgress(slot models.Slot, rec models.StatusRecord) {
	line := fmt.Sprintf("[%s] %-8s %3d%%", slot, rec.Status, rec.DisplayProgress())
	if rec.Stage != "" {
		line += " " + rec.Stage
	}
	if rec.Message != "" {
		line += ": " + rec.Message
	}
	fmt.Println(line)
}
