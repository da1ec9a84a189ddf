package cmd

import (
	"fmt"
	"os"

	"github.com/atikulmunna/sitekeeper/internal/accesslog"
	"github.com/atikulmunna/sitekeeper/internal/render"
	"github.com/atikulmunna/sitekeeper/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the site",
	Long: `Serve the home, about and bad pages. Every request is appended to the
access log first. Other paths get the maintenance page, or static files from
the public directory when maintenance is off.

Examples:
  sitekeeper serve
  sitekeeper serve --port 8080 --views ./views
  sitekeeper serve --maintenance=false`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", server.DefaultPort, "port to listen on")
	serveCmd.Flags().String("views", "", "template directory with pages and partials/ (default: built-in views)")
	serveCmd.Flags().String("public", "public", "static asset directory")
	serveCmd.Flags().Bool("maintenance", true, "answer unmatched paths with the maintenance page")

	for _, name := range []string{"port", "views", "public", "maintenance"} {
		_ = viper.BindPFlag(name, serveCmd.Flags().Lookup(name))
	}

	rootCmd.AddCommand(serveCmd)
}

// siteSettings is the resolved configuration for one serve run.
type siteSettings struct {
	Server  server.Config
	LogFile string
	Views   string
}

func loadSiteSettings(v *viper.Viper) siteSettings {
	return siteSettings{
		Server: server.Config{
			Port:        v.GetInt("port"),
			Public:      v.GetString("public"),
			Maintenance: v.GetBool("maintenance"),
		},
		LogFile: v.GetString("log_file"),
		Views:   v.GetString("views"),
	}
}

func newRenderer(views string) (*render.Renderer, error) {
	if views == "" {
		return render.Default()
	}
	return render.New(os.DirFS(views))
}

func runServe(cmd *cobra.Command, args []string) error {
	settings := loadSiteSettings(viper.GetViper())

	renderer, err := newRenderer(settings.Views)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	access := accesslog.New(settings.LogFile, os.Stdout)
	defer access.Close()
	srv := server.New(settings.Server, renderer, access)

	return srv.ListenAndServe()
}
