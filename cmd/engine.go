package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openadeia/teesync/internal/server"
	"github.com/openadeia/teesync/internal/utils"
	"github.com/openadeia/teesync/pkg/storage"
	"github.com/openadeia/teesync/pkg/tee"
	"github.com/openadeia/teesync/pkg/workflow"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// openStore opens the database configured by --dbpath, creating its
// directory on first use. The returned path is absolute.
func openStore() (*storage.DB, string, error) {
	path, err := utils.GetAbsDBPath(viper.GetString("dbpath"))
	if err != nil {
		return nil, "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", fmt.Errorf("creating database directory: %w", err)
	}
	db, err := storage.Open(path)
	if err != nil {
		return nil, "", err
	}
	return db, path, nil
}

func portalConfig() tee.Config {
	return tee.Config{
		PortalURL:      viper.GetString("tee.portal_url"),
		SSOURL:         viper.GetString("tee.sso_url"),
		RequestTimeout: viper.GetDuration("tee.request_timeout"),
		ListPaths:      viper.GetStringSlice("tee.list_paths"),
		DetailPaths:    viper.GetStringSlice("tee.detail_paths"),
		Browser: tee.BrowserConfig{
			Enabled:  viper.GetBool("tee.browser.enabled"),
			ExecPath: viper.GetString("tee.browser.exec_path"),
			Timeout:  viper.GetDuration("tee.browser.timeout"),
		},
	}
}

func newEngine(db *storage.DB) (*workflow.Engine, error) {
	secret := viper.GetString("secret")
	if secret == "" {
		return nil, fmt.Errorf("no encryption secret configured: set 'secret' in the config file or TEESYNC_SECRET")
	}
	return &workflow.Engine{
		Store:  db,
		Portal: tee.NewClient(portalConfig(), nil),
		Secret: secret,
		Log:    utils.Log,
	}, nil
}

// cliUser resolves the host user CLI commands act as.
func cliUser(ctx context.Context, db *storage.DB) (int64, error) {
	name := viper.GetString("user")
	if name == "" {
		name = server.LOCAL_USER
	}
	return db.EnsureUser(ctx, name)
}

// withEngine opens the store, builds the engine and resolves the CLI user
// before calling fn.
func withEngine(fn func(ctx context.Context, engine *workflow.Engine, userID int64) error) error {
	db, _, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	engine, err := newEngine(db)
	if err != nil {
		return err
	}
	ctx := context.Background()
	userID, err := cliUser(ctx, db)
	if err != nil {
		return err
	}
	return fn(ctx, engine, userID)
}

// reportError logs the portal diagnostic of err, if any, and returns err for
// cobra to print.
func reportError(err error) error {
	if d := tee.DiagnosticOf(err); d != nil {
		utils.Log.WithFields(logrus.Fields{
			"step":     d.Step,
			"status":   d.StatusCode,
			"location": d.Location,
			"title":    d.Title,
			"body":     d.BodySnippet,
		}).Warn(err.Error())
	}
	return err
}
