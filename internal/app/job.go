package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/altafino/docflow/internal/classifier"
	"github.com/altafino/docflow/internal/extractor"
	"github.com/altafino/docflow/internal/mailstore"
	"github.com/altafino/docflow/internal/mailstore/emlstore"
	"github.com/altafino/docflow/internal/mailstore/imapstore"
	"github.com/altafino/docflow/internal/oauth2"
	"github.com/altafino/docflow/internal/types"
	"github.com/altafino/docflow/internal/validation"
	"github.com/spf13/afero"
)

// ExtractConfig turns a job into an extraction request. Dates are whole
// local days; last_days counts today as the final day of the window.
func ExtractConfig(cfg *types.Config, now time.Time) (extractor.Config, error) {
	ex := cfg.Extract
	out := extractor.Config{
		SearchPhrases:  ex.SearchPhrases,
		SourceFolder:   ex.SourceFolder,
		DestinationDir: ex.DestinationDir,
		MaxIntentos:    cfg.Retry.MaxIntentos,
		Timeout:        time.Duration(cfg.Retry.Timeout) * time.Second,
		RunLog:         cfg.RunLog,
	}

	parse := func(field, value string) (*time.Time, error) {
		if value == "" {
			return nil, nil
		}
		t, err := time.ParseInLocation(validation.DateLayout, value, now.Location())
		if err != nil {
			return nil, fmt.Errorf("invalid extract.%s %q: %w", field, value, err)
		}
		return &t, nil
	}

	var err error
	if out.DateStart, err = parse("date_start", ex.DateStart); err != nil {
		return out, err
	}
	if out.DateEnd, err = parse("date_end", ex.DateEnd); err != nil {
		return out, err
	}

	if ex.LastDays > 0 {
		end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		start := end.AddDate(0, 0, -(ex.LastDays - 1))
		out.DateStart, out.DateEnd = &start, &end
	}
	return out, nil
}

// ClassifyConfig turns a job into a classification request.
func ClassifyConfig(cfg *types.Config) classifier.Config {
	cl := cfg.Classify
	return classifier.Config{
		SourceDir:         cl.SourceDir,
		DestinationDir:    cl.DestinationDir,
		PatronesFirmado:   cl.PatronesFirmado,
		PatronesNoFirmado: cl.PatronesNoFirmado,
		CrearSubcarpetas:  cl.CrearSubcarpetas,
		Mode:              classifier.Mode(cl.Mode),
		SignedDir:         cl.SignedDir,
		UnsignedDir:       cl.UnsignedDir,
		UnmatchedDir:      cl.UnmatchedDir,
		MaxIntentos:       cfg.Retry.MaxIntentos,
		Timeout:           time.Duration(cfg.Retry.Timeout) * time.Second,
		RunLog:            cfg.RunLog,
	}
}

// NewTokenManager returns the OAuth2 token manager of an IMAP job.
func NewTokenManager(fs afero.Fs, cfg *types.Config, logger *slog.Logger) (*oauth2.TokenManager, error) {
	oa := cfg.MailStore.Security.OAuth2
	if !oa.Enabled {
		return nil, fmt.Errorf("oauth2 is not enabled for config %s", cfg.Meta.ID)
	}
	oc, err := oauth2.GetProviderConfig(oa.Provider, oa.ClientID, oa.ClientSecret, oa.RedirectURL)
	if err != nil {
		return nil, err
	}
	return oauth2.NewTokenManager(fs, oc, oa.TokenStoragePath, cfg.Meta.ID, logger)
}

// OpenStore opens the mail store a job reads from.
func OpenStore(ctx context.Context, fs afero.Fs, cfg *types.Config, logger *slog.Logger) (mailstore.Store, error) {
	ms := cfg.MailStore
	switch ms.Type {
	case types.MailStoreEML, "":
		return emlstore.New(fs, ms.Root, logger)
	case types.MailStoreIMAP:
		icfg := imapstore.Config{
			Server:     ms.Server,
			Port:       ms.Port,
			TLS:        ms.Security.TLS.Enabled,
			VerifyCert: ms.Security.TLS.VerifyCert,
			Username:   ms.Username,
			Password:   ms.Password,
			Timeout:    time.Duration(ms.Timeout) * time.Second,
		}
		if ms.Security.OAuth2.Enabled {
			tm, err := NewTokenManager(fs, cfg, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to set up OAuth2: %w", err)
			}
			icfg.Tokens = tm
		}
		return imapstore.Dial(ctx, icfg, logger)
	default:
		return nil, fmt.Errorf("unsupported mail store type: %s", ms.Type)
	}
}
