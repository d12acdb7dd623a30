// Package dataset loads the institution spreadsheet and the document
// embedding index from Google Sheets, HTTP or local files.
package dataset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/config"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/fetcher"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
)

// SheetsExportURL is the CSV export endpoint of a Google Sheets tab.
const SheetsExportURL = "https://docs.google.com/spreadsheets/d/%s/export?format=csv&gid=%s"

// ErrNoSource is returned when neither a URL, a sheet id nor a path is set.
var ErrNoSource = eris.New("dataset: no source configured")

// Loader reads the raw institution table and the Q&A index.
type Loader struct {
	src     config.SourceConfig
	idx     config.IndexConfig
	fetcher fetcher.Fetcher
}

// NewLoader creates a Loader. f is used for every remote source.
func NewLoader(src config.SourceConfig, idx config.IndexConfig, f fetcher.Fetcher) *Loader {
	return &Loader{src: src, idx: idx, fetcher: f}
}

// SourceURL returns the remote URL of the table, or "" for a local file.
func (l *Loader) SourceURL() string {
	if l.src.URL != "" {
		return l.src.URL
	}
	if l.src.SheetID != "" {
		gid := l.src.GID
		if gid == "" {
			gid = "0"
		}
		return fmt.Sprintf(SheetsExportURL, url.PathEscape(l.src.SheetID), url.QueryEscape(gid))
	}
	return ""
}

// Describe names the table source for run records.
func (l *Loader) Describe() string {
	switch {
	case l.src.URL != "":
		return "url:" + l.src.URL
	case l.src.SheetID != "":
		return "sheet:" + l.src.SheetID + "#" + l.src.GID
	case l.src.Path != "":
		return "file:" + l.src.Path
	}
	return ""
}

// LoadTable fetches and parses the whole table before returning it.
func (l *Loader) LoadTable(ctx context.Context) (*model.Table, error) {
	tbl, _, _, err := l.LoadTableIfChanged(ctx, "")
	return tbl, err
}

// LoadTableIfChanged reloads the table only when the remote ETag differs
// from etag. Local files are always read. When unchanged the table is nil.
func (l *Loader) LoadTableIfChanged(ctx context.Context, etag string) (*model.Table, string, bool, error) {
	if u := l.SourceURL(); u != "" {
		body, newETag, changed, err := l.fetcher.DownloadIfChanged(ctx, u, etag)
		if err != nil {
			return nil, "", false, eris.Wrap(err, "dataset: download table")
		}
		if !changed {
			zap.L().Debug("dataset: table unchanged", zap.String("etag", etag))
			return nil, etag, false, nil
		}
		defer body.Close() //nolint:errcheck

		tbl, err := l.parseRemote(ctx, u, body)
		if err != nil {
			return nil, "", false, err
		}
		l.logLoaded(tbl)
		return tbl, newETag, true, nil
	}

	if l.src.Path == "" {
		return nil, "", false, ErrNoSource
	}
	tbl, err := l.readLocal(ctx, l.src.Path)
	if err != nil {
		return nil, "", false, err
	}
	l.logLoaded(tbl)
	return tbl, "", true, nil
}

func (l *Loader) logLoaded(tbl *model.Table) {
	zap.L().Info("dataset: table loaded",
		zap.String("source", l.Describe()),
		zap.Int("rows", tbl.Len()),
		zap.Int("columns", len(tbl.Columns)),
	)
}

func (l *Loader) xlsxOptions() fetcher.XLSXOptions {
	return fetcher.XLSXOptions{SheetName: l.src.SheetName}
}

func isXLSX(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xlsx")
}

func (l *Loader) parseRemote(ctx context.Context, rawURL string, body io.Reader) (*model.Table, error) {
	u, err := url.Parse(rawURL)
	if err == nil && (isXLSX(u.Path) || u.Query().Get("format") == "xlsx") {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, eris.Wrap(err, "dataset: read workbook")
		}
		header, rows, err := fetcher.ReadXLSXBytes(data, l.xlsxOptions())
		if err != nil {
			return nil, eris.Wrap(err, "dataset: parse workbook")
		}
		return model.NewTable(header, rows), nil
	}

	header, rows, err := fetcher.ReadCSV(ctx, body)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: parse csv export")
	}
	return model.NewTable(header, rows), nil
}

func (l *Loader) readLocal(ctx context.Context, path string) (*model.Table, error) {
	if isXLSX(path) {
		header, rows, err := fetcher.ReadXLSX(path, l.xlsxOptions())
		if err != nil {
			return nil, eris.Wrap(err, "dataset: read workbook")
		}
		return model.NewTable(header, rows), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", path)
	}
	header, rows, err := fetcher.ReadCSV(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: parse %s", path)
	}
	return model.NewTable(header, rows), nil
}

// LoadIndex reads the JSON array of embedded page chunks.
func (l *Loader) LoadIndex(ctx context.Context) (*model.Index, error) {
	var r io.ReadCloser
	switch {
	case l.idx.URL != "":
		body, err := l.fetcher.Download(ctx, l.idx.URL)
		if err != nil {
			return nil, eris.Wrap(err, "dataset: download index")
		}
		r = body
	case l.idx.Path != "":
		f, err := os.Open(l.idx.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: open index %s", l.idx.Path)
		}
		r = f
	default:
		return nil, eris.New("dataset: no index configured")
	}
	defer r.Close() //nolint:errcheck

	chunks, err := fetcher.CollectJSONArray[model.Chunk](ctx, r)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: decode index")
	}

	ix := &model.Index{Chunks: chunks}
	zap.L().Info("dataset: index loaded",
		zap.Int("chunks", len(chunks)),
		zap.Int("documents", len(ix.Docs())),
	)
	return ix, nil
}

// LoadAll loads the table and the index concurrently.
func (l *Loader) LoadAll(ctx context.Context) (*model.Table, *model.Index, error) {
	var (
		tbl *model.Table
		ix  *model.Index
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tbl, err = l.LoadTable(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		ix, err = l.LoadIndex(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return tbl, ix, nil
}
