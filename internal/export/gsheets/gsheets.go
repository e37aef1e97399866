// Package gsheets exports a week by copying a Google Sheets template with
// the Drive API and filling the copy in one batch values update.
package gsheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	drive "google.golang.org/api/drive/v3"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"expenses/internal/core"
	"expenses/internal/export"
)

type Config struct {
	TemplateSpreadsheetID string
	// FolderID is the Drive folder new copies are placed in. Empty keeps
	// Drive's default (the service account's root).
	FolderID string
	// ServiceAccountJSON wins over ServiceAccountFile.
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Exporter struct {
	sheets     *gsheet.Service
	drive      *drive.Service
	templateID string
	folderID   string
}

// New builds the Sheets and Drive services. Extra opts are appended after
// the credential options, so tests can point both at a local endpoint.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Exporter, error) {
	if strings.TrimSpace(cfg.TemplateSpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_TEMPLATE_SPREADSHEET_ID")
	}
	base := opts
	if len(opts) == 0 {
		creds, err := credentialOptions(ctx, cfg)
		if err != nil {
			return nil, err
		}
		base = append(creds, goption.WithHTTPClient(newHTTPClientWithPooling()))
	}

	sheetsSvc, err := gsheet.NewService(ctx, base...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	driveSvc, err := drive.NewService(ctx, base...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Exporter{
		sheets:     sheetsSvc,
		drive:      driveSvc,
		templateID: cfg.TemplateSpreadsheetID,
		folderID:   cfg.FolderID,
	}, nil
}

// credentialOptions resolves service account credentials from inline JSON,
// a file, or GOOGLE_APPLICATION_CREDENTIALS.
func credentialOptions(ctx context.Context, cfg Config) ([]goption.ClientOption, error) {
	inline := strings.TrimSpace(cfg.ServiceAccountJSON)
	file := strings.TrimSpace(cfg.ServiceAccountFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case inline != "":
		credentialsJSON = []byte(inline)
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	slog.InfoContext(ctx, "Using service account credentials", "inline", inline != "", "size", len(credentialsJSON))
	return []goption.ClientOption{
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope, drive.DriveFileScope),
	}, nil
}

// newHTTPClientWithPooling keeps connections to Google APIs warm between exports.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Client{
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   5,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ForceAttemptHTTP2:     true,
		},
		Timeout: 60 * time.Second,
	}
}

// Export copies the template, fills the copy with rec and returns the new
// spreadsheet id.
func (e *Exporter) Export(ctx context.Context, rec core.ExpenseRecord) (string, error) {
	copyMeta := &drive.File{Name: core.FileBaseName(rec)}
	if e.folderID != "" {
		copyMeta.Parents = []string{e.folderID}
	}
	copied, err := e.drive.Files.Copy(e.templateID, copyMeta).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("copy template: %w", err)
	}

	sheet, err := e.firstSheet(ctx, copied.Id)
	if err != nil {
		return copied.Id, err
	}
	cells, err := export.Cells(rec, e.readRate(ctx, copied.Id, sheet))
	if err != nil {
		return copied.Id, err
	}

	req := &gsheet.BatchUpdateValuesRequest{ValueInputOption: "USER_ENTERED"}
	for _, c := range cells {
		req.Data = append(req.Data, &gsheet.ValueRange{
			Range:  a1(sheet, c.Addr),
			Values: [][]interface{}{{c.Value}},
		})
	}
	if _, err := e.sheets.Spreadsheets.Values.BatchUpdate(copied.Id, req).Context(ctx).Do(); err != nil {
		return copied.Id, fmt.Errorf("fill copy %s: %w", copied.Id, err)
	}

	slog.InfoContext(ctx, "Exported week to Google Sheets",
		"namespace", rec.Namespace,
		"weekEnding", rec.WeekEnding,
		"spreadsheet_id", copied.Id,
		"cells", len(cells))
	return copied.Id, nil
}

func (e *Exporter) firstSheet(ctx context.Context, spreadsheetID string) (string, error) {
	ss, err := e.sheets.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("read spreadsheet %s: %w", spreadsheetID, err)
	}
	if len(ss.Sheets) == 0 || ss.Sheets[0].Properties == nil {
		return "", fmt.Errorf("spreadsheet %s has no sheets", spreadsheetID)
	}
	return ss.Sheets[0].Properties.Title, nil
}

// readRate takes the mileage rate from the copy, falling back to the default
// on any error.
func (e *Exporter) readRate(ctx context.Context, spreadsheetID, sheet string) float64 {
	vr, err := e.sheets.Spreadsheets.Values.Get(spreadsheetID, a1(sheet, export.RateCell)).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil || len(vr.Values) == 0 || len(vr.Values[0]) == 0 {
		return export.RateFrom(0)
	}
	switch v := vr.Values[0][0].(type) {
	case float64:
		return export.RateFrom(v)
	case string:
		n, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return export.RateFrom(n)
	}
	return export.RateFrom(0)
}

func a1(sheet, addr string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + addr
}
