package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"expenses/internal/auth"
	"expenses/internal/backend"
	"expenses/internal/config"
	"expenses/internal/core"
	"expenses/internal/export/gsheets"
	"expenses/internal/export/xlsx"
	"expenses/internal/form"
	"expenses/internal/kv"
	"expenses/internal/legacy"
	"expenses/internal/listing"
	"expenses/internal/records"
)

// App carries what every subcommand needs. Store is opened on first use
// unless a test has already set it.
type App struct {
	In     io.Reader
	Out    io.Writer
	Logger *slog.Logger
	Config *config.Config
	Store  kv.Store

	backend   *backend.BackendResult
	closeOnce sync.Once
}

func (a *App) config() *config.Config {
	if a.Config == nil {
		a.Config = config.Load()
	}
	return a.Config
}

func (a *App) pageSize() int {
	if n := a.config().ListPageSize; n > 0 {
		return n
	}
	return 1000
}

func (a *App) store(ctx context.Context) (kv.Store, error) {
	if a.Store != nil {
		return a.Store, nil
	}
	cfg, err := backend.FromAppConfig(a.config())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Type == backend.MemoryBackend {
		return nil, errors.New("STORE_DRIVER=memory has nothing to inspect from the command line")
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.backend = res
	a.Store = res.Store
	return a.Store, nil
}

func (a *App) Close() {
	a.closeOnce.Do(func() {
		if err := a.backend.Close(); err != nil && a.Logger != nil {
			a.Logger.Error("Failed to close store", "error", err)
		}
	})
}

func (a *App) records(ctx context.Context) (*records.Store, error) {
	s, err := a.store(ctx)
	if err != nil {
		return nil, err
	}
	return records.New(s, records.WithPageSize(a.pageSize())), nil
}

func (a *App) listing(ctx context.Context) (*listing.Service, error) {
	s, err := a.store(ctx)
	if err != nil {
		return nil, err
	}
	return listing.New(s,
		listing.WithPageSize(a.pageSize()),
		listing.WithFetchConcurrency(a.config().ListFetchConcurrency)), nil
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ago renders a stored timestamp relative to now, or "-" when unparsable.
func ago(ts string) string {
	t, err := time.Parse(core.TimestampLayout, ts)
	if err != nil {
		return "-"
	}
	return humanize.Time(t)
}

func money(f float64) string {
	if f == 0 {
		return ""
	}
	return "$" + humanize.CommafWithDigits(f, 2)
}

func (a *App) ListWeeks(ctx context.Context, namespace string, asJSON bool) error {
	svc, err := a.listing(ctx)
	if err != nil {
		return err
	}
	weeks, err := svc.ListWeeks(ctx, namespace)
	if err != nil {
		return err
	}
	if asJSON {
		return a.printJSON(weeks)
	}
	tw := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WEEK ENDING\tPURPOSE\tUPDATED")
	for _, w := range weeks {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", w.WeekEnding, w.BusinessPurpose, ago(w.UpdatedAt))
	}
	return tw.Flush()
}

func (a *App) ListNamespaces(ctx context.Context, asJSON bool) error {
	svc, err := a.listing(ctx)
	if err != nil {
		return err
	}
	all, err := svc.ListNamespaces(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return a.printJSON(all)
	}
	tw := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYNC\tWEEKS\tLATEST")
	for _, n := range all {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", n.Namespace, n.Weeks, n.LatestWeekEnding)
	}
	return tw.Flush()
}

// loadWeek fetches a saved week or fails with a readable error.
func (a *App) loadWeek(ctx context.Context, namespace, weekEnding string) (core.ExpenseRecord, error) {
	rs, err := a.records(ctx)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	var (
		rec *core.ExpenseRecord
		ok  bool
	)
	if weekEnding == "" {
		rec, ok, err = rs.MostRecent(ctx, namespace)
	} else {
		rec, ok, err = rs.Get(ctx, namespace, weekEnding)
	}
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	if !ok {
		return core.ExpenseRecord{}, fmt.Errorf("no saved week for %q %s", namespace, weekEnding)
	}
	return *rec, nil
}

// resolveWeek turns --week or --sunday into a week ending. A Sunday is
// returned alongside so the record keeps the day the form started from.
func (a *App) resolveWeek(weekEnding, sunday string) (string, string, error) {
	weekEnding, sunday = strings.TrimSpace(weekEnding), strings.TrimSpace(sunday)
	switch {
	case weekEnding != "" && sunday != "":
		return "", "", errors.New("use --week or --sunday, not both")
	case sunday != "":
		we, err := core.WeekEndingFor(sunday)
		if err != nil {
			return "", "", fmt.Errorf("%w: sunday %q", core.ErrInvalidWeekEnding, sunday)
		}
		weekEnding = we
	}
	if weekEnding != "" && core.IsWeekEnding(weekEnding) && !core.IsSaturday(weekEnding) {
		fmt.Fprintf(a.Out, "warning: week ending %s is not a Saturday\n", weekEnding)
	}
	return weekEnding, sunday, nil
}

// Show prints the week as the form lays it out, with computed mileage and totals.
func (a *App) Show(ctx context.Context, namespace, weekEnding, sunday string) error {
	weekEnding, _, err := a.resolveWeek(weekEnding, sunday)
	if err != nil {
		return err
	}
	rec, err := a.loadWeek(ctx, namespace, weekEnding)
	if err != nil {
		return err
	}
	st := form.NewState(nil)
	st.Load(rec)
	a.printState(st)
	return nil
}

func (a *App) printState(st *form.State) {
	days, datesErr := core.WeekDates(st.WeekEnding, st.SundayDate)
	fmt.Fprintf(a.Out, "Week ending %s", st.WeekEnding)
	if st.BusinessPurpose != "" {
		fmt.Fprintf(a.Out, " - %s", st.BusinessPurpose)
	}
	fmt.Fprintln(a.Out)

	tw := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', tabwriter.AlignRight)
	header := []string{"ROW", "LABEL"}
	for d := 0; d < form.Days; d++ {
		label := form.Columns[d]
		if datesErr == nil {
			label = days[d].Format("Mon 1/2")
		}
		header = append(header, label)
	}
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")
	for _, r := range st.Layout {
		cols := []string{strconv.Itoa(r.Number), r.Label}
		for d := 0; d < form.Days; d++ {
			switch {
			case r.Computed:
				cols = append(cols, money(st.Mileage(d)))
			case r.Kind == form.KindCurrency:
				cols = append(cols, money(form.ParseNumber(st.Value(r.Number, d))))
			default:
				cols = append(cols, st.Value(r.Number, d))
			}
		}
		fmt.Fprintln(tw, strings.Join(cols, "\t")+"\t")
	}
	totals := []string{"", "TOTAL"}
	for d := 0; d < form.Days; d++ {
		totals = append(totals, money(st.DayTotal(d)))
	}
	fmt.Fprintln(tw, strings.Join(totals, "\t")+"\t")
	_ = tw.Flush()
	fmt.Fprintf(a.Out, "Week total: %s\n", money(st.WeekTotal()))
}

// Edit applies line commands from In to a week and saves it. Saves are
// debounced so a burst of edits becomes one write; the last edit is always
// flushed before returning. Commands:
//
//	set ROW DAY VALUE   (DAY is 0-6 from Sunday, or SUN..SAT)
//	purpose TEXT
//	clear ROW DAY
//	show
func (a *App) Edit(ctx context.Context, namespace, weekEnding, sunday string, delay time.Duration) error {
	weekEnding, sunday, err := a.resolveWeek(weekEnding, sunday)
	if err != nil {
		return err
	}
	ns, we, err := core.NormalizeIdentity(namespace, weekEnding)
	if err != nil {
		return err
	}
	rs, err := a.records(ctx)
	if err != nil {
		return err
	}
	st := form.NewState(nil)
	if rec, ok, err := rs.Get(ctx, ns, we); err != nil {
		return err
	} else if ok {
		st.Load(*rec)
	} else {
		st.WeekEnding = we
	}
	if sunday != "" {
		st.SundayDate = sunday
	}

	var (
		mu      sync.Mutex
		saveErr error
	)
	save := func() {
		mu.Lock()
		defer mu.Unlock()
		if _, err := rs.Put(ctx, ns, we, st.Record(ns)); err != nil {
			saveErr = err
			return
		}
		saveErr = nil
		fmt.Fprintln(a.Out, "saved")
	}
	autosave := form.NewDebouncer(delay, save)
	defer autosave.Stop()

	scanner := bufio.NewScanner(a.In)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		mu.Lock()
		changed, err := applyEdit(st, line)
		if err == nil && line == "show" {
			a.printState(st)
		}
		mu.Unlock()
		if err != nil {
			fmt.Fprintln(a.Out, "error:", err)
			continue
		}
		if changed {
			autosave.Trigger()
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	autosave.Flush()
	mu.Lock()
	defer mu.Unlock()
	return saveErr
}

var dayNames = map[string]int{"SUN": 0, "MON": 1, "TUE": 2, "WED": 3, "THU": 4, "FRI": 5, "SAT": 6}

func parseDay(s string) (int, error) {
	if d, ok := dayNames[strings.ToUpper(s)]; ok {
		return d, nil
	}
	d, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad day %q", s)
	}
	return d, nil
}

// applyEdit runs one edit command and reports whether the week changed.
func applyEdit(st *form.State, line string) (bool, error) {
	cmd, rest, _ := strings.Cut(line, " ")
	switch strings.ToLower(cmd) {
	case "show":
		return false, nil
	case "purpose":
		st.BusinessPurpose = strings.TrimSpace(rest)
		return true, nil
	case "set", "clear":
		fields := strings.SplitN(strings.TrimSpace(rest), " ", 3)
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: %s ROW DAY", cmd)
		}
		row, err := strconv.Atoi(fields[0])
		if err != nil {
			return false, fmt.Errorf("bad row %q", fields[0])
		}
		day, err := parseDay(fields[1])
		if err != nil {
			return false, err
		}
		value := ""
		if strings.EqualFold(cmd, "set") {
			if len(fields) < 3 {
				return false, errors.New("usage: set ROW DAY VALUE")
			}
			value = fields[2]
		}
		if err := st.Set(row, day, value); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", cmd)
	}
}

// ExportXLSX fills the template with a saved week and writes it to out, or
// to the week's file name when out is empty. It returns the written path.
func (a *App) ExportXLSX(ctx context.Context, namespace, weekEnding, template, out string) (string, error) {
	if template == "" {
		template = a.config().TemplatePath
	}
	exporter := xlsx.New(template)
	if !exporter.Enabled() {
		return "", xlsx.ErrNoTemplate
	}
	rec, err := a.loadWeek(ctx, namespace, weekEnding)
	if err != nil {
		return "", err
	}
	if out == "" {
		out = xlsx.FileName(rec)
	}
	f, err := os.Create(out)
	if err != nil {
		return "", err
	}
	if err := exporter.Export(rec, f); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return out, nil
}

// ExportSheets copies the Google Sheets template for a saved week and
// returns the new spreadsheet id.
func (a *App) ExportSheets(ctx context.Context, namespace, weekEnding string) (string, error) {
	rec, err := a.loadWeek(ctx, namespace, weekEnding)
	if err != nil {
		return "", err
	}
	cfg := a.config()
	exporter, err := gsheets.New(ctx, gsheets.Config{
		TemplateSpreadsheetID: cfg.GoogleTemplateSpreadsheetID,
		FolderID:              cfg.GoogleExportFolderID,
		ServiceAccountJSON:    cfg.GoogleServiceAccountJSON,
		ServiceAccountFile:    cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return "", err
	}
	return exporter.Export(ctx, rec)
}

func (a *App) MigrateLegacy(ctx context.Context, opts legacy.Options, asJSON bool) error {
	s, err := a.store(ctx)
	if err != nil {
		return err
	}
	rep, err := legacy.NewMigrator(s, a.pageSize()).Run(ctx, opts)
	if err != nil {
		return err
	}
	if asJSON {
		return a.printJSON(rep)
	}
	tw := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tTO\tRESULT\tERROR")
	for _, act := range rep.Actions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", act.From, act.To, act.Result, act.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	prefix := ""
	if opts.DryRun {
		prefix = "dry run: "
	}
	fmt.Fprintf(a.Out, "%sscanned %d keys, migrated %d, flattened %d, conflicts %d, failed %d\n",
		prefix, rep.Scanned,
		rep.Count(legacy.ResultMigrated), rep.Count(legacy.ResultFlattened),
		rep.Count(legacy.ResultConflict), rep.Count(legacy.ResultFailed))
	return nil
}

// Token issues an API token for the configured user without a login round trip.
func (a *App) Token() (string, error) {
	cfg := a.config()
	if !cfg.AuthEnabled() {
		return "", errors.New("auth is disabled: set AUTH_USER and AUTH_PASS")
	}
	if cfg.TokenSecret == "" {
		return "", errors.New("TOKEN_SECRET is required to issue tokens")
	}
	return auth.New(cfg.AuthUser, cfg.AuthPass, cfg.TokenSecret, cfg.TokenTTL).Issue(cfg.AuthUser)
}
