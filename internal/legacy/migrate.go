// Package legacy rewrites records saved under older key layouts into the
// two-part "expenses:<namespace>:<weekEnding>" scheme. It runs offline from
// expensesctl; request handlers only ever see the two-part scheme.
//
// Layouts handled:
//
//	expenses:<sync>                   body carries weekEnding
//	expenses:<YYYY-MM-DD>__<name>     identity encoded in the id
//	expenses:<sync>:<weekEnding>      body nested under "data"
package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"expenses/internal/core"
	"expenses/internal/kv"
)

var ErrNoWeekEnding = errors.New("legacy record has no usable weekEnding")

// identityFields are legacy body fields folded into the key and dropped.
var identityFields = []string{"data", "sync", "syncName", "id"}

type Options struct {
	// DryRun reports what would change without writing.
	DryRun bool
	// Keep leaves the legacy key in place after copying.
	Keep bool
	// Overwrite replaces an existing two-part record at the target key.
	Overwrite bool
}

// Action describes what happened to one legacy key.
type Action struct {
	From   string `json:"from"`
	To     string `json:"to,omitempty"`
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

const (
	ResultMigrated  = "migrated"
	ResultFlattened = "flattened"
	ResultConflict  = "conflict"
	ResultFailed    = "failed"
)

type Report struct {
	Scanned int      `json:"scanned"`
	Actions []Action `json:"actions"`
}

// Count returns how many actions ended with result.
func (r Report) Count(result string) int {
	n := 0
	for _, a := range r.Actions {
		if a.Result == result {
			n++
		}
	}
	return n
}

type Migrator struct {
	kv       kv.Store
	now      func() time.Time
	pageSize int
}

func NewMigrator(store kv.Store, pageSize int) *Migrator {
	return &Migrator{kv: store, now: time.Now, pageSize: pageSize}
}

// Run scans every expenses: key once. Per-key failures are recorded in the
// report; only listing errors abort the run.
func (m *Migrator) Run(ctx context.Context, opts Options) (Report, error) {
	keys, err := kv.ListAll(ctx, m.kv, core.KeyPrefix, m.pageSize)
	if err != nil {
		return Report{}, fmt.Errorf("scan legacy keys: %w", err)
	}
	var rep Report
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Scanned++
		act, ok := m.migrateKey(ctx, key, opts)
		if !ok {
			continue
		}
		if act.Result == ResultFailed {
			slog.WarnContext(ctx, "Legacy key not migrated", "key", key, "error", act.Error)
		} else {
			slog.InfoContext(ctx, "Legacy key processed", "from", act.From, "to", act.To, "result", act.Result, "dry_run", opts.DryRun)
		}
		rep.Actions = append(rep.Actions, act)
	}
	return rep, nil
}

// migrateKey returns ok=false for keys that are already in the current layout.
func (m *Migrator) migrateKey(ctx context.Context, key string, opts Options) (Action, bool) {
	act := Action{From: key}
	fail := func(err error) (Action, bool) {
		act.Result, act.Error = ResultFailed, err.Error()
		return act, true
	}

	raw, found, err := m.kv.Get(ctx, key)
	if err != nil {
		return fail(err)
	}
	if !found {
		return act, false
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fail(fmt.Errorf("decode body: %w", err))
	}

	if ns, we, ok := core.SplitKey(key); ok {
		if _, nested := fields["data"]; !nested {
			return act, false
		}
		rec, err := Flatten(fields, ns, we)
		if err != nil {
			return fail(err)
		}
		act.To, act.Result = key, ResultFlattened
		if opts.DryRun {
			return act, true
		}
		if err := m.write(ctx, key, rec); err != nil {
			return fail(err)
		}
		return act, true
	}

	id := strings.TrimPrefix(key, core.KeyPrefix)
	if strings.Contains(id, ":") {
		return act, false
	}
	ns, we, err := Identity(id, fields)
	if err != nil {
		return fail(err)
	}
	rec, err := Flatten(fields, ns, we)
	if err != nil {
		return fail(err)
	}
	target := core.RecordKey(ns, we)
	act.To = target

	if !opts.Overwrite {
		_, exists, err := m.kv.Get(ctx, target)
		if err != nil {
			return fail(fmt.Errorf("check target: %w", err))
		}
		if exists {
			act.Result = ResultConflict
			return act, true
		}
	}
	act.Result = ResultMigrated
	if opts.DryRun {
		return act, true
	}
	if err := m.write(ctx, target, rec); err != nil {
		return fail(err)
	}
	if !opts.Keep {
		if err := m.kv.Delete(ctx, key); err != nil {
			return fail(fmt.Errorf("delete legacy key: %w", err))
		}
	}
	return act, true
}

func (m *Migrator) write(ctx context.Context, key string, rec core.ExpenseRecord) error {
	now := core.Timestamp(m.now())
	if rec.CreatedAt == "" {
		rec.CreatedAt = rec.UpdatedAt
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	raw, err := core.EncodeRecord(rec)
	if err != nil {
		return err
	}
	return m.kv.Put(ctx, key, raw)
}

// Identity resolves namespace and week ending for a single-part legacy id.
func Identity(id string, fields map[string]json.RawMessage) (string, string, error) {
	inner := nestedFields(fields)

	var idDate, idName string
	if d, name, ok := strings.Cut(id, "__"); ok && core.IsWeekEnding(d) {
		idDate, idName = d, name
	} else if core.IsWeekEnding(id) {
		idDate = id
	}

	ns := firstString(fields, inner, "sync", "syncName", "namespace")
	if ns == "" {
		ns = idName
	}
	if ns == "" {
		ns = id
	}
	we := firstString(fields, inner, "weekEnding")
	if we == "" {
		we = idDate
	}

	ns, we, err := core.NormalizeIdentity(ns, we)
	if err != nil {
		if errors.Is(err, core.ErrMissingNamespace) {
			return "", "", err
		}
		return "", "", fmt.Errorf("%w: %v", ErrNoWeekEnding, err)
	}
	return ns, we, nil
}

// Flatten lifts a nested "data" object to the top level, drops legacy
// identity fields and stamps the given identity.
func Flatten(fields map[string]json.RawMessage, namespace, weekEnding string) (core.ExpenseRecord, error) {
	flat := make(map[string]json.RawMessage, len(fields))
	for k, v := range nestedFields(fields) {
		flat[k] = v
	}
	for k, v := range fields {
		if _, set := flat[k]; !set || isBlank(flat[k]) {
			flat[k] = v
		}
	}
	for _, k := range identityFields {
		delete(flat, k)
	}
	b, err := json.Marshal(flat)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	rec, err := core.DecodeRecord(b)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	rec.Namespace = namespace
	rec.WeekEnding = weekEnding
	return rec, nil
}

func nestedFields(fields map[string]json.RawMessage) map[string]json.RawMessage {
	inner := map[string]json.RawMessage{}
	if raw, ok := fields["data"]; ok {
		// Non-object data is ignored.
		_ = json.Unmarshal(raw, &inner)
	}
	return inner
}

func firstString(outer, inner map[string]json.RawMessage, names ...string) string {
	for _, src := range []map[string]json.RawMessage{outer, inner} {
		for _, n := range names {
			var s string
			if raw, ok := src[n]; ok && json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func isBlank(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null" || s == `""` || s == "{}"
}
