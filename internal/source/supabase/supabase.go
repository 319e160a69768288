// Package supabase reads rows from a Supabase table through its REST
// (PostgREST) endpoint, for deployments where the database port is not exposed.
package supabase

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/crimson-sun/sluice/internal/httpclient"
	"github.com/crimson-sun/sluice/internal/model"
	"github.com/crimson-sun/sluice/internal/source"
)

const defaultPageSize = 1000

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func init() {
	source.Register("supabase", func(cfg source.Config) (source.Source, error) {
		return New(cfg)
	})
}

// Source implements source.Source for one Supabase table.
type Source struct {
	client   *httpclient.Client
	path     string
	cols     source.Columns
	pageSize int
}

// New validates cfg and builds a REST client. The endpoint defaults to
// https://<project_ref>.supabase.co.
func New(cfg source.Config) (*Source, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase source: missing API key")
	}
	if !identRe.MatchString(cfg.Table) {
		return nil, fmt.Errorf("supabase source: invalid table name %q", cfg.Table)
	}
	cols := cfg.Columns.WithDefaults()
	for _, c := range cols.List() {
		if !identRe.MatchString(c) {
			return nil, fmt.Errorf("supabase source: invalid column name %q", c)
		}
	}

	baseURL := strings.TrimRight(cfg.Endpoint, "/")
	if baseURL == "" {
		ref := cfg.Extra["project_ref"]
		if ref == "" {
			return nil, fmt.Errorf("supabase source: missing required config key \"project_ref\" in Extra")
		}
		baseURL = "https://" + ref + ".supabase.co"
	}

	pageSize := defaultPageSize
	if raw := cfg.Extra["page_size"]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			pageSize = n
		}
	}

	return &Source{
		client:   httpclient.New(baseURL, cfg.APIKey, httpclient.WithHeader("apikey", cfg.APIKey)),
		path:     "/rest/v1/" + cfg.Table,
		cols:     cols,
		pageSize: pageSize,
	}, nil
}

// buildQuery returns the PostgREST query for one page.
func (s *Source) buildQuery(cursor time.Time, offset int) url.Values {
	q := url.Values{}
	q.Set("select", strings.Join(s.cols.List(), ","))
	q.Set(s.cols.Timestamp, "gt."+cursor.UTC().Format(time.RFC3339Nano))
	q.Set("order", s.cols.Timestamp+".asc,"+s.cols.ID+".asc")
	q.Set("limit", strconv.Itoa(s.pageSize))
	q.Set("offset", strconv.Itoa(offset))
	return q
}

// Query pages through all rows newer than cursor. PostgREST may return fewer
// rows than requested when its max-rows cap is below the page size, so only
// an empty page ends the scan.
func (s *Source) Query(ctx context.Context, cursor time.Time) ([]model.Row, error) {
	var results []model.Row
	for offset := 0; ; {
		var page []map[string]any
		if err := s.client.GetJSON(ctx, s.path, s.buildQuery(cursor, offset), &page); err != nil {
			return nil, fmt.Errorf("supabase source: %w", err)
		}
		if len(page) == 0 {
			break
		}
		offset += len(page)
		for _, rec := range page {
			row, err := s.toRow(rec)
			if err != nil {
				return nil, fmt.Errorf("supabase source: %w", err)
			}
			results = append(results, row)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp.Before(results[j].Timestamp)
	})
	return results, nil
}

func (s *Source) Close() error { return nil }

func (s *Source) toRow(rec map[string]any) (model.Row, error) {
	ts, err := parseTimestamp(rec[s.cols.Timestamp])
	if err != nil {
		return model.Row{}, err
	}
	return model.Row{
		ID:        stringify(rec[s.cols.ID]),
		Message:   stringify(rec[s.cols.Message]),
		Severity:  stringify(rec[s.cols.Severity]),
		Source:    stringify(rec[s.cols.Source]),
		Timestamp: ts,
	}, nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func parseTimestamp(v any) (time.Time, error) {
	switch x := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
			if t, err := time.Parse(layout, x); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", x)
	case float64:
		// Numeric timestamps are microseconds since the epoch.
		micros := int64(x)
		return time.UnixMicro(micros).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("missing or unsupported timestamp %v", v)
	}
}
