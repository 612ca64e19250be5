package ingest

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/Jeffail/gabs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inodb/fhir-consensus/internal/fhir"
	"github.com/inodb/fhir-consensus/internal/variant"
)

// patientID matches a valid FHIR resource id.
var patientID = regexp.MustCompile(`^[A-Za-z0-9\-.]{1,64}$`)

// Fetcher downloads one transaction Bundle per patient with variant data.
type Fetcher struct {
	cfg    Config
	client *Client
	logger *zap.Logger
}

// NewFetcher creates a fetcher for cfg.
func NewFetcher(cfg Config) *Fetcher {
	return &Fetcher{
		cfg:    cfg,
		client: NewClient(cfg),
		logger: zap.NewNop(),
	}
}

// Client returns the underlying HTTP client.
func (f *Fetcher) Client() *Client {
	return f.client
}

// SetLogger sets the logger for the fetcher and its client.
func (f *Fetcher) SetLogger(l *zap.Logger) {
	f.logger = l
	f.client.SetLogger(l)
}

// FindPatients searches for Observations with the genetic variant code and
// returns the distinct patient ids they reference, sorted. A failure while
// paging stops the search but keeps the patients found so far.
func (f *Fetcher) FindPatients(ctx context.Context) ([]string, error) {
	u := fmt.Sprintf("%s/Observation?code=%s&_count=%d",
		f.client.BaseURL(), variant.CodeGeneticVariant, f.cfg.PageSize)
	if f.cfg.Since != "" {
		f.logger.Info("filtering for data updated after", zap.String("since", f.cfg.Since))
		u += "&_lastUpdated=" + url.QueryEscape("gt"+f.cfg.Since)
	}

	patients := make(map[string]bool)
	err := f.client.Pages(ctx, u, func(page *gabs.Container) error {
		for _, r := range entries(page) {
			ref := subjectReference(r)
			if id, ok := strings.CutPrefix(ref, "Patient/"); ok && id != "" {
				patients[id] = true
			}
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.Warn("error fetching search list", zap.Error(err))
	}

	ids := make([]string, 0, len(patients))
	for id := range patients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// PatientBundle collects the Patient resource, all of the patient's
// Observations and DiagnosticReports into one transaction Bundle.
// Failures fetching any part are logged and leave that part out.
func (f *Fetcher) PatientBundle(ctx context.Context, pid string) (*fhir.Bundle, error) {
	base := f.client.BaseURL()
	var resources []fhir.Resource

	if p, err := f.client.GetJSON(ctx, fmt.Sprintf("%s/Patient/%s", base, pid)); err != nil {
		f.logger.Warn("error fetching patient", zap.String("patient", pid), zap.Error(err))
	} else if r, ok := p.Data().(map[string]interface{}); ok {
		resources = append(resources, r)
	}

	obsURL := fmt.Sprintf("%s/Observation?patient=%s&_count=%d", base, pid, f.cfg.PageSize)
	err := f.client.Pages(ctx, obsURL, func(page *gabs.Container) error {
		found := entries(page)
		if len(found) > 0 {
			f.logger.Debug("downloaded observations",
				zap.String("patient", pid),
				zap.Int("count", len(found)))
		}
		for _, r := range found {
			resources = append(resources, r)
		}
		return nil
	})
	if err != nil {
		f.logger.Warn("error fetching observations", zap.String("patient", pid), zap.Error(err))
	}

	if d, err := f.client.GetJSON(ctx, fmt.Sprintf("%s/DiagnosticReport?patient=%s", base, pid)); err != nil {
		f.logger.Warn("error fetching reports", zap.String("patient", pid), zap.Error(err))
	} else {
		for _, r := range entries(d) {
			resources = append(resources, r)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fhir.NewTransactionBundle(resources), nil
}

// Run finds all patients with variant data and writes one bundle per
// patient to <OutDir>/<id>.fhir.json. It returns the written paths, sorted.
func (f *Fetcher) Run(ctx context.Context) ([]string, error) {
	if err := f.cfg.Validate(); err != nil {
		return nil, err
	}

	f.logger.Info("connecting to FHIR server", zap.String("url", f.client.BaseURL()))
	ids, err := f.FindPatients(ctx)
	if err != nil {
		return nil, err
	}
	f.logger.Info("found patients with variant data", zap.Int("patients", len(ids)))

	var (
		mu    sync.Mutex
		paths []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(f.cfg.Concurrency, 1))

	for _, id := range ids {
		if !patientID.MatchString(id) || id == "." || id == ".." {
			f.logger.Warn("skipping invalid patient id", zap.String("patient", id))
			continue
		}

		id := id // per-iteration copy; go directive is below 1.22
		g.Go(func() error {
			b, err := f.PatientBundle(gctx, id)
			if err != nil {
				return fmt.Errorf("fetch patient %s: %w", id, err)
			}

			path := filepath.Join(f.cfg.OutDir, id+".fhir.json")
			if err := fhir.WriteBundle(path, b); err != nil {
				return fmt.Errorf("save patient %s: %w", id, err)
			}
			f.logger.Info("saved bundle",
				zap.String("patient", id),
				zap.Int("resources", len(b.Entry)),
				zap.String("path", path))

			mu.Lock()
			paths = append(paths, path)
			mu.Unlock()
			return nil
		})
	}

	err = g.Wait()
	sort.Strings(paths)
	return paths, err
}

// subjectReference returns resource.subject.reference, or "".
func subjectReference(r map[string]interface{}) string {
	subj, ok := r["subject"].(map[string]interface{})
	if !ok {
		return ""
	}
	ref, _ := subj["reference"].(string)
	return ref
}
