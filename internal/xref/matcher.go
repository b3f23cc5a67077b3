package xref

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/jobs"
	"github.com/sells-group/lead-intel/internal/model"
)

// OwnerReader loads owners with their locations.
type OwnerReader interface {
	GetOwner(ctx context.Context, id int64) (*model.Owner, error)
	AllOwners(ctx context.Context) ([]model.Owner, error)
}

// CustomerSource lists the CRM customer set.
type CustomerSource interface {
	ListCustomers(ctx context.Context) ([]model.Customer, error)
}

// Linker persists an authoritative match. It reports whether a link was
// written and whether the owner was converted by it.
type Linker interface {
	LinkFromMatch(ctx context.Context, ownerID, customerID int64) (linked, converted bool, err error)
}

// Stats summarizes a cross-reference run.
type Stats struct {
	JobID          string  `json:"job_id,omitempty"`
	TotalOwners    int     `json:"total_owners"`
	Linked         int     `json:"linked"`
	LinkPercentage float64 `json:"link_percentage"`
	NewLinks       int     `json:"new_links"`
	AutoConverted  int     `json:"auto_converted"`
	EmailMatches   int     `json:"email_matches"`
	NameMatches    int     `json:"name_matches"`
	Failed         int     `json:"failed"`
}

// Matcher runs matching against live data.
type Matcher struct {
	owners    OwnerReader
	customers CustomerSource
	linker    Linker
	jobs      jobs.Store
}

// NewMatcher wires a Matcher.
func NewMatcher(owners OwnerReader, customers CustomerSource, linker Linker, js jobs.Store) *Matcher {
	return &Matcher{owners: owners, customers: customers, linker: linker, jobs: js}
}

func (m *Matcher) index(ctx context.Context) (*Index, error) {
	customers, err := m.customers.ListCustomers(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "xref: list customers")
	}
	return NewIndex(customers), nil
}

// MatchOwner returns the best match for one owner without changing it.
func (m *Matcher) MatchOwner(ctx context.Context, ownerID int64) (Match, error) {
	o, err := m.owners.GetOwner(ctx, ownerID)
	if err != nil {
		return Match{}, err
	}
	idx, err := m.index(ctx)
	if err != nil {
		return Match{}, err
	}
	return idx.Match(o), nil
}

// Run matches every owner. Document hits on unlinked owners are persisted
// through the Linker; owners that already hold a link keep it. Advisory
// matches are only counted. A failure to link one owner is tallied and the
// run continues.
func (m *Matcher) Run(ctx context.Context) (*Stats, error) {
	log := zap.L().With(zap.String("component", "xref"))

	tracker, err := jobs.Start(ctx, m.jobs, model.JobXref, 0)
	if err != nil {
		return nil, err
	}

	stats, err := m.run(ctx, tracker, log)
	job := tracker.Finish(ctx, err)
	if err != nil {
		return nil, err
	}
	stats.JobID = job.ID

	log.Info("xref: run complete",
		zap.Int("total_owners", stats.TotalOwners),
		zap.Int("linked", stats.Linked),
		zap.Int("new_links", stats.NewLinks),
		zap.Int("email_matches", stats.EmailMatches),
		zap.Int("name_matches", stats.NameMatches),
	)
	return stats, nil
}

func (m *Matcher) run(ctx context.Context, tracker *jobs.Tracker, log *zap.Logger) (*Stats, error) {
	idx, err := m.index(ctx)
	if err != nil {
		return nil, err
	}
	owners, err := m.owners.AllOwners(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "xref: list owners")
	}
	tracker.SetTotal(len(owners))

	stats := &Stats{TotalOwners: len(owners)}
	for i := range owners {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "xref: run canceled")
		}
		o := &owners[i]
		if o.Linked() {
			stats.Linked++
			tracker.Add(0, 0, 1)
			continue
		}

		match := idx.Match(o)
		switch {
		case match.Authoritative():
			linked, converted, err := m.linker.LinkFromMatch(ctx, o.ID, *match.CustomerID)
			if err != nil {
				log.Warn("xref: link failed", zap.Int64("owner_id", o.ID), zap.Error(err))
				stats.Failed++
				tracker.Add(0, 1, 0)
				continue
			}
			if linked {
				stats.NewLinks++
			}
			if converted {
				stats.AutoConverted++
			}
			// A lost race still leaves the owner linked by someone.
			stats.Linked++
			tracker.Add(1, 0, 0)
		case match.Method == MethodEmail:
			stats.EmailMatches++
			tracker.Add(0, 0, 1)
		case match.Method == MethodNameCity:
			stats.NameMatches++
			tracker.Add(0, 0, 1)
		default:
			tracker.Add(0, 0, 1)
		}
	}
	if stats.TotalOwners > 0 {
		stats.LinkPercentage = roundPct(float64(stats.Linked) / float64(stats.TotalOwners) * 100)
	}
	return stats, nil
}

func roundPct(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
