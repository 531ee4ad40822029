// Package selection decides which recordings enter the weekly audit pool.
package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/CallAudit/internal/metrics"
	"github.com/MikeSquared-Agency/CallAudit/internal/store"
	"github.com/MikeSquared-Agency/CallAudit/internal/week"
)

// Source is the part of the store the selector reads and writes.
type Source interface {
	ListCandidates(ctx context.Context, from, to time.Time) ([]*store.Recording, error)
	ListSelections(ctx context.Context, filter store.SelectionFilter) ([]*store.Selection, error)
	CreateSelection(ctx context.Context, sel *store.Selection) error
}

type Policy struct {
	ExemptClient       string
	ExemptProjectIDs   []int
	UnknownAgentID     string
	MinDurationSeconds int
	MinFileSizeBytes   int64
	InsertConcurrency  int
}

func DefaultPolicy() Policy {
	return Policy{
		ExemptClient:       "lv",
		ExemptProjectIDs:   []int{34, 35},
		UnknownAgentID:     "-1",
		MinDurationSeconds: 60,
		MinFileSizeBytes:   10240,
		InsertConcurrency:  4,
	}
}

type ClientBreakdown struct {
	Quota     Quota `json:"quota"`
	Selected  int   `json:"selected"`
	Skipped   int   `json:"skipped"`
	Available int   `json:"available"`
}

// Result summarises one selection run.
type Result struct {
	Date            string                      `json:"date"`
	Week            week.Window                 `json:"week"`
	Inserted        int                         `json:"inserted"`
	Skipped         int                         `json:"skipped"`
	AlreadySelected int                         `json:"already_selected"`
	TotalAgents     int                         `json:"total_agents"`
	RemainingDays   int                         `json:"remaining_days"`
	Quotas          map[string]Quota            `json:"quotas"`
	Breakdown       map[string]*ClientBreakdown `json:"breakdown"`
}

type Selector struct {
	source  Source
	policy  Policy
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

func New(src Source, policy Policy, m *metrics.Metrics, logger *slog.Logger) *Selector {
	return &Selector{
		source:  src,
		policy:  policy,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// WithRand replaces the random source, for reproducible runs.
func (s *Selector) WithRand(r *rand.Rand) *Selector {
	s.rngMu.Lock()
	s.rng = r
	s.rngMu.Unlock()
	return s
}

func (s *Selector) WithClock(now func() time.Time) *Selector {
	s.now = now
	return s
}

func (s *Selector) Policy() Policy {
	return s.policy
}

// clientPlan is the ordered list of picks for one client.
type clientPlan struct {
	client    string
	exempt    bool
	quota     Quota
	available int
	picks     []*store.Recording
}

// SelectForDay selects recordings filed on date for the audit week that
// contains it. A zero date means the default reference day. Inserts that
// collide with an existing selection are counted as skipped, so the run is
// safe to repeat.
func (s *Selector) SelectForDay(ctx context.Context, date time.Time) (*Result, error) {
	res, err := s.selectForDay(ctx, date)
	s.metrics.RecordRun(err)
	return res, err
}

func (s *Selector) selectForDay(ctx context.Context, date time.Time) (*Result, error) {
	day := week.Day(date)
	if date.IsZero() {
		day = week.DefaultReference(s.now())
	}
	w := week.Compute(day)

	candidates, err := s.source.ListCandidates(ctx, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	weekStart := w.Start
	existing, err := s.source.ListSelections(ctx, store.SelectionFilter{WeekStart: &weekStart})
	if err != nil {
		return nil, fmt.Errorf("list week selections: %w", err)
	}

	selectedAgents := make(map[string]struct{})
	selectedRecordings := make(map[int64]struct{})
	agentsSelectedByClient := make(map[string]map[string]struct{})
	for _, sel := range existing {
		selectedAgents[sel.AgentID] = struct{}{}
		selectedRecordings[sel.RecordingID] = struct{}{}
		if agentsSelectedByClient[sel.ClientCode] == nil {
			agentsSelectedByClient[sel.ClientCode] = make(map[string]struct{})
		}
		agentsSelectedByClient[sel.ClientCode][sel.AgentID] = struct{}{}
	}
	selectedByClient := make(map[string]int, len(agentsSelectedByClient))
	for client, agents := range agentsSelectedByClient {
		selectedByClient[client] = len(agents)
	}

	agentsByClient := make(map[string]map[string]struct{})
	totalAgents := 0
	for _, rec := range candidates {
		if !s.knownAgent(rec.AgentID) {
			continue
		}
		client := s.clientFor(rec)
		if agentsByClient[client] == nil {
			agentsByClient[client] = make(map[string]struct{})
		}
		if _, seen := agentsByClient[client][rec.AgentID]; !seen {
			agentsByClient[client][rec.AgentID] = struct{}{}
			totalAgents++
		}
	}

	quotas := AllocateQuotas(agentsByClient, selectedByClient, w.WorkingDaysRemaining, s.policy.ExemptClient)
	plans := s.plan(day, candidates, quotas, selectedAgents, selectedRecordings)

	res := &Result{
		Date:            week.Format(day),
		Week:            w,
		AlreadySelected: len(selectedAgents),
		TotalAgents:     totalAgents,
		RemainingDays:   w.WorkingDaysRemaining,
		Quotas:          quotas,
		Breakdown:       make(map[string]*ClientBreakdown, len(plans)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if s.policy.InsertConcurrency > 0 {
		g.SetLimit(s.policy.InsertConcurrency)
	}
	for _, p := range plans {
		g.Go(func() error {
			bd, err := s.execute(gctx, p, w)
			mu.Lock()
			res.Breakdown[p.client] = bd
			res.Inserted += bd.Selected
			res.Skipped += bd.Skipped
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	for client, q := range quotas {
		s.metrics.SetQuota(client, int(q))
	}
	s.logger.Info("selection run complete",
		"date", res.Date,
		"week_start", w.StartDate(),
		"inserted", res.Inserted,
		"skipped", res.Skipped,
		"total_agents", res.TotalAgents,
		"remaining_days", res.RemainingDays,
	)
	return res, nil
}

// plan groups the day's eligible recordings per client and decides, in a
// single goroutine, the order agents are tried and which recording each
// one would contribute. Every client with a quota gets a plan, even an
// empty one, so the breakdown covers the whole week.
func (s *Selector) plan(day time.Time, candidates []*store.Recording, quotas map[string]Quota, selectedAgents map[string]struct{}, selectedRecordings map[int64]struct{}) []clientPlan {
	exempt := &clientPlan{client: s.policy.ExemptClient, exempt: true, quota: Unbounded}
	byAgent := make(map[string]map[string][]*store.Recording)
	agentOrder := make(map[string][]string)

	for _, rec := range candidates {
		if !week.Day(rec.FileDate).Equal(day) || !s.knownAgent(rec.AgentID) {
			continue
		}
		if rec.FileSizeBytes < s.policy.MinFileSizeBytes {
			continue
		}
		if _, dup := selectedRecordings[rec.ID]; dup {
			continue
		}

		client := s.clientFor(rec)
		if client == s.policy.ExemptClient {
			if s.longEnough(rec) {
				exempt.picks = append(exempt.picks, rec)
			}
			continue
		}

		if _, done := selectedAgents[rec.AgentID]; done {
			continue
		}
		if byAgent[client] == nil {
			byAgent[client] = make(map[string][]*store.Recording)
		}
		if _, seen := byAgent[client][rec.AgentID]; !seen {
			agentOrder[client] = append(agentOrder[client], rec.AgentID)
		}
		byAgent[client][rec.AgentID] = append(byAgent[client][rec.AgentID], rec)
	}

	clients := make([]string, 0, len(quotas))
	for client := range quotas {
		clients = append(clients, client)
	}
	sort.Strings(clients)

	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	plans := make([]clientPlan, 0, len(clients))
	for _, client := range clients {
		if client == s.policy.ExemptClient {
			exempt.available = len(exempt.picks)
			plans = append(plans, *exempt)
			continue
		}

		agents := agentOrder[client]
		s.rng.Shuffle(len(agents), func(i, j int) { agents[i], agents[j] = agents[j], agents[i] })

		p := clientPlan{client: client, quota: quotas[client], available: len(agents)}
		for _, agent := range agents {
			if pick := s.pickOne(byAgent[client][agent]); pick != nil {
				p.picks = append(p.picks, pick)
			}
		}
		plans = append(plans, p)
	}
	return plans
}

// pickOne chooses uniformly among recordings meeting the minimum duration,
// falling back to those meeting the size floor, then to any recording.
// Callers hold rngMu.
func (s *Selector) pickOne(recs []*store.Recording) *store.Recording {
	if len(recs) == 0 {
		return nil
	}
	var byDuration, bySize []*store.Recording
	for _, r := range recs {
		if s.longEnough(r) {
			byDuration = append(byDuration, r)
		}
		if r.FileSizeBytes >= s.policy.MinFileSizeBytes {
			bySize = append(bySize, r)
		}
	}
	switch {
	case len(byDuration) > 0:
		return byDuration[s.rng.IntN(len(byDuration))]
	case len(bySize) > 0:
		return bySize[s.rng.IntN(len(bySize))]
	default:
		return recs[s.rng.IntN(len(recs))]
	}
}

func (s *Selector) execute(ctx context.Context, p clientPlan, w week.Window) (*ClientBreakdown, error) {
	bd := &ClientBreakdown{Quota: p.quota, Available: p.available}
	defer func() { s.metrics.RecordSelection(p.client, bd.Selected, bd.Skipped) }()

	for _, rec := range p.picks {
		if !p.quota.Allows(bd.Selected) {
			break
		}
		sel := &store.Selection{
			RecordingID: rec.ID,
			AgentID:     rec.AgentID,
			AgentName:   rec.AgentName,
			ClientCode:  p.client,
			WeekStart:   w.Start,
			WeekEnd:     w.End,
			Status:      store.StatusSelected,
			QuotaExempt: p.exempt,
		}
		err := s.source.CreateSelection(ctx, sel)
		switch {
		case err == nil:
			bd.Selected++
		case errors.Is(err, store.ErrDuplicateSelection):
			bd.Skipped++
			s.logger.Debug("selection already exists", "client_code", p.client, "agent_id", rec.AgentID, "recording_id", rec.ID)
		default:
			return bd, fmt.Errorf("insert selection for recording %d: %w", rec.ID, err)
		}
	}
	return bd, nil
}

// clientFor reclassifies recordings from the exempt client's projects,
// whichever source they were filed under.
func (s *Selector) clientFor(rec *store.Recording) string {
	if rec.ProjectID != nil {
		for _, id := range s.policy.ExemptProjectIDs {
			if *rec.ProjectID == id {
				return s.policy.ExemptClient
			}
		}
	}
	return rec.ClientCode
}

func (s *Selector) knownAgent(agentID string) bool {
	return agentID != "" && agentID != s.policy.UnknownAgentID
}

func (s *Selector) longEnough(rec *store.Recording) bool {
	return rec.CallDurationSeconds != nil && *rec.CallDurationSeconds >= s.policy.MinDurationSeconds
}
