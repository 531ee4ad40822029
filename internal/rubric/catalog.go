package rubric

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// ErrConfigurationMissing is returned when no rubric exists for a client or
// campaign. Callers must surface it; there is no fallback rubric.
var ErrConfigurationMissing = errors.New("rubric configuration missing")

type ID string

const (
	ClaroWCB      ID = "claro_wcb"
	ClaroHogar    ID = "claro_hogar"
	ClaroTYT      ID = "claro_tyt"
	ObamaVentas   ID = "obama_ventas"
	ObamaCustomer ID = "obama_customer"
	LVCustomer    ID = "lv_customer"
	LVVentas      ID = "lv_ventas"
)

// KnownIDs is the closed set of rubric identifiers.
var KnownIDs = []ID{ClaroWCB, ClaroHogar, ClaroTYT, ObamaVentas, ObamaCustomer, LVCustomer, LVVentas}

type Criterion struct {
	Key    string `yaml:"key" json:"key"`
	Label  string `yaml:"label" json:"label"`
	Weight int    `yaml:"weight,omitempty" json:"weight,omitempty"`
}

type Rubric struct {
	ID         ID          `yaml:"-" json:"id"`
	Label      string      `yaml:"label" json:"label"`
	General    []Criterion `yaml:"general" json:"general"`
	HighImpact []Criterion `yaml:"high_impact" json:"high_impact"`

	// General criteria that need the account holder on the line.
	ThirdPartySensitive []string `yaml:"third_party_sensitive" json:"third_party_sensitive"`
	// General criteria that belong to the final phase of a call.
	ClosingPhase []string `yaml:"closing_phase" json:"closing_phase"`
}

// GeneralCriterion looks up a weighted criterion by key.
func (r *Rubric) GeneralCriterion(key string) (Criterion, bool) {
	for _, c := range r.General {
		if c.Key == key {
			return c, true
		}
	}
	return Criterion{}, false
}

func (r *Rubric) HighImpactCriterion(key string) (Criterion, bool) {
	for _, c := range r.HighImpact {
		if c.Key == key {
			return c, true
		}
	}
	return Criterion{}, false
}

func (r *Rubric) TotalWeight() int {
	total := 0
	for _, c := range r.General {
		total += c.Weight
	}
	return total
}

type Strategy string

const (
	StrategyAgent   Strategy = "agent"
	StrategyProject Strategy = "project"
)

// ClientRule maps a client code to either a single rubric or a sales and
// service pair.
type ClientRule struct {
	Rubric          ID       `yaml:"rubric"`
	Strategy        Strategy `yaml:"strategy"`
	Sales           ID       `yaml:"sales"`
	Service         ID       `yaml:"service"`
	ServiceAgents   []string `yaml:"service_agents"`
	ServiceProjects []int    `yaml:"service_projects"`
}

func (c ClientRule) split() bool {
	return c.Rubric == ""
}

type document struct {
	ObjectionCriterion string                `yaml:"objection_criterion"`
	AudioUnverifiable  []string              `yaml:"audio_unverifiable"`
	Clients            map[string]ClientRule `yaml:"clients"`
	Rubrics            map[ID]*Rubric        `yaml:"rubrics"`
}

type Catalog struct {
	objectionCriterion string
	audioUnverifiable  []string
	clients            map[string]ClientRule
	rubrics            map[ID]*Rubric

	serviceAgents   map[string]map[string]struct{}
	serviceProjects map[string]map[int]struct{}
}

// Load parses and validates the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(embeddedCatalog)
}

// Parse builds a catalog from a YAML document and validates it.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rubric catalog: %w", err)
	}

	c := &Catalog{
		objectionCriterion: doc.ObjectionCriterion,
		audioUnverifiable:  doc.AudioUnverifiable,
		clients:            doc.Clients,
		rubrics:            doc.Rubrics,
		serviceAgents:      make(map[string]map[string]struct{}),
		serviceProjects:    make(map[string]map[int]struct{}),
	}
	if c.rubrics == nil {
		c.rubrics = make(map[ID]*Rubric)
	}
	for id, r := range c.rubrics {
		if r == nil {
			return nil, fmt.Errorf("rubric %s: empty definition", id)
		}
		r.ID = id
	}
	for code, rule := range c.clients {
		agents := make(map[string]struct{}, len(rule.ServiceAgents))
		for _, a := range rule.ServiceAgents {
			agents[a] = struct{}{}
		}
		c.serviceAgents[code] = agents

		projects := make(map[int]struct{}, len(rule.ServiceProjects))
		for _, p := range rule.ServiceProjects {
			projects[p] = struct{}{}
		}
		c.serviceProjects[code] = projects
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate fails on the first structural problem found: unknown rubric
// references, weights that do not total 100, repeated keys, or override
// subsets naming criteria the rubric does not have.
func (c *Catalog) Validate() error {
	if len(c.clients) == 0 {
		return errors.New("rubric catalog: no clients defined")
	}

	for _, id := range sortedIDs(c.rubrics) {
		r := c.rubrics[id]
		if len(r.General) == 0 {
			return fmt.Errorf("rubric %s: no general criteria", id)
		}
		if total := r.TotalWeight(); total != 100 {
			return fmt.Errorf("rubric %s: general weights sum to %d, want 100", id, total)
		}

		seen := make(map[string]struct{})
		for _, crit := range r.General {
			if crit.Weight <= 0 {
				return fmt.Errorf("rubric %s: criterion %s has non-positive weight", id, crit.Key)
			}
			if _, dup := seen[crit.Key]; dup {
				return fmt.Errorf("rubric %s: duplicate general key %s", id, crit.Key)
			}
			seen[crit.Key] = struct{}{}
		}
		hiSeen := make(map[string]struct{})
		for _, crit := range r.HighImpact {
			if _, dup := hiSeen[crit.Key]; dup {
				return fmt.Errorf("rubric %s: duplicate high-impact key %s", id, crit.Key)
			}
			hiSeen[crit.Key] = struct{}{}
		}

		for _, key := range r.ThirdPartySensitive {
			if _, ok := seen[key]; !ok {
				return fmt.Errorf("rubric %s: third-party criterion %s is not a general criterion", id, key)
			}
		}
		for _, key := range r.ClosingPhase {
			if _, ok := seen[key]; !ok {
				return fmt.Errorf("rubric %s: closing criterion %s is not a general criterion", id, key)
			}
		}
	}

	codes := make([]string, 0, len(c.clients))
	for code := range c.clients {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		rule := c.clients[code]
		if !rule.split() {
			if _, ok := c.rubrics[rule.Rubric]; !ok {
				return fmt.Errorf("client %s: %w: rubric %s", code, ErrConfigurationMissing, rule.Rubric)
			}
			continue
		}
		for _, id := range []ID{rule.Sales, rule.Service} {
			if _, ok := c.rubrics[id]; !ok {
				return fmt.Errorf("client %s: %w: rubric %q", code, ErrConfigurationMissing, id)
			}
		}
		switch rule.Strategy {
		case StrategyAgent, StrategyProject:
		default:
			return fmt.Errorf("client %s: unknown campaign strategy %q", code, rule.Strategy)
		}
	}
	return nil
}

// Rubric returns the rubric for id.
func (c *Catalog) Rubric(id ID) (*Rubric, error) {
	r, ok := c.rubrics[id]
	if !ok {
		return nil, fmt.Errorf("%w: rubric %q", ErrConfigurationMissing, id)
	}
	return r, nil
}

func (c *Catalog) ObjectionCriterion() string {
	return c.objectionCriterion
}

// AudioUnverifiable lists criteria that cannot be observed in a voice
// recording.
func (c *Catalog) AudioUnverifiable() []string {
	return c.audioUnverifiable
}

// Clients returns the configured client codes in sorted order.
func (c *Catalog) Clients() []string {
	codes := make([]string, 0, len(c.clients))
	for code := range c.clients {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (c *Catalog) HasClient(code string) bool {
	_, ok := c.clients[code]
	return ok
}

func sortedIDs(m map[ID]*Rubric) []ID {
	ids := make([]ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
