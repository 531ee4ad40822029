package rubric

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestEmbeddedCatalogIsValid(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	for _, id := range KnownIDs {
		r, err := c.Rubric(id)
		require.NoError(t, err, "rubric %s", id)
		assert.Equal(t, 100, r.TotalWeight(), "rubric %s weights", id)
		assert.NotEmpty(t, r.HighImpact, "rubric %s high impact", id)
		assert.Equal(t, id, r.ID)
	}

	assert.Equal(t, "manejo_objeciones", c.ObjectionCriterion())
	assert.Equal(t, []string{"uso_herramientas", "tipificacion"}, c.AudioUnverifiable())
	assert.Equal(t, []string{"claro_hogar", "claro_tyt", "claro_wcb", "lv", "obama"}, c.Clients())
}

func TestRubricUnknownID(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	_, err = c.Rubric("claro_movil")
	assert.True(t, errors.Is(err, ErrConfigurationMissing))
}

func TestResolve(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name     string
		client   string
		agent    string
		project  *int
		want     ID
		wantCamp Campaign
	}{
		{"single rubric client", "claro_hogar", "123", nil, ClaroHogar, CampaignSingle},
		{"obama service agent", "obama", "1000834615", nil, ObamaCustomer, CampaignService},
		{"obama other agent is sales", "obama", "999", nil, ObamaVentas, CampaignSales},
		{"lv service project", "lv", "5", intPtr(35), LVCustomer, CampaignService},
		{"lv sales project", "lv", "5", intPtr(34), LVVentas, CampaignSales},
		{"lv no project defaults to sales", "lv", "5", nil, LVVentas, CampaignSales},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, camp, err := c.Resolve(tt.client, tt.agent, tt.project)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.ID)
			assert.Equal(t, tt.wantCamp, camp)
		})
	}
}

func TestResolveUnknownClient(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	_, _, err = c.Resolve("movistar", "1", nil)
	assert.ErrorIs(t, err, ErrConfigurationMissing)
	assert.Equal(t, Campaign(""), c.CampaignFor("movistar", "1", nil))
	assert.Equal(t, CampaignService, c.CampaignFor("obama", "1011093984", nil))
}

func TestOverrideSubsetsAreGeneralCriteria(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	r, _ := c.Rubric(ClaroTYT)
	assert.Equal(t, []string{"perfilamiento_enfocado", "oferta_comercial", "manejo_objeciones", "cierre_comercial", "convenios_bancarios"}, r.ThirdPartySensitive)
	assert.Equal(t, []string{"cierre_comercial", "convenios_bancarios", "manejo_objeciones", "despedida"}, r.ClosingPhase)

	crit, ok := r.GeneralCriterion("saludo")
	assert.True(t, ok)
	assert.Equal(t, 12, crit.Weight)
	_, ok = r.HighImpactCriterion("habeas_data")
	assert.True(t, ok)
}

const validDoc = `
clients:
  acme:
    rubric: acme
rubrics:
  acme:
    label: Acme
    general:
      - { key: a, label: A, weight: 60 }
      - { key: b, label: B, weight: 40 }
    high_impact:
      - { key: h, label: H }
`

func TestParseValidation(t *testing.T) {
	_, err := Parse([]byte(validDoc))
	require.NoError(t, err)

	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "weights do not total 100",
			doc:     strings.Replace(validDoc, "weight: 40", "weight: 30", 1),
			wantErr: "sum to 90",
		},
		{
			name:    "duplicate key",
			doc:     strings.Replace(validDoc, "key: b,", "key: a,", 1),
			wantErr: "duplicate general key",
		},
		{
			name:    "client references unknown rubric",
			doc:     strings.Replace(validDoc, "rubric: acme", "rubric: other", 1),
			wantErr: "rubric configuration missing",
		},
		{
			name:    "closing subset unknown key",
			doc:     validDoc + "    closing_phase: [zzz]\n",
			wantErr: "closing criterion zzz",
		},
		{
			name:    "split client without strategy",
			doc:     strings.Replace(validDoc, "    rubric: acme", "    sales: acme\n    service: acme", 1),
			wantErr: "unknown campaign strategy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
