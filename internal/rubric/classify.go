package rubric

import "fmt"

type Campaign string

const (
	CampaignSales   Campaign = "sales"
	CampaignService Campaign = "service"
	CampaignSingle  Campaign = "single"
)

// Resolve picks the rubric that applies to a recording. Clients with a
// sales/service split are classified by agent identity or by project id,
// depending on the client's strategy; anything not on the service side is
// sales.
func (c *Catalog) Resolve(clientCode, agentID string, projectID *int) (*Rubric, Campaign, error) {
	rule, ok := c.clients[clientCode]
	if !ok {
		return nil, "", fmt.Errorf("%w: client %q", ErrConfigurationMissing, clientCode)
	}

	if !rule.split() {
		r, err := c.Rubric(rule.Rubric)
		if err != nil {
			return nil, "", err
		}
		return r, CampaignSingle, nil
	}

	campaign := CampaignSales
	switch rule.Strategy {
	case StrategyAgent:
		if _, ok := c.serviceAgents[clientCode][agentID]; ok {
			campaign = CampaignService
		}
	case StrategyProject:
		if projectID != nil {
			if _, ok := c.serviceProjects[clientCode][*projectID]; ok {
				campaign = CampaignService
			}
		}
	}

	id := rule.Sales
	if campaign == CampaignService {
		id = rule.Service
	}
	r, err := c.Rubric(id)
	if err != nil {
		return nil, "", err
	}
	return r, campaign, nil
}

// CampaignFor is Resolve without the rubric, for display. Unknown clients
// yield an empty campaign.
func (c *Catalog) CampaignFor(clientCode, agentID string, projectID *int) Campaign {
	_, campaign, err := c.Resolve(clientCode, agentID, projectID)
	if err != nil {
		return ""
	}
	return campaign
}
