package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *PostgresStore) AgentPerformance(ctx context.Context, clientCode string) ([]*AgentPerformance, error) {
	query := `
		SELECT agent_id, MAX(agent_name), client_code,
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'in_review'),
			COUNT(*) FILTER (WHERE status = 'skipped'),
			AVG(score)::float8, MIN(score), MAX(score),
			MAX(week_start)
		FROM audit_selections`
	args := []interface{}{}
	if clientCode != "" {
		query += ` WHERE client_code = $1`
		args = append(args, clientCode)
	}
	query += ` GROUP BY agent_id, client_code ORDER BY AVG(score) DESC NULLS LAST, agent_id ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("agent performance: %w", err)
	}
	defer rows.Close()

	var out []*AgentPerformance
	for rows.Next() {
		p := &AgentPerformance{}
		var avg sql.NullFloat64
		var minScore, maxScore sql.NullInt32
		if err := rows.Scan(&p.AgentID, &p.AgentName, &p.ClientCode,
			&p.TotalAudits, &p.Completed, &p.InReview, &p.Skipped,
			&avg, &minScore, &maxScore, &p.LastAuditWeek); err != nil {
			return nil, err
		}
		if avg.Valid {
			p.AvgScore = &avg.Float64
		}
		if minScore.Valid {
			v := int(minScore.Int32)
			p.MinScore = &v
		}
		if maxScore.Valid {
			v := int(maxScore.Int32)
			p.MaxScore = &v
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) WeekSummaries(ctx context.Context, clientCode string) ([]*WeekSummary, error) {
	query := `
		SELECT week_start, week_end,
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'selected'),
			COUNT(*) FILTER (WHERE status = 'in_review'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'skipped'),
			AVG(score)::float8
		FROM audit_selections`
	args := []interface{}{}
	if clientCode != "" {
		query += ` WHERE client_code = $1`
		args = append(args, clientCode)
	}
	query += ` GROUP BY week_start, week_end ORDER BY week_start DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("week summaries: %w", err)
	}
	defer rows.Close()

	var out []*WeekSummary
	for rows.Next() {
		w := &WeekSummary{}
		var avg sql.NullFloat64
		if err := rows.Scan(&w.WeekStart, &w.WeekEnd, &w.Total,
			&w.Selected, &w.InReview, &w.Completed, &w.Skipped, &avg); err != nil {
			return nil, err
		}
		if avg.Valid {
			w.AvgScore = &avg.Float64
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
