package storage

import (
	"context"
	"fmt"
)

// replaceTopics swaps the join rows for one entity. The table and key
// column are compile-time constants at every call site, never user
// input.
func replaceTopics(ctx context.Context, db DB, table, keyCol, id string, topics []string) error {
	if _, err := db.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, keyCol), id); err != nil {
		return fmt.Errorf("clear %s for %s: %w", table, id, err)
	}
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		if _, err := db.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (%s, topic) VALUES ($1, $2) ON CONFLICT DO NOTHING`, table, keyCol),
			id, topic); err != nil {
			return fmt.Errorf("insert %s for %s: %w", table, id, err)
		}
	}
	return nil
}

// topicsFor loads the topic list for one entity.
func topicsFor(ctx context.Context, db DB, table, keyCol, id string) ([]string, error) {
	rows, err := db.Query(ctx,
		fmt.Sprintf(`SELECT topic FROM %s WHERE %s = $1 ORDER BY topic`, table, keyCol), id)
	if err != nil {
		return nil, fmt.Errorf("topics from %s for %s: %w", table, id, err)
	}
	defer rows.Close()

	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}
